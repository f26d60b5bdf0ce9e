// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package materialize implements copy-in from the backing store to
// the cache, for both the read-only view's per-file copy-in and the
// read-write view's per-file-or-subtree copy-in. Both views share a
// single [Materializer] instance, and therefore its single mutex, so
// that a reader's copy-in and a writer's copy-in of overlapping paths
// can never race.
package materialize

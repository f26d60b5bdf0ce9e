// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package readonly implements the view serving every path outside
// the configured read-write subtree. Non-mutating operations
// delegate to the shared metadata cache; reads lazily copy the
// requested file into the cache the first time it is opened.
// Mutating operations always fail with EROFS — this view never
// touches the backing store.
package readonly

// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package metadata implements the per-relative-path memoization
// layer shared by the read-only and read-write views: stat, access
// mask checks, symlink targets, and directory listings are each
// resolved against the backing store at most once per path and
// replayed from memory on every subsequent call.
//
// # Locking
//
// Entry creation is serialized by a single map-level mutex, held
// only long enough to find or insert the entry. All syscall work
// happens under the entry's own mutex, so lookups against distinct
// paths never block each other. Once a field is populated it is
// never overwritten — see [Cache] for the consequences of that on
// error results.
package metadata

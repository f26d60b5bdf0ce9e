// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package roots canonicalizes the three directory trees a cachefs
// mount is configured with — backing, cache, and the read-write
// subtree — and implements the path-prefix predicate the dispatcher
// uses to decide whether a path is read-only or read-write.
package roots

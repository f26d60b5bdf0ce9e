// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for cachefs packages.
//
// [RequireClosed] encapsulates the timeout safety valve pattern
// (select with time.After fallback) so that a test waiting on a
// goroutine's completion signal does not need a direct time.After
// call of its own.
//
// RequireClosed calls t.Fatalf on failure rather than returning an
// error, since a timed-out test setup is not recoverable.
//
// This package has no cachefs-internal dependencies.
package testutil

// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package readwrite implements the view serving every path inside
// the configured read-write subtree. Operations eagerly materialize
// whatever they need (a file, or a directory's whole subtree), apply
// metadata mutations to both cache and backing trees synchronously,
// and hand data writes to the background writer for asynchronous
// propagation. Every synchronous backing mutation first flushes the
// background writer, preserving data-then-metadata ordering per
// path.
package readwrite

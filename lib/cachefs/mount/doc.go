// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package mount wires the caching overlay's core components to a
// bridge library mount point. [Mount] builds the metadata cache,
// materializer, background writer, and read-only/read-write views,
// then exposes them through a single inode type that routes every
// callback to the view covering its path.
//
// # Routing
//
// Every node recomputes its own relative path on each call via the
// embedded inode's own Path method rather than caching it, since the
// bridge library's inode tree — not this package — owns the
// authoritative parent/child structure. The relative path string is
// the only thing the core components (metadata, materialize, writer,
// readonly, readwrite) know about; they are unaware the bridge
// library's inode tree exists at all.
//
// # Caching
//
// Entry, attribute, and negative-lookup timeouts are all set to zero
// in [Mount], so the kernel never serves a lookup or attribute query
// out of its own cache — every call re-enters this package, and the
// in-process metadata cache is the only layer of memoization that
// exists.
package mount

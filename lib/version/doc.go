// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for cachefs
// binaries.
//
// # Build information
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// These default to "unknown" (GitCommit, BuildTime), "false"
// (GitDirty) and "0.1.0-dev" (Version) when not injected, which
// occurs during development builds and test runs.
//
// [Info] formats them as a human-readable string for --version,
// e.g. "0.1.0-dev (abc1234, 2026-02-10T...)".
package version

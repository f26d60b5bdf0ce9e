// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the optional YAML settings file accepted by
// the cachefs-mount binary's --config flag. The three mount paths
// and the mountpoint itself always come from command-line flags;
// this package only covers the smaller set of settings a deployment
// might want to pin in a file instead of retyping on every
// invocation.
package config

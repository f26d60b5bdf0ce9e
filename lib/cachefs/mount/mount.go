// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/cachefs-io/cachefs/lib/cachefs/materialize"
	"github.com/cachefs-io/cachefs/lib/cachefs/metadata"
	"github.com/cachefs-io/cachefs/lib/cachefs/readonly"
	"github.com/cachefs-io/cachefs/lib/cachefs/readwrite"
	"github.com/cachefs-io/cachefs/lib/cachefs/roots"
	"github.com/cachefs-io/cachefs/lib/cachefs/writer"
)

// Options configures the FUSE mount.
type Options struct {
	// Mountpoint is the directory the overlay is mounted on. Created
	// if it does not already exist.
	Mountpoint string

	// Backing is the read-only source tree.
	Backing string

	// Cache is the directory holding materialized copies.
	Cache string

	// RW is the subtree of Backing, identified by absolute path,
	// that is served read-write.
	RW string

	// AllowOther permits other users, including root, to access the
	// mount. Requires user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Logger receives diagnostic messages. If nil, a logger writing
	// to stderr at Info level is used.
	Logger *slog.Logger
}

// Mount builds the metadata cache, materializer, background writer,
// and read-only/read-write views described by options, wires them
// behind a single dispatcher, and mounts the result at
// options.Mountpoint. The caller must call Dispatcher.Shutdown and
// then Server.Unmount when done — in that order, so that every
// pending background write has a chance to run before the backing
// store stops being reachable through the mount.
func Mount(options Options) (*fuse.Server, *Dispatcher, error) {
	if options.Mountpoint == "" {
		return nil, nil, fmt.Errorf("mountpoint is required")
	}
	if options.Backing == "" {
		return nil, nil, fmt.Errorf("backing root is required")
	}
	if options.Cache == "" {
		return nil, nil, fmt.Errorf("cache root is required")
	}
	if options.RW == "" {
		return nil, nil, fmt.Errorf("read-write subtree is required")
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	r, err := roots.New(options.Backing, options.Cache, options.RW)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving roots: %w", err)
	}

	metadataCache := metadata.New(r.Backing)
	materializer := materialize.New(r.Backing, r.Cache)
	bgWriter := writer.New(r.Backing, r.Cache, options.Logger)
	bgWriter.Start()

	disp := &Dispatcher{
		roots:        r,
		metadata:     metadataCache,
		materializer: materializer,
		writer:       bgWriter,
		readonly:     readonly.New(r, metadataCache, materializer),
		readwrite:    readwrite.New(r, materializer, bgWriter),
		logger:       options.Logger,
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		bgWriter.Stop()
		return nil, nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	rootNode := &node{disp: disp}

	// Entry, attribute, and negative-lookup caching are all disabled:
	// the kernel must re-enter this package on every lookup and
	// attribute query, since the metadata cache — not the kernel —
	// is the only layer of memoization the overlay relies on.
	zero := time.Duration(0)
	server, err := fusefs.Mount(options.Mountpoint, rootNode, &fusefs.Options{
		EntryTimeout:    &zero,
		AttrTimeout:     &zero,
		NegativeTimeout: &zero,
		MountOptions: fuse.MountOptions{
			FsName:     "cachefs",
			Name:       "cachefs",
			AllowOther: options.AllowOther,
			Options:    []string{"default_permissions"},
		},
	})
	if err != nil {
		bgWriter.Stop()
		return nil, nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("cachefs mounted",
		"mountpoint", options.Mountpoint,
		"backing", r.Backing,
		"cache", r.Cache,
		"rw", r.RW,
	)
	return server, disp, nil
}

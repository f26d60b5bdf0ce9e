// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"context"
	"syscall"

	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/cachefs-io/cachefs/lib/cachefs/readonly"
	"github.com/cachefs-io/cachefs/lib/cachefs/readwrite"
)

// fileHandle wraps exactly one of a read-only or a read-write handle
// and forwards every FUSE file callback to whichever view opened it.
// A handle never switches sides after Open or Create returns it.
type fileHandle struct {
	disp *Dispatcher
	path string
	rw   bool

	roHandle *readonly.Handle
	rwHandle *readwrite.Handle
}

var (
	_ = (fusefs.FileReader)((*fileHandle)(nil))
	_ = (fusefs.FileWriter)((*fileHandle)(nil))
	_ = (fusefs.FileReleaser)((*fileHandle)(nil))
	_ = (fusefs.FileFsyncer)((*fileHandle)(nil))
)

func (h *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	var n int
	var err error
	if h.rw {
		n, err = h.disp.readwrite.Read(h.rwHandle, dest, off)
	} else {
		n, err = h.disp.readonly.Read(h.roHandle, dest, off)
	}
	if err != nil {
		return nil, fusefs.ToErrno(err)
	}
	return fuse.ReadResultData(dest[:n]), 0
}

func (h *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if !h.rw {
		return 0, syscall.EROFS
	}
	n, err := h.disp.readwrite.Write(h.rwHandle, data, off)
	if err != nil {
		return 0, fusefs.ToErrno(err)
	}
	return uint32(n), 0
}

func (h *fileHandle) Release(ctx context.Context) syscall.Errno {
	if h.rw {
		return fusefs.ToErrno(h.disp.readwrite.Release(h.rwHandle))
	}
	return fusefs.ToErrno(h.disp.readonly.Release(h.roHandle))
}

// Fsync is a no-op: data reaches the backing store through the
// release-triggered background sync, not through fsync on the cache
// descriptor.
func (h *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	return 0
}

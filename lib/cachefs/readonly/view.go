// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package readonly

import (
	"syscall"

	"github.com/cachefs-io/cachefs/lib/cachefs/materialize"
	"github.com/cachefs-io/cachefs/lib/cachefs/metadata"
	"github.com/cachefs-io/cachefs/lib/cachefs/roots"
)

// ErrReadOnly is returned by every mutating operation this view
// exposes. It is always exactly syscall.EROFS — a specific, well
// defined code, rather than whatever errno happened to be set from
// an unrelated prior syscall.
var ErrReadOnly = syscall.EROFS

// Handle is an open file descriptor against a materialized cache
// file.
type Handle struct {
	fd int
}

// View serves operations on paths outside the read-write subtree.
type View struct {
	roots        *roots.Roots
	metadata     *metadata.Cache
	materializer *materialize.Materializer
}

// New returns a View backed by the given roots, metadata cache, and
// materializer. The materializer is shared with the read-write view
// so both views' copy-in is serialized by one mutex.
func New(r *roots.Roots, cache *metadata.Cache, m *materialize.Materializer) *View {
	return &View{roots: r, metadata: cache, materializer: m}
}

// Getattr returns the memoized lstat result for p.
func (v *View) Getattr(p string) (syscall.Stat_t, error) {
	return v.metadata.Getattr(p)
}

// Access returns the memoized access(path, mask) result for p.
func (v *View) Access(p string, mask uint32) error {
	return v.metadata.Access(p, mask)
}

// Readlink returns the memoized symlink target for p.
func (v *View) Readlink(p string) ([]byte, error) {
	return v.metadata.Readlink(p)
}

// List returns the memoized directory listing for p.
func (v *View) List(p string) ([]metadata.DirEntry, error) {
	return v.metadata.List(p)
}

// Open ensures p is copied into the cache and opens the cache copy
// with the given flags.
func (v *View) Open(p string, flags int) (*Handle, error) {
	if err := v.materializer.EnsureFile(p); err != nil {
		return nil, err
	}
	fd, err := syscall.Open(v.roots.CachePath(p), flags, 0)
	if err != nil {
		return nil, err
	}
	return &Handle{fd: fd}, nil
}

// Read reads from an open handle at the given offset.
func (v *View) Read(h *Handle, buf []byte, off int64) (int, error) {
	return syscall.Pread(h.fd, buf, off)
}

// ReadPath ensures p is copied into the cache, then reads size bytes
// at off without keeping a handle open — used when the bridge issues
// a read without a preceding open (rare, but allowed by the
// callback contract).
func (v *View) ReadPath(p string, buf []byte, off int64) (int, error) {
	if err := v.materializer.EnsureFile(p); err != nil {
		return 0, err
	}
	fd, err := syscall.Open(v.roots.CachePath(p), syscall.O_RDONLY, 0)
	if err != nil {
		return 0, err
	}
	defer syscall.Close(fd)
	return syscall.Pread(fd, buf, off)
}

// Release closes an open handle.
func (v *View) Release(h *Handle) error {
	return syscall.Close(h.fd)
}

// The remaining operations all mutate either metadata or data and
// are forbidden on a read-only path; each returns ErrReadOnly
// without attempting anything against the backing or cache trees.

func (v *View) Mknod(p string, mode, dev uint32) error    { return ErrReadOnly }
func (v *View) Mkdir(p string, mode uint32) error         { return ErrReadOnly }
func (v *View) Unlink(p string) error                     { return ErrReadOnly }
func (v *View) Rmdir(p string) error                      { return ErrReadOnly }
func (v *View) Symlink(target, p string) error            { return ErrReadOnly }
func (v *View) Rename(from, to string, flags uint32) error { return ErrReadOnly }
func (v *View) Link(target, p string) error               { return ErrReadOnly }
func (v *View) Chmod(p string, mode uint32) error         { return ErrReadOnly }
func (v *View) Chown(p string, uid, gid int) error        { return ErrReadOnly }
func (v *View) Truncate(p string, size int64) error       { return ErrReadOnly }
func (v *View) Write(h *Handle, data []byte, off int64) (int, error) {
	return 0, ErrReadOnly
}
func (v *View) Create(p string, flags int, mode uint32) (*Handle, error) {
	return nil, ErrReadOnly
}

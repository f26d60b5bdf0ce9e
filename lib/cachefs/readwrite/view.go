// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package readwrite

import (
	"os"
	"sync"
	"syscall"

	"github.com/cachefs-io/cachefs/lib/cachefs/materialize"
	"github.com/cachefs-io/cachefs/lib/cachefs/metadata"
	"github.com/cachefs-io/cachefs/lib/cachefs/roots"
	"github.com/cachefs-io/cachefs/lib/cachefs/writer"
)

// Handle is an open file descriptor against a materialized cache
// file, created by Open or Create and released exactly once.
type Handle struct {
	fd   int
	path string
}

// View serves operations on paths inside the read-write subtree.
type View struct {
	roots        *roots.Roots
	materializer *materialize.Materializer
	writer       *writer.Writer

	dirtyMu sync.Mutex
	dirty   map[*Handle]struct{}
}

// New returns a View backed by the given roots, materializer, and
// background writer. The materializer is shared with the read-only
// view so both views' copy-in is serialized by one mutex.
func New(r *roots.Roots, m *materialize.Materializer, w *writer.Writer) *View {
	return &View{
		roots:        r,
		materializer: m,
		writer:       w,
		dirty:        make(map[*Handle]struct{}),
	}
}

func (v *View) flush() {
	v.writer.Flush()
}

// Getattr materializes p, then lstats the cache copy directly — the
// read-write view does not memoize stat results the way the
// metadata cache does, since a writable file's attributes can change
// from one call to the next.
func (v *View) Getattr(p string) (syscall.Stat_t, error) {
	cache, err := v.materializer.EnsureFileMaterialized(p)
	if err != nil {
		return syscall.Stat_t{}, err
	}
	var st syscall.Stat_t
	err = syscall.Lstat(cache, &st)
	return st, err
}

func (v *View) Access(p string, mask uint32) error {
	cache, err := v.materializer.EnsureFileMaterialized(p)
	if err != nil {
		return err
	}
	return syscall.Access(cache, mask)
}

func (v *View) Readlink(p string) ([]byte, error) {
	cache, err := v.materializer.EnsureFileMaterialized(p)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 4096)
	n, err := syscall.Readlink(cache, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// List materializes the directory p, then lists the cache copy
// directly on every call — unlike the metadata cache's List, this is
// never memoized, since the read-write view's directories can be
// mutated by the same process that is listing them.
func (v *View) List(p string) ([]metadata.DirEntry, error) {
	cache, err := v.materializer.EnsureFileMaterialized(p)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(cache)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	entries := make([]metadata.DirEntry, 0, len(names))
	for _, name := range names {
		var st syscall.Stat_t
		if err := syscall.Lstat(cache+"/"+name, &st); err != nil {
			continue
		}
		entries = append(entries, metadata.DirEntry{Name: name, Ino: st.Ino, Mode: st.Mode & syscall.S_IFMT})
	}
	return entries, nil
}

func (v *View) Mknod(p string, mode uint32, dev uint32) error {
	if _, err := v.materializer.EnsureParentMaterialized(p); err != nil {
		return err
	}
	return syscall.Mknod(v.roots.CachePath(p), mode, int(dev))
}

func (v *View) Mkdir(p string, mode uint32) error {
	if _, err := v.materializer.EnsureParentMaterialized(p); err != nil {
		return err
	}
	v.flush()
	if err := syscall.Mkdir(v.roots.CachePath(p), mode); err != nil {
		return err
	}
	return syscall.Mkdir(v.roots.BackingPath(p), mode)
}

func (v *View) Unlink(p string) error {
	if _, err := v.materializer.EnsureFileMaterialized(p); err != nil {
		return err
	}
	v.flush()
	if err := syscall.Unlink(v.roots.CachePath(p)); err != nil {
		return err
	}
	return syscall.Unlink(v.roots.BackingPath(p))
}

func (v *View) Rmdir(p string) error {
	if _, err := v.materializer.EnsureParentMaterialized(p); err != nil {
		return err
	}
	v.flush()
	if err := syscall.Rmdir(v.roots.CachePath(p)); err != nil {
		return err
	}
	return syscall.Rmdir(v.roots.BackingPath(p))
}

// Symlink creates a symlink named p whose target is the literal
// target string supplied by the caller, written unmodified into
// both the cache and backing trees — never a path resolved against
// either tree, which would leak cache locations into the backing
// store.
func (v *View) Symlink(target, p string) error {
	if _, err := v.materializer.EnsureParentMaterialized(p); err != nil {
		return err
	}
	v.flush()
	if err := syscall.Symlink(target, v.roots.CachePath(p)); err != nil {
		return err
	}
	return syscall.Symlink(target, v.roots.BackingPath(p))
}

func (v *View) Rename(from, to string, flags uint32) error {
	if flags != 0 {
		return syscall.EINVAL
	}
	if _, err := v.materializer.EnsureParentMaterialized(from); err != nil {
		return err
	}
	v.flush()
	if err := syscall.Rename(v.roots.CachePath(from), v.roots.CachePath(to)); err != nil {
		return err
	}
	return syscall.Rename(v.roots.BackingPath(from), v.roots.BackingPath(to))
}

func (v *View) Link(target, p string) error {
	v.flush()
	if err := syscall.Link(v.roots.CachePath(target), v.roots.CachePath(p)); err != nil {
		return err
	}
	return syscall.Link(v.roots.BackingPath(target), v.roots.BackingPath(p))
}

func (v *View) Chmod(p string, mode uint32) error {
	cache, err := v.materializer.EnsureFileMaterialized(p)
	if err != nil {
		return err
	}
	v.flush()
	if err := syscall.Chmod(cache, mode); err != nil {
		return err
	}
	return syscall.Chmod(v.roots.BackingPath(p), mode)
}

func (v *View) Chown(p string, uid, gid int) error {
	cache, err := v.materializer.EnsureFileMaterialized(p)
	if err != nil {
		return err
	}
	v.flush()
	if err := syscall.Lchown(cache, uid, gid); err != nil {
		return err
	}
	return syscall.Lchown(v.roots.BackingPath(p), uid, gid)
}

// Truncate resizes the cache copy only — via the open handle's
// descriptor if one is given, otherwise by path — and unconditionally
// schedules an asynchronous sync of p, regardless of whether any
// prior write on this path was tracked as dirty.
func (v *View) Truncate(p string, size int64, h *Handle) error {
	cache, err := v.materializer.EnsureFileMaterialized(p)
	if err != nil {
		return err
	}
	if h != nil {
		err = syscall.Ftruncate(h.fd, size)
	} else {
		err = syscall.Truncate(cache, size)
	}
	if err != nil {
		return err
	}
	v.writer.Enqueue(p)
	return nil
}

// Create materializes p's parent, flushes the writer, then opens a
// new file under both cache and backing, keeping only the cache
// descriptor open — the backing descriptor exists solely to ensure
// the backing-side file is created, and is closed immediately.
func (v *View) Create(p string, flags int, mode uint32) (*Handle, error) {
	if _, err := v.materializer.EnsureParentMaterialized(p); err != nil {
		return nil, err
	}
	v.flush()

	cacheFd, err := syscall.Open(v.roots.CachePath(p), flags|syscall.O_CREAT, mode)
	if err != nil {
		return nil, err
	}
	backingFd, err := syscall.Open(v.roots.BackingPath(p), flags|syscall.O_CREAT, mode)
	if err != nil {
		syscall.Close(cacheFd)
		return nil, err
	}
	syscall.Close(backingFd)

	return &Handle{fd: cacheFd, path: p}, nil
}

// Open materializes p, then opens the cache copy with the requested
// flags.
func (v *View) Open(p string, flags int) (*Handle, error) {
	cache, err := v.materializer.EnsureFileMaterialized(p)
	if err != nil {
		return nil, err
	}
	fd, err := syscall.Open(cache, flags, 0)
	if err != nil {
		return nil, err
	}
	return &Handle{fd: fd, path: p}, nil
}

func (v *View) Read(h *Handle, buf []byte, off int64) (int, error) {
	return syscall.Pread(h.fd, buf, off)
}

// Write writes to the open handle and marks it dirty so that Release
// schedules an asynchronous sync.
func (v *View) Write(h *Handle, data []byte, off int64) (int, error) {
	n, err := syscall.Pwrite(h.fd, data, off)
	if err == nil {
		v.dirtyMu.Lock()
		v.dirty[h] = struct{}{}
		v.dirtyMu.Unlock()
	}
	return n, err
}

// Release closes the handle and, if at least one write occurred on
// it since it was opened, schedules an asynchronous sync of its
// path. A handle that was only ever read from, or never written to,
// schedules nothing.
func (v *View) Release(h *Handle) error {
	err := syscall.Close(h.fd)

	v.dirtyMu.Lock()
	_, wasDirty := v.dirty[h]
	delete(v.dirty, h)
	v.dirtyMu.Unlock()

	if wasDirty {
		v.writer.Enqueue(h.path)
	}
	return err
}

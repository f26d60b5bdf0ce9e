// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package materialize

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Materializer copies files and directory subtrees from the backing
// store into the cache on demand. A single instance is shared by the
// read-only view (file-only copy-in) and the read-write view
// (file-or-subtree copy-in), so its mutex serializes every copy-in
// the mount ever performs.
type Materializer struct {
	backingRoot string
	cacheRoot   string

	mu sync.Mutex
}

// New returns a Materializer copying between backingRoot and
// cacheRoot.
func New(backingRoot, cacheRoot string) *Materializer {
	return &Materializer{backingRoot: backingRoot, cacheRoot: cacheRoot}
}

func (m *Materializer) backingPath(p string) string {
	return filepath.Join(m.backingRoot, filepath.FromSlash(p))
}

func (m *Materializer) cachePath(p string) string {
	return filepath.Join(m.cacheRoot, filepath.FromSlash(p))
}

// EnsureFile copies backing/p to cache/p, creating parent
// directories as needed, if cache/p does not already exist. It is
// used by the read-only view, which never materializes whole
// subtrees — only the individual files it is asked to read.
func (m *Materializer) EnsureFile(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cache := m.cachePath(p)
	if _, err := os.Lstat(cache); err == nil {
		return nil
	}
	backing := m.backingPath(p)
	if err := os.MkdirAll(filepath.Dir(cache), 0o755); err != nil {
		return fmt.Errorf("create parent of %q: %w", cache, err)
	}
	return copyFilePreservingMtime(backing, cache)
}

// EnsureFileMaterialized implements the read-write view's
// materialization primitive of the same name: if cache/p already
// exists, it is returned as-is; otherwise backing/p is copied in —
// a single file copy for a regular file, or a full recursive subtree
// copy (preserving mtimes on every node, including symlinks) for a
// directory. If backing/p does not exist at all, cache/p is returned
// unmaterialized so the caller can create it fresh.
func (m *Materializer) EnsureFileMaterialized(p string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureFileMaterializedLocked(p)
}

func (m *Materializer) ensureFileMaterializedLocked(p string) (string, error) {
	cache := m.cachePath(p)
	if _, err := os.Lstat(cache); err == nil {
		return cache, nil
	}

	backing := m.backingPath(p)
	info, err := os.Lstat(backing)
	if err != nil {
		if os.IsNotExist(err) {
			return cache, nil
		}
		return cache, fmt.Errorf("stat %q: %w", backing, err)
	}

	if err := os.MkdirAll(filepath.Dir(cache), 0o755); err != nil {
		return cache, fmt.Errorf("create parent of %q: %w", cache, err)
	}

	if info.IsDir() {
		if err := copySubtreePreservingMtimes(backing, cache); err != nil {
			return cache, err
		}
		return cache, nil
	}
	if err := copyNodePreservingMtime(backing, cache, info); err != nil {
		return cache, err
	}
	return cache, nil
}

// EnsureParentMaterialized materializes the parent directory of p,
// so that a subsequent create/mkdir/mknod/symlink/link of p itself
// has somewhere to land in the cache.
func (m *Materializer) EnsureParentMaterialized(p string) (string, error) {
	parent := filepath.ToSlash(filepath.Dir(filepath.FromSlash(p)))
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureFileMaterializedLocked(parent)
}

func copyFilePreservingMtime(src, dst string) error {
	info, err := os.Lstat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat %q: %w", src, err)
	}
	return copyNodePreservingMtime(src, dst, info)
}

func copyNodePreservingMtime(src, dst string, info fs.FileInfo) error {
	switch {
	case info.Mode()&fs.ModeSymlink != 0:
		target, err := os.Readlink(src)
		if err != nil {
			return fmt.Errorf("readlink %q: %w", src, err)
		}
		if err := os.Symlink(target, dst); err != nil && !os.IsExist(err) {
			return fmt.Errorf("symlink %q: %w", dst, err)
		}
	case info.Mode().IsDir():
		if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
			return fmt.Errorf("mkdir %q: %w", dst, err)
		}
	default:
		if err := copyFileBytes(src, dst, info); err != nil {
			return err
		}
	}
	return preserveMtime(dst, info)
}

func copyFileBytes(src, dst string, info fs.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %q: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %q: %w", dst, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy %q to %q: %w", src, dst, err)
	}
	return out.Close()
}

// preserveMtime sets dst's modification time to match the mtime
// recorded in info, without following dst if it is itself a symlink
// — the one thing an ordinary os.Chtimes cannot do, which is why
// this goes through a raw syscall instead.
func preserveMtime(dst string, info fs.FileInfo) error {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return os.Chtimes(dst, info.ModTime(), info.ModTime())
	}
	times := []unix.Timespec{
		unix.NsecToTimespec(st.Atim.Nano()),
		unix.NsecToTimespec(st.Mtim.Nano()),
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, dst, times, unix.AT_SYMLINK_NOFOLLOW)
}

// copySubtreePreservingMtimes recursively copies every node under
// src into dst, preserving mtimes bottom-up-insensitive order —
// directory mtimes are set after their contents are copied, since
// writing into a directory updates its own mtime.
func copySubtreePreservingMtimes(src, dst string) error {
	type pending struct {
		path string
		info fs.FileInfo
	}
	var dirs []pending

	err := filepath.Walk(src, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if rel == "." {
			target = dst
		}

		if info.Mode().IsDir() {
			if err := os.MkdirAll(target, info.Mode().Perm()); err != nil {
				return fmt.Errorf("mkdir %q: %w", target, err)
			}
			dirs = append(dirs, pending{target, info})
			return nil
		}
		return copyNodePreservingMtime(path, target, info)
	})
	if err != nil {
		return fmt.Errorf("copy subtree %q to %q: %w", src, dst, err)
	}

	// Re-apply directory mtimes last, in reverse (deepest first), so
	// that creating deeper entries doesn't bump a shallower
	// directory's mtime after it was already restored.
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := preserveMtime(dirs[i].path, dirs[i].info); err != nil {
			return fmt.Errorf("preserve mtime on %q: %w", dirs[i].path, err)
		}
	}
	return nil
}

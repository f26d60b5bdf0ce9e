// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package metadata

import (
	"bytes"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// DirEntry is one memoized directory entry: enough of its stat
// result to answer d_type-style queries without a second syscall.
type DirEntry struct {
	Name string
	Ino  uint64
	Mode uint32 // the file-type bits (syscall.S_IFMT mask)
}

// entry holds the one-shot memoized results for a single relative
// path. Every field follows the same shape: a sentinel "not yet
// resolved" state, and a result that is computed once and never
// changed afterward.
type entry struct {
	mu sync.Mutex

	statDone bool
	stat     syscall.Stat_t
	statErr  error

	linkDone bool
	link     []byte
	linkErr  error

	access map[uint32]error

	listDone bool
	list     []DirEntry
	listErr  error
}

// Cache is the per-relative-path metadata memoization table. The
// zero value is not usable; construct with [New].
//
// Errors are memoized exactly like successes: a path whose first
// lstat failed with ENOENT keeps returning ENOENT for the life of the
// Cache, even if the file later appears in the backing store.
type Cache struct {
	backingRoot string

	mu      sync.Mutex
	entries map[string]*entry
}

// New returns a Cache resolving relative paths against backingRoot.
func New(backingRoot string) *Cache {
	return &Cache{
		backingRoot: backingRoot,
		entries:     make(map[string]*entry),
	}
}

// get returns the entry for p, creating it if this is the first time
// p has been queried. The map lock is held only for the find-or-
// insert; all per-path work happens after it is released.
func (c *Cache) get(p string) *entry {
	c.mu.Lock()
	e, ok := c.entries[p]
	if !ok {
		e = &entry{}
		c.entries[p] = e
	}
	c.mu.Unlock()
	return e
}

func (c *Cache) backingPath(p string) string {
	return c.backingRoot + p
}

// Getattr returns the lstat result for p, resolving it against the
// backing store on the first call for that path and replaying the
// memoized struct on every subsequent call — including calls that
// raced with the first and arrived while it was still in flight.
func (c *Cache) Getattr(p string) (syscall.Stat_t, error) {
	e := c.get(p)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.statDone {
		e.statErr = syscall.Lstat(c.backingPath(p), &e.stat)
		e.statDone = true
	}
	return e.stat, e.statErr
}

// Access memoizes the result of access(path, mask) independently per
// mask; it does not attempt to derive one mask's answer from another.
func (c *Cache) Access(p string, mask uint32) error {
	e := c.get(p)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.access == nil {
		e.access = make(map[uint32]error)
	}
	if err, ok := e.access[mask]; ok {
		return err
	}
	err := syscall.Access(c.backingPath(p), mask)
	e.access[mask] = err
	return err
}

// Readlink returns the memoized symlink target for p.
func (c *Cache) Readlink(p string) ([]byte, error) {
	e := c.get(p)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.linkDone {
		buf := make([]byte, 4096)
		n, err := syscall.Readlink(c.backingPath(p), buf)
		if err != nil {
			e.linkErr = err
		} else {
			e.link = append([]byte(nil), buf[:n]...)
		}
		e.linkDone = true
	}
	return e.link, e.linkErr
}

// List returns the memoized directory listing for p.
func (c *Cache) List(p string) ([]DirEntry, error) {
	e := c.get(p)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.listDone {
		e.list, e.listErr = c.readDir(p)
		e.listDone = true
	}
	return e.list, e.listErr
}

// readDir lists the backing directory for p directly off the raw
// getdents(2) buffer, deriving each child's inode number and file-
// type bits from d_ino/d_type rather than an lstat per entry — a
// directory with a thousand children costs one syscall loop here, not
// a thousand. Filesystems that leave d_type unset (DT_UNKNOWN; some
// overlay and network filesystems don't populate it) fall back to a
// single lstat for that entry, and the result is folded into the
// child's own cache entry so a later Getattr on it replays this
// listing's stat instead of issuing a second one.
func (c *Cache) readDir(p string) ([]DirEntry, error) {
	fd, err := syscall.Open(c.backingPath(p), syscall.O_RDONLY|syscall.O_DIRECTORY, 0)
	if err != nil {
		return nil, err
	}
	defer syscall.Close(fd)

	var result []DirEntry
	buf := make([]byte, 8192)
	for {
		n, err := unix.Getdents(fd, buf)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			break
		}

		offset := 0
		for offset < n {
			// linux_dirent64: d_ino(8) d_off(8) d_reclen(2) d_type(1) d_name[].
			reclen := *(*uint16)(unsafe.Pointer(&buf[offset+16]))
			if reclen == 0 {
				break
			}
			ino := *(*uint64)(unsafe.Pointer(&buf[offset]))
			dtype := buf[offset+18]

			nameBytes := buf[offset+19 : offset+int(reclen)]
			if nul := bytes.IndexByte(nameBytes, 0); nul >= 0 {
				nameBytes = nameBytes[:nul]
			}
			name := string(nameBytes)
			offset += int(reclen)

			if name == "." || name == ".." {
				continue
			}

			mode, ok := dTypeToIfmt(dtype)
			if !ok {
				st, statErr := c.Getattr(c.childPath(p, name))
				if statErr != nil {
					continue
				}
				ino = st.Ino
				mode = st.Mode & syscall.S_IFMT
			}

			result = append(result, DirEntry{Name: name, Ino: ino, Mode: mode})
		}
	}
	return result, nil
}

// dTypeToIfmt translates a getdents d_type byte into the S_IFMT
// file-type bits syscall.Stat_t.Mode carries. Linux derives d_type
// from the same bits in the first place (d_type == (mode&S_IFMT)>>12
// for every type it bothers to report), so the translation is just
// the inverse shift. DT_UNKNOWN reports ok=false so the caller can
// fall back to an lstat.
func dTypeToIfmt(dtype byte) (mode uint32, ok bool) {
	if dtype == 0 { // DT_UNKNOWN
		return 0, false
	}
	return uint32(dtype) << 12, true
}

// childPath joins a directory's relative path with a child name,
// producing the same slash-rooted form every other relative path in
// this package uses.
func (c *Cache) childPath(dir, name string) string {
	if dir == "/" {
		return "/" + name
	}
	return dir + "/" + name
}

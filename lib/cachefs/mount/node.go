// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"context"
	"syscall"

	fusefs "github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/cachefs-io/cachefs/lib/cachefs/readwrite"
)

// node is the single inode type serving every path in the mount. It
// carries no path of its own — relPath recomputes it on every call
// from the inode tree's own parent/child structure — and delegates
// all real work to the dispatcher.
type node struct {
	fusefs.Inode
	disp *Dispatcher
}

var (
	_ = (fusefs.NodeLookuper)((*node)(nil))
	_ = (fusefs.NodeGetattrer)((*node)(nil))
	_ = (fusefs.NodeReaddirer)((*node)(nil))
	_ = (fusefs.NodeOpener)((*node)(nil))
	_ = (fusefs.NodeCreater)((*node)(nil))
	_ = (fusefs.NodeMknoder)((*node)(nil))
	_ = (fusefs.NodeMkdirer)((*node)(nil))
	_ = (fusefs.NodeUnlinker)((*node)(nil))
	_ = (fusefs.NodeRmdirer)((*node)(nil))
	_ = (fusefs.NodeRenamer)((*node)(nil))
	_ = (fusefs.NodeSymlinker)((*node)(nil))
	_ = (fusefs.NodeReadlinker)((*node)(nil))
	_ = (fusefs.NodeLinker)((*node)(nil))
	_ = (fusefs.NodeSetattrer)((*node)(nil))
	_ = (fusefs.NodeStatfser)((*node)(nil))
	_ = (fusefs.NodeAccesser)((*node)(nil))
)

// relPath returns this node's slash-rooted path relative to the
// mount root, e.g. "/" or "/a/b". It is always recomputed from the
// inode tree rather than cached on the node, since the tree — not
// this package — owns the authoritative parent/child structure.
func (n *node) relPath() string {
	p := n.Path(n.Root())
	if p == "" {
		return "/"
	}
	return "/" + p
}

func (n *node) childPath(name string) string {
	p := n.relPath()
	if p == "/" {
		return "/" + name
	}
	return p + "/" + name
}

func (n *node) newChild(ctx context.Context, st *syscall.Stat_t) *fusefs.Inode {
	child := &node{disp: n.disp}
	return n.NewInode(ctx, child, fusefs.StableAttr{Mode: st.Mode & syscall.S_IFMT, Ino: st.Ino})
}

func (n *node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	p := n.childPath(name)
	st, err := n.disp.viewFor("lookup", p).Getattr(p)
	if err != nil {
		return nil, fusefs.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	return n.newChild(ctx, &st), 0
}

func (n *node) Getattr(ctx context.Context, fh fusefs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	p := n.relPath()
	st, err := n.disp.viewFor("getattr", p).Getattr(p)
	if err != nil {
		return fusefs.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	return 0
}

func (n *node) Access(ctx context.Context, mask uint32) syscall.Errno {
	p := n.relPath()
	return fusefs.ToErrno(n.disp.viewFor("access", p).Access(p, mask))
}

func (n *node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	p := n.relPath()
	buf, err := n.disp.viewFor("readlink", p).Readlink(p)
	if err != nil {
		return nil, fusefs.ToErrno(err)
	}
	return buf, 0
}

func (n *node) Readdir(ctx context.Context) (fusefs.DirStream, syscall.Errno) {
	p := n.relPath()
	entries, err := n.disp.viewFor("readdir", p).List(p)
	if err != nil {
		return nil, fusefs.ToErrno(err)
	}
	result := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		result = append(result, fuse.DirEntry{Name: e.Name, Ino: e.Ino, Mode: e.Mode})
	}
	return fusefs.NewListDirStream(result), 0
}

func (n *node) Mknod(ctx context.Context, name string, mode, dev uint32, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	p := n.childPath(name)
	v := n.disp.viewFor("mknod", p)
	if err := v.Mknod(p, mode, dev); err != nil {
		return nil, fusefs.ToErrno(err)
	}
	st, err := v.Getattr(p)
	if err != nil {
		return nil, fusefs.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	return n.newChild(ctx, &st), 0
}

func (n *node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	p := n.childPath(name)
	v := n.disp.viewFor("mkdir", p)
	if err := v.Mkdir(p, mode); err != nil {
		return nil, fusefs.ToErrno(err)
	}
	st, err := v.Getattr(p)
	if err != nil {
		return nil, fusefs.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	return n.newChild(ctx, &st), 0
}

func (n *node) Unlink(ctx context.Context, name string) syscall.Errno {
	p := n.childPath(name)
	return fusefs.ToErrno(n.disp.viewFor("unlink", p).Unlink(p))
}

func (n *node) Rmdir(ctx context.Context, name string) syscall.Errno {
	p := n.childPath(name)
	return fusefs.ToErrno(n.disp.viewFor("rmdir", p).Rmdir(p))
}

func (n *node) Symlink(ctx context.Context, target, name string, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	p := n.childPath(name)
	v := n.disp.viewFor("symlink", p)
	if err := v.Symlink(target, p); err != nil {
		return nil, fusefs.ToErrno(err)
	}
	st, err := v.Getattr(p)
	if err != nil {
		return nil, fusefs.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	return n.newChild(ctx, &st), 0
}

// Rename routes on the source path's view: a rename originating in
// the read-only tree is always rejected, regardless of where it
// would land, since the operation as a whole never touches a
// materialized read-write copy until the source side permits it.
func (n *node) Rename(ctx context.Context, name string, newParent fusefs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	from := n.childPath(name)
	np := newParent.(*node)
	to := np.childPath(newName)
	return fusefs.ToErrno(n.disp.viewFor("rename", from).Rename(from, to, flags))
}

func (n *node) Link(ctx context.Context, target fusefs.InodeEmbedder, name string, out *fuse.EntryOut) (*fusefs.Inode, syscall.Errno) {
	targetPath := target.(*node).relPath()
	p := n.childPath(name)
	v := n.disp.viewFor("link", p)
	if err := v.Link(targetPath, p); err != nil {
		return nil, fusefs.ToErrno(err)
	}
	st, err := v.Getattr(p)
	if err != nil {
		return nil, fusefs.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	return n.newChild(ctx, &st), 0
}

// Setattr covers chmod, chown, and truncate. Timestamp changes are
// not forwarded to either tree — neither view exposes an operation
// for them — so a utimes call succeeds against the kernel's own
// notion of the attribute without altering either the cache or
// backing file's actual mtime.
func (n *node) Setattr(ctx context.Context, fh fusefs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	p := n.relPath()
	v := n.disp.viewFor("setattr", p)

	if mode, ok := in.GetMode(); ok {
		if err := v.Chmod(p, mode); err != nil {
			return fusefs.ToErrno(err)
		}
	}
	if uid, ok := in.GetUID(); ok {
		gid := -1
		if g, gok := in.GetGID(); gok {
			gid = int(g)
		}
		if err := v.Chown(p, int(uid), gid); err != nil {
			return fusefs.ToErrno(err)
		}
	} else if gid, ok := in.GetGID(); ok {
		if err := v.Chown(p, -1, int(gid)); err != nil {
			return fusefs.ToErrno(err)
		}
	}
	if size, ok := in.GetSize(); ok {
		if !n.disp.roots.IsReadWrite(p) {
			return syscall.EROFS
		}
		var h *readwrite.Handle
		if fhw, ok := fh.(*fileHandle); ok && fhw.rw {
			h = fhw.rwHandle
		}
		if err := n.disp.readwrite.Truncate(p, int64(size), h); err != nil {
			return fusefs.ToErrno(err)
		}
	}

	st, err := v.Getattr(p)
	if err != nil {
		return fusefs.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	return 0
}

func (n *node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	p := n.relPath()
	var st syscall.Statfs_t
	if err := syscall.Statfs(n.disp.roots.BackingPath(p), &st); err != nil {
		return fusefs.ToErrno(err)
	}
	out.FromStatfsT(&st)
	return 0
}

func (n *node) Open(ctx context.Context, flags uint32) (fusefs.FileHandle, uint32, syscall.Errno) {
	p := n.relPath()
	if n.disp.roots.IsReadWrite(p) {
		h, err := n.disp.readwrite.Open(p, int(flags))
		if err != nil {
			return nil, 0, fusefs.ToErrno(err)
		}
		return &fileHandle{disp: n.disp, path: p, rw: true, rwHandle: h}, 0, 0
	}
	h, err := n.disp.readonly.Open(p, int(flags))
	if err != nil {
		return nil, 0, fusefs.ToErrno(err)
	}
	return &fileHandle{disp: n.disp, path: p, rw: false, roHandle: h}, 0, 0
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fusefs.Inode, fusefs.FileHandle, uint32, syscall.Errno) {
	p := n.childPath(name)
	if !n.disp.roots.IsReadWrite(p) {
		return nil, nil, 0, syscall.EROFS
	}
	h, err := n.disp.readwrite.Create(p, int(flags), mode)
	if err != nil {
		return nil, nil, 0, fusefs.ToErrno(err)
	}
	st, err := n.disp.readwrite.Getattr(p)
	if err != nil {
		return nil, nil, 0, fusefs.ToErrno(err)
	}
	out.Attr.FromStat(&st)
	child := n.newChild(ctx, &st)
	return child, &fileHandle{disp: n.disp, path: p, rw: true, rwHandle: h}, 0, 0
}

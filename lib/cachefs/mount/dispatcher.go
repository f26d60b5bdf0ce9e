// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"log/slog"
	"syscall"

	"github.com/cachefs-io/cachefs/lib/cachefs/materialize"
	"github.com/cachefs-io/cachefs/lib/cachefs/metadata"
	"github.com/cachefs-io/cachefs/lib/cachefs/readonly"
	"github.com/cachefs-io/cachefs/lib/cachefs/readwrite"
	"github.com/cachefs-io/cachefs/lib/cachefs/roots"
	"github.com/cachefs-io/cachefs/lib/cachefs/writer"
)

// view is the capability set shared by the read-only and read-write
// views for every operation that needs no open file handle. The
// dispatcher picks one of the two concrete views per call by path
// and invokes it through this interface, rather than through a type
// switch or an inheritance hierarchy.
type view interface {
	Getattr(p string) (syscall.Stat_t, error)
	Access(p string, mask uint32) error
	Readlink(p string) ([]byte, error)
	List(p string) ([]metadata.DirEntry, error)
	Mknod(p string, mode, dev uint32) error
	Mkdir(p string, mode uint32) error
	Unlink(p string) error
	Rmdir(p string) error
	Symlink(target, p string) error
	Rename(from, to string, flags uint32) error
	Link(target, p string) error
	Chmod(p string, mode uint32) error
	Chown(p string, uid, gid int) error
}

var (
	_ view = (*readonly.View)(nil)
	_ view = (*readwrite.View)(nil)
)

// Dispatcher is the stateless façade routing every filesystem
// callback to the view covering its path. "Stateless" here means it
// owns no data of its own beyond the routing predicate and pointers
// to the components that do — it never itself holds a lock across a
// call.
type Dispatcher struct {
	roots        *roots.Roots
	metadata     *metadata.Cache
	materializer *materialize.Materializer
	writer       *writer.Writer
	readonly     *readonly.View
	readwrite    *readwrite.View
	logger       *slog.Logger
}

// viewFor returns the view responsible for the relative path p,
// routing the call identified by op. At debug level every routed
// call is logged with its path and the view it was sent to; this is
// invaluable when diagnosing a misbehaving routing predicate but far
// too noisy for normal operation, so it stays off the Info default.
func (d *Dispatcher) viewFor(op, p string) view {
	if d.roots.IsReadWrite(p) {
		d.logger.Debug("routed operation", "op", op, "path", p, "view", "readwrite")
		return d.readwrite
	}
	d.logger.Debug("routed operation", "op", op, "path", p, "view", "readonly")
	return d.readonly
}

// Shutdown flushes any pending asynchronous writes and stops the
// background writer. Call it before unmounting, so pending writes
// still land while the mount is up.
func (d *Dispatcher) Shutdown() {
	d.writer.Flush()
	d.writer.Stop()
}

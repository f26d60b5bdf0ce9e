// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package readonly

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/cachefs-io/cachefs/lib/cachefs/materialize"
	"github.com/cachefs-io/cachefs/lib/cachefs/metadata"
	"github.com/cachefs-io/cachefs/lib/cachefs/roots"
)

func newTestView(t *testing.T) (*View, string, string) {
	t.Helper()
	backing := t.TempDir()
	cache := t.TempDir()
	rw := filepath.Join(backing, "rw")
	if err := os.Mkdir(rw, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	r, err := roots.New(backing, cache, rw)
	if err != nil {
		t.Fatalf("roots.New: %v", err)
	}
	v := New(r, metadata.New(backing), materialize.New(backing, cache))
	return v, backing, cache
}

func TestOpenAndReadMaterializesOnFirstAccess(t *testing.T) {
	v, backing, _ := newTestView(t)
	if err := os.WriteFile(filepath.Join(backing, "hello.txt"), []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h, err := v.Open("/hello.txt", syscall.O_RDONLY)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer v.Release(h)

	buf := make([]byte, 32)
	n, err := v.Read(h, buf, 0)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "hello world" {
		t.Errorf("Read = %q", buf[:n])
	}
}

func TestMutatingOperationsReturnEROFS(t *testing.T) {
	v, _, _ := newTestView(t)

	if err := v.Mkdir("/x", 0o755); err != ErrReadOnly {
		t.Errorf("Mkdir error = %v, want ErrReadOnly", err)
	}
	if err := v.Unlink("/x"); err != ErrReadOnly {
		t.Errorf("Unlink error = %v, want ErrReadOnly", err)
	}
	if _, err := v.Create("/x", syscall.O_CREAT, 0o644); err != ErrReadOnly {
		t.Errorf("Create error = %v, want ErrReadOnly", err)
	}
	if _, err := v.Write(nil, []byte("x"), 0); err != ErrReadOnly {
		t.Errorf("Write error = %v, want ErrReadOnly", err)
	}
}

func TestGetattrDoesNotMaterialize(t *testing.T) {
	v, backing, cache := newTestView(t)
	if err := os.WriteFile(filepath.Join(backing, "f"), []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := v.Getattr("/f"); err != nil {
		t.Fatalf("Getattr: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cache, "f")); !os.IsNotExist(err) {
		t.Errorf("Getattr should not materialize a cache copy, got err=%v", err)
	}
}

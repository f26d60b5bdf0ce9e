// Copyright 2026 The cachefs Authors
// SPDX-License-Identifier: Apache-2.0

package mount

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fuseAvailable checks whether /dev/fuse is accessible. Tests that
// need a real FUSE mount call this and skip if the device is absent.
func fuseAvailable(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("/dev/fuse"); err != nil {
		t.Skip("skipping: /dev/fuse not available")
	}
}

// testMount lays out a backing tree with a "rw" subdirectory, mounts
// the overlay over it, and returns the mountpoint, the backing root,
// and the cache root for direct inspection.
func testMount(t *testing.T) (mountpoint, backing, cache string) {
	t.Helper()
	fuseAvailable(t)

	root := t.TempDir()
	backing = filepath.Join(root, "backing")
	cache = filepath.Join(root, "cache")
	mountpoint = filepath.Join(root, "mnt")

	if err := os.MkdirAll(filepath.Join(backing, "rw"), 0o755); err != nil {
		t.Fatalf("MkdirAll backing/rw: %v", err)
	}
	if err := os.MkdirAll(cache, 0o755); err != nil {
		t.Fatalf("MkdirAll cache: %v", err)
	}

	server, disp, err := Mount(Options{
		Mountpoint: mountpoint,
		Backing:    backing,
		Cache:      cache,
		RW:         filepath.Join(backing, "rw"),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	t.Cleanup(func() {
		disp.Shutdown()
		if err := server.Unmount(); err != nil {
			t.Errorf("Unmount: %v", err)
		}
	})

	go server.Serve()
	if err := server.WaitMount(); err != nil {
		t.Fatalf("WaitMount: %v", err)
	}

	return mountpoint, backing, cache
}

func TestMountReadOnlyPassthroughReadsBackingContent(t *testing.T) {
	mountpoint, backing, _ := testMount(t)

	if err := os.WriteFile(filepath.Join(backing, "greeting.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(mountpoint, "greeting.txt"))
	if err != nil {
		t.Fatalf("ReadFile through mount: %v", err)
	}
	if !bytes.Equal(got, []byte("hello")) {
		t.Errorf("content = %q, want %q", got, "hello")
	}
}

func TestMountReadOnlySubtreeRejectsWrites(t *testing.T) {
	mountpoint, _, _ := testMount(t)

	err := os.WriteFile(filepath.Join(mountpoint, "blocked.txt"), []byte("x"), 0o644)
	if err == nil {
		t.Fatal("expected error writing outside the read-write subtree")
	}
}

func TestMountReadWriteCreateThenReadBack(t *testing.T) {
	mountpoint, _, _ := testMount(t)

	path := filepath.Join(mountpoint, "rw", "note.txt")
	if err := os.WriteFile(path, []byte("written through the mount"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, []byte("written through the mount")) {
		t.Errorf("content = %q", got)
	}
}

func TestMountReadWritePropagatesToBackingAfterClose(t *testing.T) {
	mountpoint, backing, _ := testMount(t)

	path := filepath.Join(mountpoint, "rw", "synced.txt")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.WriteString("propagate me"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The release-triggered background sync is asynchronous; stat in
	// a loop rather than assuming it has already landed.
	backingPath := filepath.Join(backing, "rw", "synced.txt")
	deadlineReads := 100
	var got []byte
	for i := 0; i < deadlineReads; i++ {
		got, err = os.ReadFile(backingPath)
		if err == nil && len(got) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if string(got) != "propagate me" {
		t.Errorf("backing content = %q, want %q", got, "propagate me")
	}
}

func TestMountDirectoryListingShowsBothTrees(t *testing.T) {
	mountpoint, backing, _ := testMount(t)

	if err := os.WriteFile(filepath.Join(backing, "top.txt"), []byte("top"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	entries, err := os.ReadDir(mountpoint)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name()] = true
	}
	if !names["top.txt"] {
		t.Error("missing top.txt from backing root")
	}
	if !names["rw"] {
		t.Error("missing rw subtree")
	}
}

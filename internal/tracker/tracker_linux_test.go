//go:build linux

package tracker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestLinuxTracker_DetectsRename(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "a.txt")
	newPath := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(oldPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	tr := NewLinuxTracker()
	if err := tr.Track(oldPath); err != nil {
		t.Fatalf("Track: %v", err)
	}
	defer tr.Stop()

	var mu sync.Mutex
	var gotOld, gotNew string
	moved := make(chan struct{}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := tr.Start(ctx, func(o, n string) {
		mu.Lock()
		gotOld, gotNew = o, n
		mu.Unlock()
		select {
		case moved <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		t.Fatalf("Rename: %v", err)
	}

	select {
	case <-moved:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for move detection")
	}

	mu.Lock()
	defer mu.Unlock()
	if gotOld != oldPath {
		t.Errorf("gotOld = %q, want %q", gotOld, oldPath)
	}
	if gotNew != newPath {
		t.Errorf("gotNew = %q, want %q", gotNew, newPath)
	}
}

func TestLinuxTracker_TrackIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("x"), 0o644)

	tr := NewLinuxTracker()
	defer tr.Stop()
	if err := tr.Track(path); err != nil {
		t.Fatalf("Track 1: %v", err)
	}
	if err := tr.Track(path); err != nil {
		t.Fatalf("Track 2: %v", err)
	}
	if len(tr.files) != 1 {
		t.Errorf("files = %d, want 1", len(tr.files))
	}
}

func TestLinuxTracker_Untrack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("x"), 0o644)

	tr := NewLinuxTracker()
	tr.Track(path)
	tr.Untrack(path)

	if len(tr.files) != 0 {
		t.Errorf("files = %d, want 0 after Untrack", len(tr.files))
	}
}

//go:build linux

package tracker

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

type trackedFile struct {
	file          *os.File
	lastKnownPath string
}

// LinuxTracker tracks renames via an open file descriptor whose
// /proc/self/fd/<fd> symlink target updates automatically when the
// underlying inode is renamed, even across directories on the same
// filesystem.
type LinuxTracker struct {
	mu     sync.Mutex
	files  map[string]*trackedFile
	cancel context.CancelFunc
	done   chan struct{}
}

// NewLinuxTracker creates an empty tracker.
func NewLinuxTracker() *LinuxTracker {
	return &LinuxTracker{files: make(map[string]*trackedFile)}
}

func (t *LinuxTracker) Track(path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.files[path]; ok {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("tracker: opening %s: %w", path, err)
	}
	t.files[path] = &trackedFile{file: f, lastKnownPath: path}
	return nil
}

func (t *LinuxTracker) Untrack(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if tf, ok := t.files[path]; ok {
		tf.file.Close()
		delete(t.files, path)
	}
}

func (t *LinuxTracker) Start(ctx context.Context, onMoved MovedFunc) error {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.poll(onMoved)
			}
		}
	}()
	return nil
}

func (t *LinuxTracker) Stop() {
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for key, tf := range t.files {
		tf.file.Close()
		delete(t.files, key)
	}
}

func (t *LinuxTracker) poll(onMoved MovedFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tf := range t.files {
		fdPath := fmt.Sprintf("/proc/self/fd/%d", tf.file.Fd())
		current, err := os.Readlink(fdPath)
		if err != nil || strings.HasSuffix(current, " (deleted)") {
			// The link is unreadable, or the kernel marks the file as
			// deleted; leave it for the dirwatch delete handler to
			// report instead of guessing here.
			continue
		}
		if !strings.EqualFold(current, tf.lastKnownPath) {
			old := tf.lastKnownPath
			tf.lastKnownPath = current
			onMoved(old, current)
		}
	}
}

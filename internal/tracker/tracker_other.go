//go:build !linux

package tracker

import "context"

// OtherTracker is a no-op stand-in for platforms without /proc/self/fd
// symlink resolution. Directory-level rename detection still works via
// dirwatch; only the out-from-under-an-open-handle case goes unreported.
type OtherTracker struct{}

// NewLinuxTracker keeps the constructor name stable across platforms so
// callers don't need a build-tagged call site.
func NewLinuxTracker() *OtherTracker { return &OtherTracker{} }

func (t *OtherTracker) Track(path string) error { return nil }

func (t *OtherTracker) Untrack(path string) {}

func (t *OtherTracker) Start(ctx context.Context, onMoved MovedFunc) error {
	return nil
}

func (t *OtherTracker) Stop() {}

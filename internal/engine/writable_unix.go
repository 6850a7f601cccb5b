//go:build unix

package engine

import "golang.org/x/sys/unix"

// writable reports whether path is currently writable by this process,
// used by the Restore Protocol to avoid burning a retry attempt against
// a file a concurrent encryptor still holds locked down (e.g. made
// read-only mid-attack, or sitting on a read-only bind mount).
func writable(path string) bool {
	return unix.Access(path, unix.W_OK) == nil
}

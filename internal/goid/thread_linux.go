//go:build linux

package goid

import "golang.org/x/sys/unix"

// ThreadID returns the OS thread id of the calling goroutine. It is only
// stable while the goroutine is locked to its thread.
func ThreadID() int64 {
	return int64(unix.Gettid())
}

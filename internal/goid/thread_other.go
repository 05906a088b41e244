//go:build !linux

package goid

// ThreadID falls back to the goroutine id where no portable thread id exists.
func ThreadID() int64 {
	return int64(Current())
}

// Package goid reports the identity of the calling goroutine and OS thread.
package goid

import "runtime"

// Current returns the id of the calling goroutine, parsed from the
// "goroutine 123 [running]:" header of its stack trace.
func Current() uint64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	var id uint64
	for i := len("goroutine "); i < len(b); i++ {
		if b[i] >= '0' && b[i] <= '9' {
			id = id*10 + uint64(b[i]-'0')
		} else {
			break
		}
	}
	return id
}

// Package futex wraps the Linux futex syscall as a cross-process wait/wake
// primitive. A futex word embedded in a shared-memory segment stands in for
// the named kernel mutex/semaphore objects the queue is built on top of.
package futex

import "errors"

// ErrTimeout is returned by WaitTimeout when the wait deadline elapses
// before the word changes or a waker arrives.
var ErrTimeout = errors.New("futex: wait timed out")

// ErrUnsupported is returned on platforms without a futex syscall.
var ErrUnsupported = errors.New("futex: not supported on this platform")

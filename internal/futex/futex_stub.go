//go:build !linux || !(amd64 || arm64)

package futex

// Wait is not supported on this platform; callers fall back to the
// flock-backed named mutex and the backoff-spinning named semaphore.
func Wait(addr *uint32, val uint32) error {
	return ErrUnsupported
}

// WaitTimeout is not supported on this platform.
func WaitTimeout(addr *uint32, val uint32, timeoutNs int64) error {
	return ErrUnsupported
}

// Wake is not supported on this platform.
func Wake(addr *uint32, n int) (int, error) {
	return 0, ErrUnsupported
}

// Supported reports whether this platform has a real futex implementation.
func Supported() bool { return false }

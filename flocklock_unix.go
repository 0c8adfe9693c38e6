//go:build unix

package shmqueue

import (
	"errors"
	"os"
	"syscall"
)

// flockOpen opens (creating if needed) the lock file backing a named
// mutex's non-Linux fallback path, grounded on
// CreditWorthy-mmapforge/lock_unix.go's flockExclusive/funlock pair.
func flockOpen(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0600)
}

// flockTryLock attempts a non-blocking exclusive flock, returning false
// (not an error) if another process already holds it.
func flockTryLock(f *os.File) (bool, error) {
	err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, syscall.EWOULDBLOCK) {
		return false, nil
	}
	return false, err
}

func flockUnlock(f *os.File) error {
	return syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
}

//go:build !unix

package shmqueue

import (
	"errors"
	"os"
)

var errFlockUnsupported = errors.New("shmqueue: flock fallback unsupported on this platform")

func flockOpen(path string) (*os.File, error) {
	return nil, errFlockUnsupported
}

func flockTryLock(f *os.File) (bool, error) {
	return false, errFlockUnsupported
}

func flockUnlock(f *os.File) error {
	return errFlockUnsupported
}

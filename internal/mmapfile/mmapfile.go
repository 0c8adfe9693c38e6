// Package mmapfile backs a shared-memory segment with an mmap'd regular
// file under /dev/shm (falling back to the OS temp directory), the same
// placement strategy the original shared-memory transport used.
package mmapfile

import "errors"

// ErrExists is returned by Create when a segment with the same name is
// already present.
var ErrExists = errors.New("mmapfile: segment already exists")

// File is a named, memory-mapped region shared by cooperating processes.
type File struct {
	Mem  []byte
	path string
}

// Path returns the backing file's path.
func (f *File) Path() string { return f.path }

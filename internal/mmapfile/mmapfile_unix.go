//go:build unix

package mmapfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const namePrefix = "shmqueue_"

// Create creates and maps a new segment of exactly size bytes, failing if
// one already exists under the same name.
func Create(name string, size int) (*File, error) {
	path := segmentPath(name)
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("mmapfile: create %s: %w", name, ErrExists)
		}
		return nil, fmt.Errorf("mmapfile: create %s: %w", name, err)
	}
	defer fd.Close()

	if err := fd.Truncate(int64(size)); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("mmapfile: truncate %s: %w", name, err)
	}

	mem, err := mmap(fd, size)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("mmapfile: mmap %s: %w", name, err)
	}
	return &File{Mem: mem, path: path}, nil
}

// Open maps an existing segment by name.
func Open(name string) (*File, error) {
	path := segmentPath(name)
	fd, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("mmapfile: open %s: %w", name, err)
	}
	defer fd.Close()

	info, err := fd.Stat()
	if err != nil {
		return nil, fmt.Errorf("mmapfile: stat %s: %w", name, err)
	}

	mem, err := mmap(fd, int(info.Size()))
	if err != nil {
		return nil, fmt.Errorf("mmapfile: mmap %s: %w", name, err)
	}
	return &File{Mem: mem, path: path}, nil
}

// CreateOrOpen creates the segment if absent, otherwise opens the existing
// one. Used by peers that don't know whether they are first to the name.
func CreateOrOpen(name string, size int) (f *File, created bool, err error) {
	f, err = Create(name, size)
	if err == nil {
		return f, true, nil
	}
	if !errors.Is(err, ErrExists) {
		return nil, false, err
	}
	f, err = Open(name)
	return f, false, err
}

// Close unmaps the region. It does not remove the backing file; call
// Remove separately once every process has dropped its mapping.
func (f *File) Close() error {
	if f.Mem == nil {
		return nil
	}
	err := syscall.Munmap(f.Mem)
	f.Mem = nil
	if err != nil {
		return fmt.Errorf("mmapfile: munmap: %w", err)
	}
	return nil
}

// Remove unlinks the named segment. Safe to call after every handle has
// been closed; a no-op if the file is already gone.
func Remove(name string) error {
	err := os.Remove(segmentPath(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("mmapfile: remove %s: %w", name, err)
	}
	return nil
}

func segmentPath(name string) string {
	if devShmAvailable() {
		return filepath.Join("/dev/shm", namePrefix+name)
	}
	return filepath.Join(os.TempDir(), namePrefix+name)
}

func devShmAvailable() bool {
	info, err := os.Stat("/dev/shm")
	return err == nil && info.IsDir()
}

func mmap(fd *os.File, size int) ([]byte, error) {
	return syscall.Mmap(int(fd.Fd()), 0, size, syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
}

//go:build !unix

package mmapfile

import "errors"

// ErrUnsupported is returned on platforms without a unix-style mmap.
var ErrUnsupported = errors.New("mmapfile: not supported on this platform")

func Create(name string, size int) (*File, error)              { return nil, ErrUnsupported }
func Open(name string) (*File, error)                          { return nil, ErrUnsupported }
func CreateOrOpen(name string, size int) (*File, bool, error)  { return nil, false, ErrUnsupported }
func Remove(name string) error                                 { return ErrUnsupported }
func (f *File) Close() error                                   { return ErrUnsupported }

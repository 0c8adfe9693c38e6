package shmqueue

import (
	"fmt"
	"os"
	"unsafe"

	"code.hybscloud.com/shmqueue/internal/mmapfile"
)

// AcquireMode selects how Allocator.Acquire resolves a name against
// existing shared memory.
type AcquireMode int

const (
	// AcquireCreate fails if a segment with this name already exists.
	AcquireCreate AcquireMode = iota
	// AcquireOpen fails if no segment with this name exists yet.
	AcquireOpen
	// AcquireCreateOrOpen creates the segment if absent, else opens it.
	AcquireCreateOrOpen
)

// Allocator is the external shared-memory segment allocator spec.md §6
// names as a consumed collaborator: acquire a named region, map it,
// release the mapping, and unlink the name once no process needs it.
type Allocator interface {
	// Acquire resolves name to a mapped region of at least size bytes.
	// The actual mapped size may exceed size due to page rounding.
	Acquire(name string, size int, mode AcquireMode) (SegmentHandle, error)
}

// SegmentHandle is a live mapping returned by Allocator.Acquire.
type SegmentHandle interface {
	// Mem returns the mapped bytes. Valid until Release is called.
	Mem() []byte
	// Release unmaps this process's view of the segment. It does not
	// remove the name; other processes may still hold it open.
	Release() error
	// Remove unlinks the segment's name. Safe to call after every
	// process has released its handle; a no-op if already removed.
	Remove() error
}

// mmapAllocator is the default Allocator, backing segments with an mmap'd
// file under /dev/shm (falling back to the OS temp directory), grounded on
// the teacher's shm_mmap_unix.go create/open path selection.
type mmapAllocator struct{}

// NewMmapAllocator returns the default shared-memory allocator.
func NewMmapAllocator() Allocator { return mmapAllocator{} }

func (mmapAllocator) Acquire(name string, size int, mode AcquireMode) (SegmentHandle, error) {
	switch mode {
	case AcquireCreate:
		f, err := mmapfile.Create(name, size)
		if err != nil {
			return nil, err
		}
		return &mmapHandle{f: f, name: name}, nil
	case AcquireOpen:
		f, err := mmapfile.Open(name)
		if err != nil {
			return nil, err
		}
		return &mmapHandle{f: f, name: name}, nil
	case AcquireCreateOrOpen:
		f, _, err := mmapfile.CreateOrOpen(name, size)
		if err != nil {
			return nil, err
		}
		return &mmapHandle{f: f, name: name}, nil
	default:
		return nil, fmt.Errorf("shmqueue: unknown acquire mode %d", mode)
	}
}

type mmapHandle struct {
	f    *mmapfile.File
	name string
}

func (h *mmapHandle) Mem() []byte { return h.f.Mem }

func (h *mmapHandle) Release() error { return h.f.Close() }

func (h *mmapHandle) Remove() error {
	err := mmapfile.Remove(h.name)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Segment layout: a small fixed preamble identifying the channel, the
// connection header, a kind-specific ring header, and the slot array.
// Every atomic field is naturally aligned and each region lands on a
// 64-byte boundary, matching the cache-line separation spec.md §6 asks
// for between ct/epoch and the header/slot-array boundary.
const (
	segmentMagic   = "SHMQUEUE"
	segmentVersion = uint32(1)
	preambleSize   = 64
)

// ringVariant identifies which of the four producer/consumer protocols a
// segment was laid out for; stored in the preamble so Open can
// refuse to attach with the wrong ring implementation.
type ringVariant uint32

const (
	variantBroadcastMPMC ringVariant = iota
	variantUnicastSPSC
	variantUnicastSPMC
	variantUnicastMPMC
)

// preamble is the first 64 bytes of every segment.
type preamble struct {
	magic    [8]byte
	version  uint32
	variant  uint32
	capacity uint64
	reserved [40]byte
}

func alignTo64(n uintptr) uintptr { return (n + 63) &^ 63 }

// layout computes the byte offsets of the connection header, the
// kind-specific ring header, and the slot array for a channel of the
// given capacity and per-slot size.
func layout(connHeaderSize, ringHeaderSize, slotSize uintptr, capacity uint64) (total, connOff, hdrOff, slotsOff uintptr) {
	connOff = preambleSize
	hdrOff = alignTo64(connOff + connHeaderSize)
	slotsOff = alignTo64(hdrOff + ringHeaderSize)
	total = slotsOff + slotSize*uintptr(capacity)
	return
}

func writePreamble(mem []byte, variant ringVariant, capacity uint64) {
	p := (*preamble)(unsafe.Pointer(&mem[0]))
	copy(p.magic[:], segmentMagic)
	p.version = segmentVersion
	p.variant = uint32(variant)
	p.capacity = capacity
}

func readPreamble(mem []byte) (*preamble, error) {
	if len(mem) < preambleSize {
		return nil, fmt.Errorf("shmqueue: segment too small (%d bytes)", len(mem))
	}
	p := (*preamble)(unsafe.Pointer(&mem[0]))
	if string(p.magic[:]) != segmentMagic {
		return nil, fmt.Errorf("shmqueue: bad segment magic %q", p.magic[:])
	}
	if p.version != segmentVersion {
		return nil, fmt.Errorf("shmqueue: unsupported segment version %d", p.version)
	}
	return p, nil
}

func connHeaderAt(mem []byte, off uintptr) *connHeader {
	return (*connHeader)(unsafe.Pointer(&mem[off]))
}

func ringHeaderAt(mem []byte, off uintptr) *ringHeader {
	return (*ringHeader)(unsafe.Pointer(&mem[off]))
}

func unicastHeaderAt(mem []byte, off uintptr) *unicastHeader {
	return (*unicastHeader)(unsafe.Pointer(&mem[off]))
}

func slotsAt[S any](mem []byte, off uintptr, capacity uint64) []S {
	ptr := (*S)(unsafe.Pointer(&mem[off]))
	return unsafe.Slice(ptr, capacity)
}

package shmqueue

import (
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"code.hybscloud.com/shmqueue/internal/futex"
)

// semState is the named semaphore's shared-memory footprint: a single
// futex word holding the available-permit count. Post increments and
// wakes; Wait spins down to zero then parks on the word via futex.
type semState struct {
	count uint32
	_     uint32
}

// Semaphore is the named counting semaphore external interface from
// spec.md §6, mirroring original_source/include/libipc/semaphore.h's
// open/wait/post/close/clear_storage shape.
type Semaphore struct {
	handle SegmentHandle
	st     *semState
	valid  bool
}

func semSegmentName(name string) string { return name + "_SEM_" }

// OpenSemaphore opens or creates the named semaphore, initializing its
// count only on first creation (count is ignored when the segment
// already existed, matching the teacher's open-is-idempotent convention).
func OpenSemaphore(name string, count uint32) (*Semaphore, error) {
	if name == "" {
		return nil, errors.New("shmqueue: empty semaphore name")
	}
	h, created, err := mmapCreateOrOpen(semSegmentName(name), int(unsafe.Sizeof(semState{})))
	if err != nil {
		return nil, fmt.Errorf("shmqueue: open semaphore %q: %w", name, err)
	}
	st := (*semState)(unsafe.Pointer(&h.Mem()[0]))
	if created {
		atomic.StoreUint32(&st.count, count)
	}
	return &Semaphore{handle: h, st: st, valid: true}, nil
}

// Valid reports whether the semaphore is still usable.
func (s *Semaphore) Valid() bool { return s != nil && s.valid }

// Wait blocks until a permit is available or timeout elapses (timeout<=0
// waits unboundedly), consuming one permit on success.
func (s *Semaphore) Wait(timeout time.Duration) bool {
	if !s.Valid() {
		return false
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	var b backoff
	for {
		cur := atomic.LoadUint32(&s.st.count)
		if cur > 0 {
			if atomic.CompareAndSwapUint32(&s.st.count, cur, cur-1) {
				return true
			}
			b.spin()
			continue
		}

		var remainNs int64 = -1
		if !deadline.IsZero() {
			remain := time.Until(deadline)
			if remain <= 0 {
				return false
			}
			remainNs = remain.Nanoseconds()
		}
		if err := futex.WaitTimeout(&s.st.count, 0, remainNs); err != nil {
			if errors.Is(err, futex.ErrTimeout) {
				return false
			}
			if errors.Is(err, futex.ErrUnsupported) {
				b.spin()
			}
		}
	}
}

// Post releases n permits and wakes up to n waiters.
func (s *Semaphore) Post(n uint32) {
	if !s.Valid() || n == 0 {
		return
	}
	atomic.AddUint32(&s.st.count, n)
	futex.Wake(&s.st.count, int(n))
}

// Close releases this process's handle on the semaphore.
func (s *Semaphore) Close() error {
	if !s.Valid() {
		return nil
	}
	s.valid = false
	return s.handle.Release()
}

// ClearSemaphoreStorage unlinks the named semaphore's backing segment.
func ClearSemaphoreStorage(name string) error {
	h, err := NewMmapAllocator().Acquire(semSegmentName(name), int(unsafe.Sizeof(semState{})), AcquireOpen)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer h.Release()
	return h.Remove()
}

// mmapCreateOrOpen is a small helper reporting whether it created the
// segment, since Semaphore needs that to decide whether to seed count.
func mmapCreateOrOpen(name string, size int) (SegmentHandle, bool, error) {
	if h, err := NewMmapAllocator().Acquire(name, size, AcquireCreate); err == nil {
		return h, true, nil
	}
	h, err := NewMmapAllocator().Acquire(name, size, AcquireOpen)
	if err != nil {
		return nil, false, err
	}
	return h, false, nil
}

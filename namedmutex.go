package shmqueue

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"code.hybscloud.com/shmqueue/internal/futex"
	"google.golang.org/grpc/grpclog"
)

var mutexLogger = grpclog.Component("shmqueue")

// mutexState is the named mutex's shared-memory footprint: a futex word
// (0 unlocked, 1 locked) plus the owning process's PID, used for
// abandoned-owner recovery. Plain uint32 rather than atomix, because the
// futex syscall needs the word's raw address — the same reason the
// teacher keeps RingHeader.dataSeq/spaceSeq as bare uint32 fields driven
// by sync/atomic instead of a typed atomic wrapper.
type mutexState struct {
	locked   uint32
	ownerPID uint32
}

// Mutex is the named mutex external interface from spec.md §6: open by
// name, lock with a timeout, try_lock, unlock, close, and clear the
// backing storage. It is backed by a futex word embedded in its own tiny
// shared-memory segment, so "named" here means "keyed by the same string
// across processes" rather than a genuine OS kernel object.
type Mutex struct {
	handle SegmentHandle
	st     *mutexState
	valid  bool

	// flockFile backs Lock/Unlock on platforms without a futex, in place
	// of the futex word in st. nil whenever futex.Supported() is true.
	flockFile *os.File
}

func mutexSegmentName(name string) string { return name + "_MUTEX_" }

func lockFilePath(name string) string {
	return filepath.Join(os.TempDir(), "shmqueue_"+name+".lock")
}

// OpenMutex opens or creates the named mutex. name must be non-empty.
func OpenMutex(name string) (*Mutex, error) {
	if name == "" {
		return nil, errors.New("shmqueue: empty mutex name")
	}
	h, err := NewMmapAllocator().Acquire(mutexSegmentName(name), int(unsafe.Sizeof(mutexState{})), AcquireCreateOrOpen)
	if err != nil {
		return nil, fmt.Errorf("shmqueue: open mutex %q: %w", name, err)
	}
	m := &Mutex{handle: h, st: (*mutexState)(unsafe.Pointer(&h.Mem()[0])), valid: true}
	if !futex.Supported() {
		f, err := flockOpen(lockFilePath(name))
		if err != nil {
			h.Release()
			return nil, fmt.Errorf("shmqueue: open lock file for mutex %q: %w", name, err)
		}
		m.flockFile = f
	}
	return m, nil
}

// Valid reports whether the mutex is still usable. Once false (after
// Close), every operation is a no-op returning false, per spec.md §7.
func (m *Mutex) Valid() bool { return m != nil && m.valid }

// Lock blocks until the mutex is acquired or timeout elapses (timeout<=0
// waits unboundedly). If the previous holder's process is no longer
// alive, Lock performs one forced unlock and retries, reporting that
// recovery as a successful acquisition per spec.md §5.
func (m *Mutex) Lock(timeout time.Duration) bool {
	if !m.Valid() {
		return false
	}
	if m.flockFile != nil {
		return m.lockViaFlock(timeout)
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	var b backoff
	for {
		if atomic.CompareAndSwapUint32(&m.st.locked, 0, 1) {
			atomic.StoreUint32(&m.st.ownerPID, uint32(os.Getpid()))
			return true
		}
		if pid := atomic.LoadUint32(&m.st.ownerPID); pid != 0 && !processAlive(pid) {
			if atomic.CompareAndSwapUint32(&m.st.locked, 1, 0) {
				mutexLogger.Warningf("shmqueue: recovered abandoned mutex held by pid %d", pid)
				futex.Wake(&m.st.locked, 1)
			}
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
		if err := futex.WaitTimeout(&m.st.locked, 1, remainNs); err != nil {
			if errors.Is(err, futex.ErrTimeout) {
				return false
			}
			if errors.Is(err, futex.ErrUnsupported) {
				b.spin()
			}
		}
	}
}

// lockViaFlock is the non-Linux fallback: flock gives us abandoned-owner
// recovery for free (the kernel drops the lock when the holder's last fd
// closes, including on crash), at the cost of no real blocking wait, so we
// poll with the same backoff ladder used for contended spins elsewhere.
func (m *Mutex) lockViaFlock(timeout time.Duration) bool {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	var b backoff
	for {
		ok, err := flockTryLock(m.flockFile)
		if err == nil && ok {
			return true
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return false
		}
		b.spin()
	}
}

// TryLock attempts to acquire the mutex without blocking.
func (m *Mutex) TryLock() (bool, error) {
	if !m.Valid() {
		return false, errors.New("shmqueue: mutex closed")
	}
	if m.flockFile != nil {
		return flockTryLock(m.flockFile)
	}
	if atomic.CompareAndSwapUint32(&m.st.locked, 0, 1) {
		atomic.StoreUint32(&m.st.ownerPID, uint32(os.Getpid()))
		return true, nil
	}
	return false, nil
}

// Unlock releases the mutex. Unlock on an unheld mutex is a programming
// error the caller must avoid, matching the teacher's own scoped-release
// convention (no internal double-check, relies on balanced Lock/Unlock).
func (m *Mutex) Unlock() {
	if !m.Valid() {
		return
	}
	if m.flockFile != nil {
		if err := flockUnlock(m.flockFile); err != nil {
			mutexLogger.Warningf("shmqueue: flock unlock failed: %v", err)
		}
		return
	}
	atomic.StoreUint32(&m.st.ownerPID, 0)
	atomic.StoreUint32(&m.st.locked, 0)
	futex.Wake(&m.st.locked, 1)
}

// Close releases this process's handle on the mutex. It does not remove
// the backing segment; call ClearMutexStorage once no process needs it.
func (m *Mutex) Close() error {
	if !m.Valid() {
		return nil
	}
	m.valid = false
	if m.flockFile != nil {
		m.flockFile.Close()
	}
	return m.handle.Release()
}

// ClearMutexStorage unlinks the named mutex's backing segment.
func ClearMutexStorage(name string) error {
	h, err := NewMmapAllocator().Acquire(mutexSegmentName(name), int(unsafe.Sizeof(mutexState{})), AcquireOpen)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer h.Release()
	return h.Remove()
}

// processAlive reports whether pid still names a live process. Used only
// for the abandoned-owner heuristic: a false positive merely means Lock
// waits a bit longer instead of recovering immediately.
func processAlive(pid uint32) bool {
	return syscall.Kill(int(pid), 0) == nil
}

package shmqueue

import (
	"errors"
	"fmt"
	"os"
	"time"
	"unsafe"

	"code.hybscloud.com/atomix"
	"google.golang.org/grpc/grpclog"
)

var condLogger = grpclog.Component("shmqueue")

// Condition is the cross-process condition variable of spec.md §4.5: a
// named mutex guarding a waiter count, paired with a named semaphore used
// to actually park and release waiters, grounded on
// original_source/src/libipc/platform/win/condition.h's mutex+semaphore
// construction (the portable analogue of SignalObjectAndWait).
type Condition struct {
	lock      *Mutex
	sem       *Semaphore
	cntHandle SegmentHandle
	cnt       *atomix.Int32
	valid     bool
}

func condLockName(name string) string { return name + "_COND_LOCK_" }
func condSemName(name string) string  { return name + "_COND_SEM_" }
func condShmName(name string) string  { return name + "_COND_SHM_" }

// OpenCondition opens or creates the named condition variable.
func OpenCondition(name string) (*Condition, error) {
	lock, err := OpenMutex(condLockName(name))
	if err != nil {
		return nil, err
	}
	sem, err := OpenSemaphore(condSemName(name), 0)
	if err != nil {
		lock.Close()
		return nil, err
	}
	h, err := NewMmapAllocator().Acquire(condShmName(name), int(unsafe.Sizeof(atomix.Int32{})), AcquireCreateOrOpen)
	if err != nil {
		lock.Close()
		sem.Close()
		return nil, fmt.Errorf("shmqueue: open condition %q: %w", name, err)
	}
	return &Condition{
		lock:      lock,
		sem:       sem,
		cntHandle: h,
		cnt:       (*atomix.Int32)(unsafe.Pointer(&h.Mem()[0])),
		valid:     true,
	}, nil
}

// Valid reports whether the condition variable is still usable.
func (c *Condition) Valid() bool { return c != nil && c.valid }

// Wait atomically releases userMutex and blocks until notified, Broadcast,
// or timeout elapses, then reacquires userMutex before returning. The
// release-and-wait pair is not a single atomic OS call (Go exposes no
// SignalObjectAndWait equivalent); correctness instead relies on
// registering this waiter's intent (incrementing cnt under the
// condition's own lock) before releasing userMutex, so a concurrent
// Notify can never "miss" a waiter that is merely mid-transition.
func (c *Condition) Wait(userMutex *Mutex, timeout time.Duration) bool {
	if !c.Valid() {
		return false
	}
	c.lock.Lock(-1)
	cur := c.cnt.LoadAcquire()
	if cur < 0 {
		condLogger.Warningf("shmqueue: condition waiter count went negative (%d), clamping", cur)
		cur = 0
	}
	c.cnt.StoreRelease(cur + 1)
	c.lock.Unlock()

	userMutex.Unlock()
	ok := c.sem.Wait(timeout)
	userMutex.Lock(-1)

	if !ok {
		c.lock.Lock(-1)
		c.cnt.AddAcqRel(-1)
		c.lock.Unlock()
	}
	return ok
}

// Notify wakes at most one waiter.
func (c *Condition) Notify() {
	if !c.Valid() {
		return
	}
	c.lock.Lock(-1)
	if cur := c.cnt.LoadAcquire(); cur > 0 {
		c.cnt.AddAcqRel(-1)
		c.sem.Post(1)
	}
	c.lock.Unlock()
}

// Broadcast wakes every currently waiting goroutine/process.
func (c *Condition) Broadcast() {
	if !c.Valid() {
		return
	}
	c.lock.Lock(-1)
	if cur := c.cnt.LoadAcquire(); cur > 0 {
		c.cnt.StoreRelease(0)
		c.sem.Post(uint32(cur))
	}
	c.lock.Unlock()
}

// Close releases this process's handles on the condition's three segments.
func (c *Condition) Close() error {
	if !c.Valid() {
		return nil
	}
	c.valid = false
	err1 := c.lock.Close()
	err2 := c.sem.Close()
	err3 := c.cntHandle.Release()
	if err1 != nil {
		return err1
	}
	if err2 != nil {
		return err2
	}
	return err3
}

// ClearConditionStorage unlinks all three of the named condition
// variable's backing segments.
func ClearConditionStorage(name string) error {
	errs := []error{
		ClearMutexStorage(condLockName(name)),
		ClearSemaphoreStorage(condSemName(name)),
	}
	if h, err := NewMmapAllocator().Acquire(condShmName(name), int(unsafe.Sizeof(atomix.Int32{})), AcquireOpen); err == nil {
		errs = append(errs, h.Remove())
		h.Release()
	} else if !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

package shmqueue

import (
	"time"

	"code.hybscloud.com/atomix"
)

// Waiter composes a named Mutex and Condition into the predicate-wait
// idiom used throughout the queue (block while the ring is empty, wake on
// push), grounded on original_source/src/libipc/waiter.h. quit is a
// per-process flag, not shared memory: each process that opens the
// channel decides independently when to stop waiting on it.
type Waiter struct {
	mutex *Mutex
	cond  *Condition
	quit  atomix.Bool
}

// OpenWaiter opens or creates the named waiter's backing mutex and
// condition variable.
func OpenWaiter(name string) (*Waiter, error) {
	mutex, err := OpenMutex(name + "_WAITER_")
	if err != nil {
		return nil, err
	}
	cond, err := OpenCondition(name + "_WAITER_")
	if err != nil {
		mutex.Close()
		return nil, err
	}
	return &Waiter{mutex: mutex, cond: cond}, nil
}

// WaitIf blocks, reevaluating pred each time it's woken, until either
// pred returns false, QuitWaiting is called, or timeout elapses. Returns
// false only on timeout; a quit request or a satisfied predicate both
// return true, since neither represents a wait failure.
func (w *Waiter) WaitIf(pred func() bool, timeout time.Duration) bool {
	w.mutex.Lock(-1)
	for !w.quit.LoadAcquire() && pred() {
		if !w.cond.Wait(w.mutex, timeout) {
			w.mutex.Unlock()
			return false
		}
	}
	w.mutex.Unlock()
	return true
}

// Notify wakes one blocked waiter.
func (w *Waiter) Notify() {
	w.mutex.Lock(-1)
	w.mutex.Unlock()
	w.cond.Notify()
}

// Broadcast wakes every blocked waiter.
func (w *Waiter) Broadcast() {
	w.mutex.Lock(-1)
	w.mutex.Unlock()
	w.cond.Broadcast()
}

// QuitWaiting marks this waiter as permanently done and wakes everyone
// blocked on it so they can observe the flag and return.
func (w *Waiter) QuitWaiting() {
	w.quit.StoreRelease(true)
	w.Broadcast()
}

// Close releases the waiter's backing mutex and condition variable.
func (w *Waiter) Close() error {
	err1 := w.cond.Close()
	err2 := w.mutex.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

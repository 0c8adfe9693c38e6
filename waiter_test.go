package shmqueue

import (
	"testing"
	"time"
)

func TestWaiterWaitIfReturnsImmediatelyWhenPredicateFalse(t *testing.T) {
	name := "test_waiter_immediate"
	defer func() {
		ClearConditionStorage(name + "_WAITER_")
		ClearMutexStorage(name + "_WAITER_")
	}()

	w, err := OpenWaiter(name)
	if err != nil {
		t.Fatalf("OpenWaiter: %v", err)
	}
	defer w.Close()

	if !w.WaitIf(func() bool { return false }, time.Second) {
		t.Fatal("WaitIf blocked despite an already-false predicate")
	}
}

func TestWaiterNotifyUnblocksWaitIf(t *testing.T) {
	name := "test_waiter_notify"
	defer func() {
		ClearConditionStorage(name + "_WAITER_")
		ClearMutexStorage(name + "_WAITER_")
	}()

	w, err := OpenWaiter(name)
	if err != nil {
		t.Fatalf("OpenWaiter: %v", err)
	}
	defer w.Close()

	ready := false
	done := make(chan bool, 1)
	go func() {
		done <- w.WaitIf(func() bool { return !ready }, 2*time.Second)
	}()

	time.Sleep(30 * time.Millisecond)
	ready = true
	w.Notify()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("WaitIf returned false after Notify")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitIf never returned after Notify")
	}
}

func TestWaiterQuitWakesBlockedWaiter(t *testing.T) {
	name := "test_waiter_quit"
	defer func() {
		ClearConditionStorage(name + "_WAITER_")
		ClearMutexStorage(name + "_WAITER_")
	}()

	w, err := OpenWaiter(name)
	if err != nil {
		t.Fatalf("OpenWaiter: %v", err)
	}
	defer w.Close()

	done := make(chan bool, 1)
	go func() {
		done <- w.WaitIf(func() bool { return true }, 2*time.Second)
	}()

	time.Sleep(30 * time.Millisecond)
	w.QuitWaiting()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("WaitIf returned false after QuitWaiting")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("WaitIf never returned after QuitWaiting")
	}
}

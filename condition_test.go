package shmqueue

import (
	"testing"
	"time"
)

func TestConditionNotifyWakesOneWaiter(t *testing.T) {
	name := "test_cond_notify"
	defer ClearConditionStorage(name)
	defer ClearMutexStorage(name + "_USER_")

	cond, err := OpenCondition(name)
	if err != nil {
		t.Fatalf("OpenCondition: %v", err)
	}
	defer cond.Close()
	userMutex, err := OpenMutex(name + "_USER_")
	if err != nil {
		t.Fatalf("OpenMutex: %v", err)
	}
	defer userMutex.Close()

	done := make(chan bool, 1)
	go func() {
		userMutex.Lock(-1)
		ok := cond.Wait(userMutex, 2*time.Second)
		userMutex.Unlock()
		done <- ok
	}()

	time.Sleep(30 * time.Millisecond) // let the goroutine register as a waiter
	cond.Notify()

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("Wait returned false after Notify; expected true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Wait never returned after Notify")
	}
}

func TestConditionWaitTimesOutWithNoNotify(t *testing.T) {
	name := "test_cond_timeout"
	defer ClearConditionStorage(name)
	defer ClearMutexStorage(name + "_USER_")

	cond, err := OpenCondition(name)
	if err != nil {
		t.Fatalf("OpenCondition: %v", err)
	}
	defer cond.Close()
	userMutex, err := OpenMutex(name + "_USER_")
	if err != nil {
		t.Fatalf("OpenMutex: %v", err)
	}
	defer userMutex.Close()

	userMutex.Lock(-1)
	ok := cond.Wait(userMutex, 50*time.Millisecond)
	userMutex.Unlock()
	if ok {
		t.Fatal("Wait returned true despite no Notify/Broadcast ever happening")
	}
}

func TestConditionBroadcastWakesEveryWaiter(t *testing.T) {
	name := "test_cond_broadcast"
	defer ClearConditionStorage(name)
	defer ClearMutexStorage(name + "_USER_")

	cond, err := OpenCondition(name)
	if err != nil {
		t.Fatalf("OpenCondition: %v", err)
	}
	defer cond.Close()
	userMutex, err := OpenMutex(name + "_USER_")
	if err != nil {
		t.Fatalf("OpenMutex: %v", err)
	}
	defer userMutex.Close()

	const waiters = 3
	done := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			userMutex.Lock(-1)
			ok := cond.Wait(userMutex, 2*time.Second)
			userMutex.Unlock()
			done <- ok
		}()
	}
	time.Sleep(30 * time.Millisecond)
	cond.Broadcast()

	for i := 0; i < waiters; i++ {
		select {
		case ok := <-done:
			if !ok {
				t.Fatalf("waiter %d returned false after Broadcast", i)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("waiter %d never woke up after Broadcast", i)
		}
	}
}

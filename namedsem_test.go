package shmqueue

import (
	"testing"
	"time"
)

func TestSemaphoreWaitPostRoundTrip(t *testing.T) {
	name := "test_sem_roundtrip"
	defer ClearSemaphoreStorage(name)

	s, err := OpenSemaphore(name, 0)
	if err != nil {
		t.Fatalf("OpenSemaphore: %v", err)
	}
	defer s.Close()

	if s.Wait(50 * time.Millisecond) {
		t.Fatal("Wait succeeded on a semaphore with zero permits")
	}
	s.Post(1)
	if !s.Wait(time.Second) {
		t.Fatal("Wait failed after Post(1)")
	}
}

func TestSemaphoreInitialCount(t *testing.T) {
	name := "test_sem_initial"
	defer ClearSemaphoreStorage(name)

	s, err := OpenSemaphore(name, 3)
	if err != nil {
		t.Fatalf("OpenSemaphore: %v", err)
	}
	defer s.Close()

	for i := 0; i < 3; i++ {
		if !s.Wait(time.Second) {
			t.Fatalf("Wait %d failed, expected 3 initial permits", i)
		}
	}
	if s.Wait(20 * time.Millisecond) {
		t.Fatal("Wait succeeded beyond the initial permit count")
	}
}

func TestSemaphoreReopenKeepsCount(t *testing.T) {
	name := "test_sem_reopen"
	defer ClearSemaphoreStorage(name)

	s1, err := OpenSemaphore(name, 0)
	if err != nil {
		t.Fatalf("OpenSemaphore s1: %v", err)
	}
	s1.Post(2)
	s1.Close()

	s2, err := OpenSemaphore(name, 5) // initial count must be ignored on reopen
	if err != nil {
		t.Fatalf("OpenSemaphore s2: %v", err)
	}
	defer s2.Close()

	if !s2.Wait(time.Second) || !s2.Wait(time.Second) {
		t.Fatal("expected the 2 permits posted by s1 to still be available")
	}
	if s2.Wait(20 * time.Millisecond) {
		t.Fatal("found a 3rd permit; reopen must not have reseeded the count to 5")
	}
}

func TestSemaphorePostWakesBlockedWaiter(t *testing.T) {
	name := "test_sem_wake"
	defer ClearSemaphoreStorage(name)

	s, err := OpenSemaphore(name, 0)
	if err != nil {
		t.Fatalf("OpenSemaphore: %v", err)
	}
	defer s.Close()

	done := make(chan bool, 1)
	go func() {
		done <- s.Wait(2 * time.Second)
	}()
	time.Sleep(20 * time.Millisecond)
	s.Post(1)

	select {
	case ok := <-done:
		if !ok {
			t.Fatal("blocked Wait returned false after a Post")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("blocked Wait never woke up after Post")
	}
}

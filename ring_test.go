package shmqueue

import "testing"

func newTestBroadcastRing(capacity int) (*broadcastRing[int], *connHeader) {
	hdr := &ringHeader{}
	conn := &connHeader{}
	conn.init()
	slots := make([]ringSlot[int], capacity)
	return newBroadcastRing(hdr, conn, slots), conn
}

func TestBroadcastPushNoReaders(t *testing.T) {
	r, _ := newTestBroadcastRing(4)
	if r.push(func(v *int) { *v = 1 }) {
		t.Fatal("push succeeded with zero connected readers")
	}
}

func TestBroadcastPushPopSingleReader(t *testing.T) {
	r, conn := newTestBroadcastRing(4)
	id := conn.connectBroadcast()

	if !r.push(func(v *int) { *v = 42 }) {
		t.Fatal("push failed with one connected reader")
	}

	cursor := uint64(0)
	var got int
	ok, lastOne := r.pop(&cursor, id, func(v *int) { got = *v })
	if !ok {
		t.Fatal("pop reported no message available")
	}
	if !lastOne {
		t.Fatal("pop with the sole reader should report lastOne")
	}
	if got != 42 {
		t.Fatalf("popped value = %d, want 42", got)
	}
	if !r.empty(cursor) {
		t.Fatal("ring should be empty after its only reader consumed the message")
	}
}

func TestBroadcastDeliversToEveryReader(t *testing.T) {
	r, conn := newTestBroadcastRing(4)
	idA := conn.connectBroadcast()
	idB := conn.connectBroadcast()

	if !r.push(func(v *int) { *v = 7 }) {
		t.Fatal("push failed")
	}

	var cursorA, cursorB uint64
	var gotA, gotB int
	okA, lastA := r.pop(&cursorA, idA, func(v *int) { gotA = *v })
	if !okA || gotA != 7 {
		t.Fatalf("reader A pop: ok=%v got=%d", okA, gotA)
	}
	if lastA {
		t.Fatal("reader A should not be lastOne: B hasn't read yet")
	}
	okB, lastB := r.pop(&cursorB, idB, func(v *int) { gotB = *v })
	if !okB || gotB != 7 {
		t.Fatalf("reader B pop: ok=%v got=%d", okB, gotB)
	}
	if !lastB {
		t.Fatal("reader B should be lastOne: both readers have now consumed the slot")
	}
}

func TestBroadcastPushBlocksOnSlowReader(t *testing.T) {
	r, conn := newTestBroadcastRing(2)
	id := conn.connectBroadcast()

	for i := 0; i < 2; i++ {
		if !r.push(func(v *int) { *v = i }) {
			t.Fatalf("push %d failed while ring has free slots", i)
		}
	}
	// The reader hasn't consumed anything yet, so both slots are still
	// owed; a third push must fail rather than overwrite unread data.
	if r.push(func(v *int) { *v = 99 }) {
		t.Fatal("push succeeded despite the reader owing every slot")
	}
	_ = id
}

func TestBroadcastForcePushEvictsSlowReader(t *testing.T) {
	r, conn := newTestBroadcastRing(2)
	idFast := conn.connectBroadcast()
	conn.connectBroadcast() // idSlow: never consumes

	var cursorFast uint64
	for i := 0; i < 2; i++ {
		if !r.push(func(v *int) { *v = i }) {
			t.Fatalf("push %d failed", i)
		}
		var discard int
		if ok, _ := r.pop(&cursorFast, idFast, func(v *int) { discard = *v }); !ok {
			t.Fatalf("fast reader failed to pop message %d", i)
		}
		_ = discard
	}

	// Both slots are now fully caught up for idFast but still owed to the
	// slow reader, so an ordinary push would fail; forcePush must evict
	// the slow reader from the oldest owed slot and still deliver.
	ok, evicted := r.forcePush(func(v *int) { *v = 100 })
	if !ok {
		t.Fatal("forcePush failed despite a still-connected fast reader")
	}
	if !evicted {
		t.Fatal("forcePush should have evicted the reader still owing this slot")
	}
	if got := conn.count(); got != 1 {
		t.Fatalf("conn.count() after eviction = %d, want 1 (only the fast reader left)", got)
	}
}

func TestBroadcastForcePushNoReadersFails(t *testing.T) {
	r, _ := newTestBroadcastRing(2)
	if ok, _ := r.forcePush(func(v *int) { *v = 1 }); ok {
		t.Fatal("forcePush succeeded with zero connected readers")
	}
}

package shmqueue

import (
	"math/bits"

	"code.hybscloud.com/atomix"
)

// maxReaders is the width of the broadcast connection bitmap: at most 32
// readers may be connected to a broadcast channel at once.
const maxReaders = 32

// connHeader is the first record in every segment: a bitmap of occupied
// reader slots plus the one-time-initialization guard. Broadcast channels
// use connected as a bitmap (one bit per reader); unicast channels reuse
// the same field as a plain monotonic counter, since unicast readers are
// interchangeable and don't need individually addressable slots.
type connHeader struct {
	connected   atomix.Uint32
	senders     atomix.Uint32
	initLock    atomix.Bool
	constructed atomix.Bool
}

// init performs double-checked, idempotent zero-initialization. The
// segment backing this header is already zero from mmap, so this guards
// only against a process restart racing a fresh opener, not against
// uninitialized memory.
func (h *connHeader) init() {
	if h.constructed.LoadAcquire() {
		return
	}
	var b backoff
	for !h.initLock.CompareAndSwapAcqRel(false, true) {
		b.spin()
	}
	defer h.initLock.StoreRelease(false)

	if h.constructed.LoadRelaxed() {
		return
	}
	h.connected.StoreRelaxed(0)
	h.constructed.StoreRelease(true)
}

// connectBroadcast finds the lowest clear bit, sets it, and returns it as
// a single-bit reader id. Returns 0 ("slots full") once all 32 bits are
// occupied.
func (h *connHeader) connectBroadcast() uint32 {
	var b backoff
	for {
		cur := h.connected.LoadAcquire()
		next := cur | (cur + 1)
		if next == cur {
			return 0 // no clear bit left in the 32-bit window
		}
		if h.connected.CompareAndSwapAcqRel(cur, next) {
			return next ^ cur
		}
		b.spin()
	}
}

// disconnectBroadcast clears mask's bits and returns the resulting bitmap.
func (h *connHeader) disconnectBroadcast(mask uint32) uint32 {
	var b backoff
	for {
		cur := h.connected.LoadAcquire()
		next := cur &^ mask
		if h.connected.CompareAndSwapAcqRel(cur, next) {
			return next
		}
		b.spin()
	}
}

// connections returns the current bitmap.
func (h *connHeader) connections() uint32 {
	return h.connected.LoadAcquire()
}

// count returns the number of set bits (live readers).
func (h *connHeader) count() int {
	return bits.OnesCount32(h.connected.LoadAcquire())
}

// connectUnicast registers one more unicast reader and returns the new
// reader count.
func (h *connHeader) connectUnicast() uint32 {
	return h.connected.AddAcqRel(1)
}

// disconnectUnicastOne releases one unicast reader slot.
func (h *connHeader) disconnectUnicastOne() uint32 {
	return h.connected.AddAcqRel(^uint32(0)) // fetch_sub(1)
}

// disconnectUnicastAll clears the unicast reader count entirely.
func (h *connHeader) disconnectUnicastAll() {
	h.connected.StoreRelease(0)
}

// markSending registers this process as an active sender, returning the
// new sender count.
func (h *connHeader) markSending() uint32 {
	return h.senders.AddAcqRel(1)
}

// unmarkSending retires this process as a sender, returning the remaining
// sender count. Callers use a zero result to know no more data will ever
// arrive and wake any readers still blocked on an empty ring.
func (h *connHeader) unmarkSending() uint32 {
	return h.senders.AddAcqRel(^uint32(0))
}

// sendingActive reports whether any sender is currently registered.
func (h *connHeader) sendingActive() bool {
	return h.senders.LoadAcquire() > 0
}

package shmqueue

import "code.hybscloud.com/atomix"

// Packed layout of a slot's rc word: epoch(8) | index-counter(24) | read-
// counter bitmap(32), as laid out in original_source/src/libipc/prod_cons.h.
const (
	rcMask uint64 = 0x00000000FFFFFFFF
	epMask uint64 = 0x00FFFFFFFFFFFFFF
	icMask uint64 = 0xFF000000FFFFFFFF
	icIncr uint64 = 0x0000000100000000
	epIncr uint64 = 0x0100000000000000
)

// incRC advances the 24-bit index-counter field, leaving the bitmap and
// epoch fields untouched.
func incRC(x uint64) uint64 {
	return (x & icMask) | ((x + icIncr) &^ icMask)
}

// incMask is incRC with the read-counter bitmap cleared, used whenever a
// slot is being handed to a fresh set of readers.
func incMask(x uint64) uint64 {
	return incRC(x) &^ rcMask
}

// ringSlot is one element of the circular array: a payload plus the
// per-slot atomic state described in spec.md §3. T is copied by value, so
// its natural Go struct alignment satisfies the alignment requirement the
// original expresses as an explicit template parameter.
type ringSlot[T any] struct {
	data T
	rc   atomix.Uint64
	fct  atomix.Uint64
}

// ringHeader precedes the slot array: the global commit index and the
// eviction epoch, kept in separate cache lines since force_push bumps the
// epoch far more rarely than push advances the commit index.
type ringHeader struct {
	ct    atomix.Uint64
	_     [56]byte // separate cache line from epoch
	epoch atomix.Uint64
	_     [56]byte
}

// broadcastRing implements the multi-producer/multi-consumer broadcast
// protocol of spec.md §4.3: every connected reader observes every commit,
// and a slow or dead reader can be evicted by force_push to make room.
type broadcastRing[T any] struct {
	hdr      *ringHeader
	conn     *connHeader
	slots    []ringSlot[T]
	capacity uint64
	capMask  uint64
}

func newBroadcastRing[T any](hdr *ringHeader, conn *connHeader, slots []ringSlot[T]) *broadcastRing[T] {
	return &broadcastRing[T]{
		hdr:      hdr,
		conn:     conn,
		slots:    slots,
		capacity: uint64(len(slots)),
		capMask:  uint64(len(slots)) - 1,
	}
}

// push publishes one message to all currently connected readers. prep is
// invoked with a pointer to the slot's payload while this writer
// exclusively owns the slot, so it may construct T in place. Returns false
// if the ring has no connected readers or the target slot has not been
// fully drained by every reader that owed it a read under the current
// epoch — callers should retry, drop the message, or escalate to
// forcePush.
func (r *broadcastRing[T]) push(prep func(*T)) bool {
	var b backoff
	for {
		cc := r.conn.connections()
		if cc == 0 {
			return false // no reader: nothing to deliver to
		}

		curCt := r.hdr.ct.LoadAcquire()
		el := &r.slots[curCt&r.capMask]
		epoch := r.hdr.epoch.LoadAcquire()

		curRC := el.rc.LoadAcquire()
		rem := curRC & rcMask
		if (uint64(cc)&rem) != 0 && (curRC&^epMask) == epoch {
			return false // a reader under the current epoch still owes this slot
		}
		if rem == 0 {
			curFct := el.fct.LoadAcquire()
			if curFct != 0 && curFct != curCt {
				return false // last reader hasn't yet recycled the slot
			}
		}

		newRC := incMask(epoch|(curRC&epMask)) | uint64(cc)
		if !el.rc.CompareAndSwapAcqRel(curRC, newRC) {
			b.spin()
			continue
		}
		if !r.hdr.epoch.CompareAndSwapAcqRel(epoch, epoch) {
			// a force_push slipped in under us; the slot we just claimed
			// carries a stale epoch, retry the whole attempt.
			b.spin()
			continue
		}

		r.hdr.ct.StoreRelease(curCt + 1)
		prep(&el.data)
		el.fct.StoreRelease(^curCt)
		return true
	}
}

// forcePush bumps the ring epoch and evicts any reader still holding the
// target slot, guaranteeing the message is delivered even when a consumer
// is dead or stuck. ok is false only when eviction leaves no readers
// connected at all; evicted reports whether this call actually dropped a
// reader, for callers that want to surface it as a metric.
func (r *broadcastRing[T]) forcePush(prep func(*T)) (ok, evicted bool) {
	var b backoff
	epoch := r.hdr.epoch.AddAcqRel(epIncr)

	for {
		cc := r.conn.connections()
		if cc == 0 {
			return false, evicted
		}

		curCt := r.hdr.ct.LoadAcquire()
		el := &r.slots[curCt&r.capMask]

		curRC := el.rc.LoadAcquire()
		rem := curRC & rcMask
		if uint64(cc)&rem != 0 {
			cc = r.conn.disconnectBroadcast(uint32(rem))
			evicted = true
			if cc == 0 {
				return false, evicted // every reader evicted
			}
		}

		newRC := incMask(epoch|(curRC&epMask)) | uint64(cc)
		if !el.rc.CompareAndSwapAcqRel(curRC, newRC) {
			b.spin()
			continue
		}
		if cur := r.hdr.epoch.LoadAcquire(); cur != epoch {
			// another writer's force_push raced ahead of ours and already
			// claimed this slot under a newer epoch; the bitmap we just CAS'd
			// in is now stale, so re-evaluating rem against it here would
			// read every currently connected reader as still owing this
			// slot and evict them all. Fall back to a plain push, which
			// re-tags the slot under the real current epoch instead; only
			// if that still can't land do we bump our own epoch and retry.
			if r.push(prep) {
				return true, evicted
			}
			epoch = r.hdr.epoch.AddAcqRel(epIncr)
			b.spin()
			continue
		}

		r.hdr.ct.StoreRelease(curCt + 1)
		prep(&el.data)
		el.fct.StoreRelease(^curCt)
		return true, evicted
	}
}

// pop delivers the next undelivered message to the reader identified by
// connectedID, invoking out with the slot's payload before the slot can be
// recycled. cursor is the reader's private next-to-consume commit index
// and is advanced on a successful read. Returns ok=false if the reader has
// caught up to the producers (nothing new to read yet); lastOne reports
// whether this read was the final outstanding one for the slot, which the
// caller can use purely for diagnostics.
func (r *broadcastRing[T]) pop(cursor *uint64, connectedID uint32, out func(*T)) (ok, lastOne bool) {
	cur := *cursor
	el := &r.slots[cur&r.capMask]

	if el.fct.LoadAcquire() != ^cur {
		return false, false
	}
	*cursor = cur + 1
	out(&el.data)

	var b backoff
	for {
		curRC := el.rc.LoadAcquire()
		nxtRC := incRC(curRC) &^ uint64(connectedID)
		lastOne = (nxtRC & rcMask) == 0
		newRC := nxtRC
		if lastOne {
			newRC = incMask(nxtRC)
		}
		if el.rc.CompareAndSwapAcqRel(curRC, newRC) {
			if lastOne {
				el.fct.StoreRelease(cur + r.capacity)
			}
			return true, lastOne
		}
		b.spin()
	}
}

// commitIndex returns the ring's current global commit index, used to
// seed a freshly connected reader's cursor at "now" rather than replaying
// history.
func (r *broadcastRing[T]) commitIndex() uint64 {
	return r.hdr.ct.LoadAcquire()
}

// empty reports whether cursor has caught up to the last commit.
func (r *broadcastRing[T]) empty(cursor uint64) bool {
	return cursor == r.hdr.ct.LoadAcquire()
}

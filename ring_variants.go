package shmqueue

import "code.hybscloud.com/atomix"

// unicastSlot is a ring element for the three unicast variants: unlike
// ringSlot, it carries no per-reader bitmap, because a unicast message is
// owned by exactly one consumer, whichever claims it first.
type unicastSlot[T any] struct {
	data T
	fct  atomix.Uint64
}

// unicastHeader holds the commit index shared by every unicast variant
// and, for the multi-consumer variants, the shared claim index consumers
// race on.
type unicastHeader struct {
	ct atomix.Uint64
	_  [56]byte
	rd atomix.Uint64
	_  [56]byte
}

// spscRing implements single-producer/single-consumer unicast: the
// producer owns ct outright and the consumer owns its read cursor (held by
// the caller and passed to pop), so neither side needs a CAS to advance its
// own index — only the commit flag
// synchronizes the two, per original_source/src/libipc/prod_cons.h's
// wr<single,single,unicast>.
type spscRing[T any] struct {
	hdr      *unicastHeader
	slots    []unicastSlot[T]
	capacity uint64
	capMask  uint64
}

func newSPSCRing[T any](hdr *unicastHeader, slots []unicastSlot[T]) *spscRing[T] {
	return &spscRing[T]{hdr: hdr, slots: slots, capacity: uint64(len(slots)), capMask: uint64(len(slots)) - 1}
}

func (r *spscRing[T]) push(prep func(*T)) bool {
	curCt := r.hdr.ct.LoadRelaxed()
	el := &r.slots[curCt&r.capMask]
	if f := el.fct.LoadAcquire(); f != 0 && f != curCt {
		return false
	}
	r.hdr.ct.StoreRelaxed(curCt + 1)
	prep(&el.data)
	el.fct.StoreRelease(^curCt)
	return true
}

func (r *spscRing[T]) forcePush(prep func(*T)) bool {
	curCt := r.hdr.ct.LoadRelaxed()
	el := &r.slots[curCt&r.capMask]
	r.hdr.ct.StoreRelaxed(curCt + 1)
	prep(&el.data)
	el.fct.StoreRelease(^curCt)
	return true
}

func (r *spscRing[T]) pop(cursor *uint64, out func(*T)) bool {
	cur := *cursor
	el := &r.slots[cur&r.capMask]
	if el.fct.LoadAcquire() != ^cur {
		// forcePush may have lapped this reader: skip ahead to the oldest
		// message the ring still holds.
		if ct := r.hdr.ct.LoadAcquire(); ct-cur > r.capacity {
			cur = ct - r.capacity
			el = &r.slots[cur&r.capMask]
		}
		if el.fct.LoadAcquire() != ^cur {
			return false
		}
	}
	*cursor = cur + 1
	out(&el.data)
	el.fct.StoreRelease(cur + r.capacity)
	return true
}

// spmcRing implements single-producer/multi-consumer unicast: push is
// unchanged from spscRing, but pop now races an arbitrary number of
// consumer goroutines over the shared rd claim index, per
// wr<single,multi,unicast>.
type spmcRing[T any] struct {
	hdr      *unicastHeader
	slots    []unicastSlot[T]
	capacity uint64
	capMask  uint64
}

func newSPMCRing[T any](hdr *unicastHeader, slots []unicastSlot[T]) *spmcRing[T] {
	return &spmcRing[T]{hdr: hdr, slots: slots, capacity: uint64(len(slots)), capMask: uint64(len(slots)) - 1}
}

func (r *spmcRing[T]) push(prep func(*T)) bool {
	curCt := r.hdr.ct.LoadRelaxed()
	el := &r.slots[curCt&r.capMask]
	if f := el.fct.LoadAcquire(); f != 0 && f != curCt {
		return false
	}
	r.hdr.ct.StoreRelaxed(curCt + 1)
	prep(&el.data)
	el.fct.StoreRelease(^curCt)
	return true
}

func (r *spmcRing[T]) pop(out func(*T)) bool {
	var b backoff
	for {
		curRd := r.hdr.rd.LoadAcquire()
		if curRd == r.hdr.ct.LoadAcquire() {
			return false
		}
		el := &r.slots[curRd&r.capMask]
		if el.fct.LoadAcquire() != ^curRd {
			b.spin()
			continue
		}
		if !r.hdr.rd.CompareAndSwapAcqRel(curRd, curRd+1) {
			b.spin()
			continue
		}
		out(&el.data)
		el.fct.StoreRelease(curRd + r.capacity)
		return true
	}
}

// mpmcUnicastRing implements multi-producer/multi-consumer unicast: both
// ends race over shared indices via CAS, with the per-slot commit flag
// acting as the handoff, per wr<multi,multi,unicast>.
type mpmcUnicastRing[T any] struct {
	hdr      *unicastHeader
	slots    []unicastSlot[T]
	capacity uint64
	capMask  uint64
}

func newMPMCUnicastRing[T any](hdr *unicastHeader, slots []unicastSlot[T]) *mpmcUnicastRing[T] {
	return &mpmcUnicastRing[T]{hdr: hdr, slots: slots, capacity: uint64(len(slots)), capMask: uint64(len(slots)) - 1}
}

func (r *mpmcUnicastRing[T]) push(prep func(*T)) bool {
	var b backoff
	for {
		curCt := r.hdr.ct.LoadAcquire()
		el := &r.slots[curCt&r.capMask]
		if f := el.fct.LoadAcquire(); f != 0 && f != curCt {
			return false
		}
		if !r.hdr.ct.CompareAndSwapAcqRel(curCt, curCt+1) {
			b.spin()
			continue
		}
		prep(&el.data)
		el.fct.StoreRelease(^curCt)
		return true
	}
}

func (r *mpmcUnicastRing[T]) forcePush(prep func(*T)) bool {
	var b backoff
	for {
		curCt := r.hdr.ct.LoadAcquire()
		el := &r.slots[curCt&r.capMask]
		if !r.hdr.ct.CompareAndSwapAcqRel(curCt, curCt+1) {
			b.spin()
			continue
		}
		// drop any consumer still behind this slot rather than block on it
		if rd := r.hdr.rd.LoadAcquire(); rd+r.capacity == curCt {
			r.hdr.rd.CompareAndSwapAcqRel(rd, curCt+1)
		}
		prep(&el.data)
		el.fct.StoreRelease(^curCt)
		return true
	}
}

func (r *mpmcUnicastRing[T]) pop(out func(*T)) bool {
	var b backoff
	for {
		curRd := r.hdr.rd.LoadAcquire()
		if curRd == r.hdr.ct.LoadAcquire() {
			return false
		}
		el := &r.slots[curRd&r.capMask]
		if el.fct.LoadAcquire() != ^curRd {
			b.spin()
			continue
		}
		if !r.hdr.rd.CompareAndSwapAcqRel(curRd, curRd+1) {
			b.spin()
			continue
		}
		out(&el.data)
		el.fct.StoreRelease(curRd + r.capacity)
		return true
	}
}

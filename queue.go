package shmqueue

import (
	"fmt"
	"unsafe"

	"google.golang.org/grpc/grpclog"
)

var queueLogger = grpclog.Component("shmqueue")

// Queue is the binding of a named shared-memory segment to one of the
// four ring protocols, exposing the producer/consumer surface of
// spec.md §4: connect/disconnect, push/force-push, pop, and liveness
// queries, grounded on original_source/src/libipc/queue.h.
type Queue[T any] struct {
	name     string
	variant  Variant
	capacity uint64

	handle SegmentHandle
	conn   *connHeader
	waiter *Waiter
	stats  *queueMetrics

	broadcast   *broadcastRing[T]
	cursor      uint64
	connMask    uint32
	isConnected bool

	spsc       *spscRing[T]
	spscCursor uint64
	spmc       *spmcRing[T]
	mpmc       *mpmcUnicastRing[T]

	sendingActive bool
}

// Open attaches to (creating if necessary) the channel described by b,
// laying out a fresh segment on first creation or validating an existing
// one's shape against b's options.
func Open[T any](b *Builder) (*Queue[T], error) {
	var connHdrSize, ringHdrSize, slotSize uintptr
	connHdrSize = unsafe.Sizeof(connHeader{})

	switch b.variant {
	case VariantBroadcast:
		ringHdrSize = unsafe.Sizeof(ringHeader{})
		slotSize = unsafe.Sizeof(ringSlot[T]{})
	default:
		ringHdrSize = unsafe.Sizeof(unicastHeader{})
		slotSize = unsafe.Sizeof(unicastSlot[T]{})
	}

	total, connOff, hdrOff, slotsOff := layout(connHdrSize, ringHdrSize, slotSize, b.capacity)

	handle, err := b.allocator.Acquire(b.name, int(total), AcquireCreateOrOpen)
	if err != nil {
		return nil, fmt.Errorf("shmqueue: acquire segment %q: %w", b.name, err)
	}
	mem := handle.Mem()
	if len(mem) < int(total) {
		handle.Release()
		return nil, fmt.Errorf("shmqueue: segment %q too small: have %d want %d", b.name, len(mem), total)
	}

	if err := attachPreamble(mem, b.variant.wireVariant(), b.capacity); err != nil {
		handle.Release()
		return nil, err
	}

	conn := connHeaderAt(mem, connOff)
	conn.init()

	waiter, err := OpenWaiter(b.name)
	if err != nil {
		handle.Release()
		return nil, fmt.Errorf("shmqueue: open waiter for %q: %w", b.name, err)
	}

	q := &Queue[T]{
		name:     b.name,
		variant:  b.variant,
		capacity: b.capacity,
		handle:   handle,
		conn:     conn,
		waiter:   waiter,
		stats:    newQueueMetrics(b.name, b.variant),
	}

	switch b.variant {
	case VariantBroadcast:
		hdr := ringHeaderAt(mem, hdrOff)
		slots := slotsAt[ringSlot[T]](mem, slotsOff, b.capacity)
		q.broadcast = newBroadcastRing(hdr, conn, slots)
	case VariantUnicastSPSC:
		hdr := unicastHeaderAt(mem, hdrOff)
		slots := slotsAt[unicastSlot[T]](mem, slotsOff, b.capacity)
		q.spsc = newSPSCRing(hdr, slots)
	case VariantUnicastSPMC:
		hdr := unicastHeaderAt(mem, hdrOff)
		slots := slotsAt[unicastSlot[T]](mem, slotsOff, b.capacity)
		q.spmc = newSPMCRing(hdr, slots)
	case VariantUnicastMPMC:
		hdr := unicastHeaderAt(mem, hdrOff)
		slots := slotsAt[unicastSlot[T]](mem, slotsOff, b.capacity)
		q.mpmc = newMPMCUnicastRing(hdr, slots)
	default:
		handle.Release()
		waiter.Close()
		return nil, fmt.Errorf("shmqueue: unknown variant %v", b.variant)
	}

	if b.variant == VariantBroadcast {
		q.cursor = q.broadcast.commitIndex()
	}

	return q, nil
}

func attachPreamble(mem []byte, variant ringVariant, capacity uint64) error {
	if len(mem) < preambleSize {
		return fmt.Errorf("shmqueue: segment too small for preamble (%d bytes)", len(mem))
	}
	p := (*preamble)(unsafe.Pointer(&mem[0]))
	if string(p.magic[:]) != segmentMagic {
		writePreamble(mem, variant, capacity)
		return nil
	}
	existing, err := readPreamble(mem)
	if err != nil {
		return err
	}
	if ringVariant(existing.variant) != variant {
		return fmt.Errorf("shmqueue: variant mismatch: segment has %d, requested %d", existing.variant, variant)
	}
	if existing.capacity != capacity {
		return fmt.Errorf("shmqueue: capacity mismatch: segment has %d, requested %d", existing.capacity, capacity)
	}
	return nil
}

// Connect registers this process as a reader, returning an error once a
// broadcast channel's 32-reader limit is reached. Unicast variants always
// succeed; the reader count they track is advisory (reported by
// ConnCount), not a hard capacity limit.
func (q *Queue[T]) Connect() error {
	if q.isConnected {
		return nil
	}
	switch q.variant {
	case VariantBroadcast:
		id := q.conn.connectBroadcast()
		if id == 0 {
			queueLogger.Warningf("shmqueue: channel %q rejected connect, all %d reader slots occupied", q.name, maxReaders)
			return fmt.Errorf("shmqueue: channel %q has no free reader slot", q.name)
		}
		q.connMask = id
		q.cursor = q.broadcast.commitIndex()
	default:
		q.conn.connectUnicast()
	}
	q.isConnected = true
	q.stats.connGauge.Set(float64(q.ConnCount()))
	return nil
}

// Disconnect releases this process's reader registration, if any.
func (q *Queue[T]) Disconnect() {
	if !q.isConnected {
		return
	}
	switch q.variant {
	case VariantBroadcast:
		q.conn.disconnectBroadcast(q.connMask)
		q.connMask = 0
	default:
		q.conn.disconnectUnicastOne()
	}
	q.isConnected = false
	q.stats.connGauge.Set(float64(q.ConnCount()))
}

// ConnCount returns the number of currently connected readers.
func (q *Queue[T]) ConnCount() int {
	if q.variant == VariantBroadcast {
		return q.conn.count()
	}
	return int(q.conn.connections())
}

// ReadySending marks this process as an active sender; Pop unblocks with
// false once every sender has called ShutSending and the ring has
// drained, instead of blocking forever.
func (q *Queue[T]) ReadySending() {
	if q.sendingActive {
		return
	}
	q.conn.markSending()
	q.sendingActive = true
}

// ShutSending retires this process as a sender and wakes any reader
// blocked in Pop so it can reobserve sender liveness.
func (q *Queue[T]) ShutSending() {
	if !q.sendingActive {
		return
	}
	q.conn.unmarkSending()
	q.sendingActive = false
	q.waiter.Broadcast()
}

// Empty reports whether this reader has consumed every committed message.
// On unicast variants it always reports false; there, emptiness shows only
// as a failed Pop.
func (q *Queue[T]) Empty() bool {
	switch q.variant {
	case VariantBroadcast:
		return q.broadcast.empty(q.cursor)
	default:
		return false // unicast ring: emptiness is judged purely by a failed pop
	}
}

// Push publishes one message, invoking prep to construct it in place.
// Returns false if the target slot is not yet available or, on a
// broadcast channel, no reader is connected; callers needing guaranteed
// delivery should fall back to ForcePush.
func (q *Queue[T]) Push(prep func(*T)) bool {
	var ok bool
	switch q.variant {
	case VariantBroadcast:
		ok = q.broadcast.push(prep)
	case VariantUnicastSPSC:
		ok = q.spsc.push(prep)
	case VariantUnicastSPMC:
		ok = q.spmc.push(prep)
	case VariantUnicastMPMC:
		ok = q.mpmc.push(prep)
	}
	if ok {
		q.stats.pushTotal.Inc()
		q.waiter.Notify()
	}
	return ok
}

// ForcePush publishes one message unconditionally, evicting a slow or
// dead broadcast reader if needed to make room. Unicast variants fall
// back to an ordinary push, since there is no per-reader state to evict.
func (q *Queue[T]) ForcePush(prep func(*T)) bool {
	var ok bool
	switch q.variant {
	case VariantBroadcast:
		var evicted bool
		ok, evicted = q.broadcast.forcePush(prep)
		if ok {
			q.stats.forcePushTotal.Inc()
		}
		if evicted {
			q.stats.evictedTotal.Inc()
		}
	case VariantUnicastSPSC:
		ok = q.spsc.forcePush(prep)
	case VariantUnicastMPMC:
		ok = q.mpmc.forcePush(prep)
	case VariantUnicastSPMC:
		// spmcRing has no distinct forced path: this is a plain push,
		// which fails rather than overwrite when the ring is full.
		ok = q.spmc.push(prep)
	}
	if ok {
		q.stats.forcePushTotal.Inc()
		q.waiter.Notify()
	}
	return ok
}

// Pop waits for a message and delivers it via out. It returns false once
// no sender is registered (none has called ReadySending yet, or every one
// has called ShutSending) and there is nothing left for this reader to
// read.
func (q *Queue[T]) Pop(out func(*T)) bool {
	for {
		got := q.popOnce(out)
		if got {
			q.stats.popTotal.Inc()
			return true
		}
		if !q.conn.sendingActive() && q.popIsCaughtUp() {
			return false
		}
		if !q.waiter.WaitIf(func() bool { return q.popIsCaughtUp() && q.conn.sendingActive() }, 0) {
			return false
		}
	}
}

func (q *Queue[T]) popOnce(out func(*T)) bool {
	switch q.variant {
	case VariantBroadcast:
		ok, _ := q.broadcast.pop(&q.cursor, q.connMask, out)
		return ok
	case VariantUnicastSPSC:
		return q.spsc.pop(&q.spscCursor, out)
	case VariantUnicastSPMC:
		return q.spmc.pop(out)
	case VariantUnicastMPMC:
		return q.mpmc.pop(out)
	default:
		return false
	}
}

func (q *Queue[T]) popIsCaughtUp() bool {
	switch q.variant {
	case VariantBroadcast:
		return q.broadcast.empty(q.cursor)
	case VariantUnicastSPSC:
		return q.spscCursor == q.spsc.hdr.ct.LoadAcquire()
	case VariantUnicastSPMC:
		return q.spmc.hdr.rd.LoadAcquire() == q.spmc.hdr.ct.LoadAcquire()
	case VariantUnicastMPMC:
		return q.mpmc.hdr.rd.LoadAcquire() == q.mpmc.hdr.ct.LoadAcquire()
	default:
		return true
	}
}

// Close tears down this process's view of the channel: disconnects if
// still connected, retires sender status if still active, and releases
// the underlying segment and waiter handles.
func (q *Queue[T]) Close() error {
	releaseQueue(q.name)
	q.Disconnect()
	q.ShutSending()
	err1 := q.waiter.Close()
	err2 := q.handle.Release()
	if err1 != nil {
		return err1
	}
	return err2
}

// Remove unlinks the channel's backing segment and its waiter's mutex and
// condition variable. Call once no process still has the channel open.
func Remove(name string) error {
	var first error
	if h, err := NewMmapAllocator().Acquire(name, 0, AcquireOpen); err == nil {
		if rmErr := h.Remove(); rmErr != nil && first == nil {
			first = rmErr
		}
		h.Release()
	}
	if err := ClearConditionStorage(name + "_WAITER_"); err != nil && first == nil {
		first = err
	}
	if err := ClearMutexStorage(name + "_WAITER_"); err != nil && first == nil {
		first = err
	}
	return first
}

package shmqueue

import (
	"runtime"
	"sync/atomic"
	"time"
)

// pauseSink absorbs the stores in procyield so the compiler cannot prove
// the loop has no effect and discard it.
var pauseSink uint32

// procyield approximates the architecture pause/yield instruction
// (PAUSE on x86, YIELD on ARM) with a short spin that never touches the
// scheduler. The real instruction is not reachable from portable Go
// without per-arch assembly; a few non-eliminable iterations give the
// same practical effect of hinting to the core that this hardware thread
// is spinning without burning a full scheduler yield.
func procyield() {
	for i := 0; i < 8; i++ {
		atomic.AddUint32(&pauseSink, 1)
	}
}

// backoff implements the escalating spin ladder every busy loop in this
// package uses: a handful of free spins, then a CPU pause hint, then an OS
// thread yield, then a fixed ~1ms sleep. k is not incremented past the
// sleep band, so a stuck loop settles into a steady poll rate instead of
// sleeping longer and longer.
type backoff struct {
	k int
}

func (b *backoff) spin() {
	switch {
	case b.k < 4:
		// no-op: the CAS is cheap to retry immediately under low contention
	case b.k < 16:
		procyield()
	case b.k < 32:
		runtime.Gosched()
	default:
		time.Sleep(time.Millisecond)
		return // fixed upper bound: never counts past the sleep band
	}
	b.k++
}

// reset prepares the ladder for reuse across independent wait loops.
func (b *backoff) reset() { b.k = 0 }

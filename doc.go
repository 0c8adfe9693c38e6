/*
Package shmqueue implements an inter-process message queue over shared
memory: processes on one machine exchange fixed-size messages through a
named channel without kernel round-trips on the hot path.

The core is a lock-free, broadcast, multi-producer/multi-consumer circular
ring (see ring.go) together with the connection bookkeeping that tells
producers which of up to 32 readers still owe a read of a given slot (see
connhead.go). A cross-process condition variable (condition.go, waiter.go)
lets consumers park instead of spinning when the ring is empty.

# Variants

Four ring protocols are available, selected once at channel creation via
Builder:

  - single-producer / single-consumer, unicast
  - single-producer / multi-consumer, unicast
  - multi-producer / multi-consumer, unicast
  - multi-producer / multi-consumer, broadcast (the default; every
    connected reader observes every message)

# Non-goals

This package does not provide cross-machine transport, message durability
past process lifetime, ordering across distinct producers beyond per-slot
commit order, more than 32 concurrent readers per broadcast channel, or
dynamic ring resizing. It also does not implement a higher-level RPC or
routing layer; Queue is the full extent of the public surface.

# Dependencies

Shared segments are mmap'd regular files under /dev/shm (internal/mmapfile).
Cross-process waiting is driven by Linux futexes embedded in the segment
(internal/futex); the named mutex falls back to polling flock on
non-Linux platforms (flocklock_unix.go/flocklock_other.go), while the
named semaphore falls back to a plain backoff spin.
Atomic fields that the algorithm documents with an explicit memory order use
code.hybscloud.com/atomix instead of bare sync/atomic, so the ordering is
visible at the call site. Metrics are exposed via
github.com/prometheus/client_golang/prometheus.
*/
package shmqueue

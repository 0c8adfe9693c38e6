package shmqueue

// Variant selects one of the four producer/consumer ring protocols a
// channel can be laid out for, per spec.md §4.4.
type Variant int

const (
	// VariantBroadcast delivers every message to every connected reader.
	VariantBroadcast Variant = iota
	// VariantUnicastSPSC is the cheapest shape: one producer, one consumer.
	VariantUnicastSPSC
	// VariantUnicastSPMC is one producer, many competing consumers.
	VariantUnicastSPMC
	// VariantUnicastMPMC is many producers, many competing consumers.
	VariantUnicastMPMC
)

func (v Variant) String() string {
	switch v {
	case VariantBroadcast:
		return "broadcast"
	case VariantUnicastSPSC:
		return "unicast-spsc"
	case VariantUnicastSPMC:
		return "unicast-spmc"
	case VariantUnicastMPMC:
		return "unicast-mpmc"
	default:
		return "unknown"
	}
}

func (v Variant) wireVariant() ringVariant {
	switch v {
	case VariantUnicastSPSC:
		return variantUnicastSPSC
	case VariantUnicastSPMC:
		return variantUnicastSPMC
	case VariantUnicastMPMC:
		return variantUnicastMPMC
	default:
		return variantBroadcastMPMC
	}
}

// defaultCapacity is the slot count used when Builder.Capacity is never
// called. Must stay a power of two; ring math relies on it for masking.
const defaultCapacity = 1024

// Builder configures and opens a Queue, fashioned after the fluent
// channel-construction options seen across the example pack (e.g.
// hayabusa-cloud-lfq's and mmapforge's Options types) rather than the
// teacher's own flag-struct construction, since the teacher never exposed
// more than one ring shape.
type Builder struct {
	name      string
	variant   Variant
	capacity  uint64
	allocator Allocator
}

// NewBuilder starts configuring a channel identified by name. Two
// processes opening the same name must agree on every Builder option;
// mismatches are reported by Open as an error rather than silently
// coerced.
func NewBuilder(name string) *Builder {
	return &Builder{name: name, variant: VariantBroadcast, capacity: defaultCapacity, allocator: NewMmapAllocator()}
}

// Variant selects the ring protocol. Default is VariantBroadcast.
func (b *Builder) Variant(v Variant) *Builder {
	b.variant = v
	return b
}

// Capacity sets the ring's slot count, which must be a power of two.
// Default is 1024.
func (b *Builder) Capacity(n uint64) *Builder {
	b.capacity = n
	return b
}

// WithAllocator overrides the default mmap-backed Allocator, mainly for
// tests that want an isolated or in-memory-only segment source.
func (b *Builder) WithAllocator(a Allocator) *Builder {
	b.allocator = a
	return b
}

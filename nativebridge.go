package nativebridge

// Addr is an address in the bridge's address space. Address 0 is the null
// pointer and is never handed out by a heap.
type Addr uint64

// Memory provides byte access to a mapped address range.
//
// The returned slice is a view: writes through it are visible to later reads.
type Memory interface {
	Read(addr Addr, length uint64) ([]byte, bool)
}

// Allocator hands out aligned blocks of memory.
type Allocator interface {
	Alloc(size, align uint64) (Addr, error)
	Free(addr Addr, size, align uint64) error
}

// Heap is a contiguous mapped region that can both be read and allocated from.
type Heap interface {
	Memory
	Allocator

	// Base returns the first address of the region.
	Base() Addr

	// Limit returns one past the last address of the region.
	Limit() Addr
}

// AlignUp rounds addr up to the next multiple of align. align must be a power of two.
func AlignUp(addr Addr, align uint64) Addr {
	if align <= 1 {
		return addr
	}
	mask := Addr(align - 1)
	return (addr + mask) &^ mask
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v uint64) bool {
	return v != 0 && v&(v-1) == 0
}

package memory

import (
	"fortio.org/safecast"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
)

// nullGuard is the number of bytes reserved at address 0 so that no block
// is ever handed out at the null address.
const nullGuard = 16

// Arena is a heap whose bytes live in a Go slice mapped at a fixed base address.
type Arena struct {
	fl   *freeList
	data []byte
	base nb.Addr
}

var _ nb.Heap = (*Arena)(nil)

// NewArena creates an arena of size bytes starting at base.
func NewArena(base nb.Addr, size uint64) *Arena {
	start := base
	if start < nullGuard {
		start = nullGuard
	}
	end := base + nb.Addr(size)
	return &Arena{
		base: base,
		data: make([]byte, size),
		fl:   newFreeList(start, end),
	}
}

// Base returns the first mapped address.
func (a *Arena) Base() nb.Addr { return a.base }

// Limit returns one past the last mapped address.
func (a *Arena) Limit() nb.Addr { return a.base + nb.Addr(len(a.data)) }

// Read returns a view of length bytes at addr.
func (a *Arena) Read(addr nb.Addr, length uint64) ([]byte, bool) {
	if addr < a.base || addr+nb.Addr(length) < addr || addr+nb.Addr(length) > a.Limit() {
		return nil, false
	}
	off, err := safecast.Conv[int](uint64(addr - a.base))
	if err != nil {
		return nil, false
	}
	n, err := safecast.Conv[int](length)
	if err != nil {
		return nil, false
	}
	return a.data[off : off+n : off+n], true
}

// Alloc reserves size bytes aligned to align. The block is zeroed.
func (a *Arena) Alloc(size, align uint64) (nb.Addr, error) {
	if !nb.IsPowerOfTwo(align) {
		return 0, errors.InvalidInput(errors.PhaseMemory, "alignment must be a power of two")
	}
	addr, ok := a.fl.alloc(size, align)
	if !ok {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size, align)
	}
	if view, ok := a.Read(addr, size); ok {
		clear(view)
	}
	return addr, nil
}

// Free releases a block previously returned by Alloc with the same size.
func (a *Arena) Free(addr nb.Addr, size, align uint64) error {
	if align > 1 && uint64(addr)%align != 0 {
		return errors.New(errors.PhaseMemory, errors.KindInvalidInput).
			Value(uint64(addr)).
			Detail("block %#x is not aligned to %d", uint64(addr), align).
			Build()
	}
	return a.fl.dealloc(addr, size)
}

// Stats reports current occupancy.
func (a *Arena) Stats() Stats {
	return a.fl.stats()
}

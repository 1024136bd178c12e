package memory

import (
	"fortio.org/safecast"
	"github.com/tetratelabs/wazero/api"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
)

const wasmPageSize = 65536

// Linear is a heap inside WebAssembly linear memory, mapped at base.
//
// Offset start of the linear memory is the first byte handed out; everything
// below it belongs to the module (data segments, stack). Views returned by
// Read are invalidated when the memory grows.
type Linear struct {
	Mem  api.Memory
	fl   *freeList
	base nb.Addr
}

var _ nb.Heap = (*Linear)(nil)

// NewLinear wraps a wazero memory as a heap mapped at base.
func NewLinear(mem api.Memory, base nb.Addr, start uint32) (*Linear, error) {
	if mem == nil {
		return nil, errors.InvalidInput(errors.PhaseMemory, "nil linear memory")
	}
	if start < nullGuard && base == 0 {
		start = nullGuard
	}
	size := mem.Size()
	if start > size {
		return nil, errors.OutOfBounds(errors.PhaseMemory, uint64(start), 0)
	}
	return &Linear{
		Mem:  mem,
		base: base,
		fl:   newFreeList(base+nb.Addr(start), base+nb.Addr(size)),
	}, nil
}

// Base returns the address of linear offset 0.
func (l *Linear) Base() nb.Addr { return l.base }

// Limit returns one past the last currently mapped address.
func (l *Linear) Limit() nb.Addr { return l.base + nb.Addr(l.Mem.Size()) }

func (l *Linear) offset(addr nb.Addr, length uint64) (uint32, uint32, bool) {
	if addr < l.base {
		return 0, 0, false
	}
	off, err := safecast.Conv[uint32](uint64(addr - l.base))
	if err != nil {
		return 0, 0, false
	}
	n, err := safecast.Conv[uint32](length)
	if err != nil {
		return 0, 0, false
	}
	return off, n, true
}

// Read returns a view of length bytes at addr.
func (l *Linear) Read(addr nb.Addr, length uint64) ([]byte, bool) {
	off, n, ok := l.offset(addr, length)
	if !ok {
		return nil, false
	}
	return l.Mem.Read(off, n)
}

// Alloc reserves size bytes aligned to align, growing the memory when needed.
func (l *Linear) Alloc(size, align uint64) (nb.Addr, error) {
	if !nb.IsPowerOfTwo(align) {
		return 0, errors.InvalidInput(errors.PhaseMemory, "alignment must be a power of two")
	}
	if addr, ok := l.fl.alloc(size, align); ok {
		l.zero(addr, size)
		return addr, nil
	}

	pages, err := safecast.Conv[uint32]((size + align + wasmPageSize - 1) / wasmPageSize)
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size, align)
	}
	prev, ok := l.Mem.Grow(pages)
	if !ok {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size, align)
	}
	start := l.base + nb.Addr(uint64(prev)*wasmPageSize)
	l.fl.grow(start, l.Limit())

	addr, ok := l.fl.alloc(size, align)
	if !ok {
		return 0, errors.AllocationFailed(errors.PhaseMemory, size, align)
	}
	l.zero(addr, size)
	return addr, nil
}

func (l *Linear) zero(addr nb.Addr, size uint64) {
	if view, ok := l.Read(addr, size); ok {
		clear(view)
	}
}

// Free releases a block previously returned by Alloc with the same size.
func (l *Linear) Free(addr nb.Addr, size, align uint64) error {
	if align > 1 && uint64(addr)%align != 0 {
		return errors.New(errors.PhaseMemory, errors.KindInvalidInput).
			Value(uint64(addr)).
			Detail("block %#x is not aligned to %d", uint64(addr), align).
			Build()
	}
	return l.fl.dealloc(addr, size)
}

// ReadU32 reads an unsigned 32-bit little-endian value.
func (l *Linear) ReadU32(addr nb.Addr) (uint32, error) {
	off, _, ok := l.offset(addr, 4)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, uint64(addr), 4)
	}
	v, ok := l.Mem.ReadUint32Le(off)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, uint64(addr), 4)
	}
	return v, nil
}

// WriteU32 writes an unsigned 32-bit little-endian value.
func (l *Linear) WriteU32(addr nb.Addr, value uint32) error {
	off, _, ok := l.offset(addr, 4)
	if !ok || !l.Mem.WriteUint32Le(off, value) {
		return errors.OutOfBounds(errors.PhaseMemory, uint64(addr), 4)
	}
	return nil
}

// Stats reports current occupancy.
func (l *Linear) Stats() Stats {
	return l.fl.stats()
}

package memory

import (
	"encoding/binary"
	"sort"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
)

// PointerSize is the width of an address stored in memory.
const PointerSize = 8

// Space is a flat address space assembled from non-overlapping heaps.
type Space struct {
	heaps []nb.Heap // sorted by base
}

// NewSpace creates an address space with the given heaps mapped.
func NewSpace(heaps ...nb.Heap) *Space {
	s := &Space{}
	for _, h := range heaps {
		_ = s.Map(h)
	}
	return s
}

// Map adds a heap to the space. Mapping the same heap twice is a no-op.
func (s *Space) Map(h nb.Heap) error {
	for _, m := range s.heaps {
		if m == h {
			return nil
		}
		if h.Base() < m.Limit() && m.Base() < h.Limit() {
			return errors.New(errors.PhaseMemory, errors.KindInvalidInput).
				Value(uint64(h.Base())).
				Detail("heap [%#x, %#x) overlaps [%#x, %#x)",
					uint64(h.Base()), uint64(h.Limit()), uint64(m.Base()), uint64(m.Limit())).
				Build()
		}
	}
	s.heaps = append(s.heaps, h)
	sort.Slice(s.heaps, func(i, j int) bool { return s.heaps[i].Base() < s.heaps[j].Base() })
	return nil
}

// Unmap removes a heap from the space.
func (s *Space) Unmap(h nb.Heap) {
	for i, m := range s.heaps {
		if m == h {
			s.heaps = append(s.heaps[:i], s.heaps[i+1:]...)
			return
		}
	}
}

// Owner returns the heap containing addr.
func (s *Space) Owner(addr nb.Addr) (nb.Heap, bool) {
	i := sort.Search(len(s.heaps), func(i int) bool { return s.heaps[i].Limit() > addr })
	if i < len(s.heaps) && s.heaps[i].Base() <= addr {
		return s.heaps[i], true
	}
	return nil, false
}

// Read returns a view of length bytes at addr.
func (s *Space) Read(addr nb.Addr, length uint64) ([]byte, bool) {
	h, ok := s.Owner(addr)
	if !ok {
		return nil, false
	}
	return h.Read(addr, length)
}

// ReadAddr loads a pointer stored at addr.
func (s *Space) ReadAddr(addr nb.Addr) (nb.Addr, bool) {
	b, ok := s.Read(addr, PointerSize)
	if !ok {
		return 0, false
	}
	return nb.Addr(binary.LittleEndian.Uint64(b)), true
}

// WriteAddr stores a pointer at addr.
func (s *Space) WriteAddr(addr, value nb.Addr) bool {
	b, ok := s.Read(addr, PointerSize)
	if !ok {
		return false
	}
	binary.LittleEndian.PutUint64(b, uint64(value))
	return true
}

// Copy copies length bytes from src to dst. Ranges may live in different heaps.
func (s *Space) Copy(dst, src nb.Addr, length uint64) error {
	if length == 0 {
		return nil
	}
	d, ok := s.Read(dst, length)
	if !ok {
		return errors.OutOfBounds(errors.PhaseMemory, uint64(dst), length)
	}
	v, ok := s.Read(src, length)
	if !ok {
		return errors.OutOfBounds(errors.PhaseMemory, uint64(src), length)
	}
	copy(d, v)
	return nil
}

// Zero clears length bytes at addr.
func (s *Space) Zero(addr nb.Addr, length uint64) error {
	if length == 0 {
		return nil
	}
	d, ok := s.Read(addr, length)
	if !ok {
		return errors.OutOfBounds(errors.PhaseMemory, uint64(addr), length)
	}
	clear(d)
	return nil
}

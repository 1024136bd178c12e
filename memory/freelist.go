package memory

import (
	"fmt"
	"sort"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
)

// span is a free range [start, end).
type span struct {
	start nb.Addr
	end   nb.Addr
}

// freeList is a first-fit allocator over address ranges with coalescing.
type freeList struct {
	free []span            // sorted by start, non-adjacent
	used map[nb.Addr]uint64 // block start -> size
	live uint64
}

func newFreeList(start, end nb.Addr) *freeList {
	fl := &freeList{used: make(map[nb.Addr]uint64)}
	if end > start {
		fl.free = append(fl.free, span{start: start, end: end})
	}
	return fl
}

// grow adds [start, end) to the free ranges.
func (fl *freeList) grow(start, end nb.Addr) {
	fl.release(span{start: start, end: end})
}

func (fl *freeList) alloc(size, align uint64) (nb.Addr, bool) {
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}
	for i, s := range fl.free {
		at := nb.AlignUp(s.start, align)
		if at < s.start || at+nb.Addr(size) > s.end || at+nb.Addr(size) < at {
			continue
		}

		var repl []span
		if at > s.start {
			repl = append(repl, span{start: s.start, end: at})
		}
		if at+nb.Addr(size) < s.end {
			repl = append(repl, span{start: at + nb.Addr(size), end: s.end})
		}
		fl.free = append(fl.free[:i], append(repl, fl.free[i+1:]...)...)
		fl.used[at] = size
		fl.live += size
		return at, true
	}
	return 0, false
}

func (fl *freeList) dealloc(addr nb.Addr, size uint64) error {
	if size == 0 {
		size = 1
	}
	got, ok := fl.used[addr]
	if !ok {
		return errors.New(errors.PhaseMemory, errors.KindNotFound).
			Value(uint64(addr)).
			Detail("free of unknown block %#x", uint64(addr)).
			Build()
	}
	if got != size {
		return errors.New(errors.PhaseMemory, errors.KindInvalidInput).
			Value(uint64(addr)).
			Detail("free of block %#x with size %d, allocated with %d", uint64(addr), size, got).
			Build()
	}
	delete(fl.used, addr)
	fl.live -= size
	fl.release(span{start: addr, end: addr + nb.Addr(size)})
	return nil
}

func (fl *freeList) release(s span) {
	i := sort.Search(len(fl.free), func(i int) bool { return fl.free[i].start >= s.start })
	fl.free = append(fl.free, span{})
	copy(fl.free[i+1:], fl.free[i:])
	fl.free[i] = s

	// merge with successor, then predecessor
	if i+1 < len(fl.free) && fl.free[i].end == fl.free[i+1].start {
		fl.free[i].end = fl.free[i+1].end
		fl.free = append(fl.free[:i+1], fl.free[i+2:]...)
	}
	if i > 0 && fl.free[i-1].end == fl.free[i].start {
		fl.free[i-1].end = fl.free[i].end
		fl.free = append(fl.free[:i], fl.free[i+1:]...)
	}
}

// Stats describes heap occupancy.
type Stats struct {
	LiveBlocks int
	LiveBytes  uint64
	FreeRanges int
}

func (fl *freeList) stats() Stats {
	return Stats{
		LiveBlocks: len(fl.used),
		LiveBytes:  fl.live,
		FreeRanges: len(fl.free),
	}
}

func (s Stats) String() string {
	return fmt.Sprintf("%d block(s), %d byte(s) live, %d free range(s)", s.LiveBlocks, s.LiveBytes, s.FreeRanges)
}

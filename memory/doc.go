// Package memory provides the heaps that back native payloads and managed
// objects.
//
// Every heap is mapped at a base address inside one flat address space, so a
// wrapper object and the native value it exposes have comparable addresses
// and a meaningful displacement between them.
//
// # Heaps
//
// Arena keeps its bytes in a Go slice:
//
//	native := memory.NewArena(0x4000_0000, 1<<20)
//	addr, err := native.Alloc(24, 8)
//
// Linear keeps its bytes in WebAssembly linear memory owned by wazero:
//
//	heap, err := memory.NewLinear(instance.Memory(), 0x7f00_0000_0000, 1024)
//
// # Address Space
//
// Space dispatches reads to the heap that owns an address:
//
//	space := memory.NewSpace()
//	_ = space.Map(native)
//	data, ok := space.Read(addr, 24)
//
// None of these types lock; callers serialize access through the managed
// environment's global lock.
package memory

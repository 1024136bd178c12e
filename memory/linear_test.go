package memory

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	nb "github.com/wippyai/nativebridge"
)

// memoryWASM is a minimal WASM module with 1 page of memory exported as "memory"
var memoryWASM = []byte{
	0x00, 0x61, 0x73, 0x6d, // magic
	0x01, 0x00, 0x00, 0x00, // version
	0x05, 0x03, 0x01, 0x00, 0x01, // memory section: 1 page, no max
	0x07, 0x0a, 0x01, // export section: 10 bytes, 1 export
	0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // name: "memory" (6 bytes + string)
	0x02, 0x00, // kind: memory, index 0
}

func instantiateMemory(t *testing.T) api.Memory {
	t.Helper()
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	t.Cleanup(func() { rt.Close(ctx) })

	compiled, err := rt.CompileModule(ctx, memoryWASM)
	if err != nil {
		t.Fatalf("failed to compile: %v", err)
	}

	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig())
	if err != nil {
		t.Fatalf("failed to instantiate: %v", err)
	}

	mem := mod.ExportedMemory("memory")
	if mem == nil {
		t.Fatal("module does not export memory")
	}
	return mem
}

func TestNewLinear_Nil(t *testing.T) {
	if _, err := NewLinear(nil, 0, 0); err == nil {
		t.Error("expected error for nil memory")
	}
}

func TestLinear_ReadWrite(t *testing.T) {
	const base = nb.Addr(0x7f00_0000_0000)
	heap, err := NewLinear(instantiateMemory(t), base, 1024)
	if err != nil {
		t.Fatalf("NewLinear: %v", err)
	}

	p, err := heap.Alloc(16, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if p != base+1024 {
		t.Fatalf("expected first block at %#x, got %#x", base+1024, p)
	}

	if err := heap.WriteU32(p, 0x12345678); err != nil {
		t.Fatalf("WriteU32 failed: %v", err)
	}
	v, err := heap.ReadU32(p)
	if err != nil {
		t.Fatalf("ReadU32 failed: %v", err)
	}
	if v != 0x12345678 {
		t.Errorf("ReadU32: expected 0x12345678, got 0x%x", v)
	}

	view, ok := heap.Read(p, 4)
	if !ok {
		t.Fatal("Read failed")
	}
	if view[0] != 0x78 {
		t.Errorf("expected little-endian low byte 0x78, got 0x%x", view[0])
	}

	if _, ok := heap.Read(base+65536, 1); ok {
		t.Error("expected out of bounds read to fail")
	}
	if _, ok := heap.Read(base-1, 1); ok {
		t.Error("expected read below base to fail")
	}
}

func TestLinear_Grow(t *testing.T) {
	mem := instantiateMemory(t)
	heap, err := NewLinear(mem, 0x10_0000_0000, 0)
	if err != nil {
		t.Fatalf("NewLinear: %v", err)
	}

	if _, err := heap.Alloc(60000, 8); err != nil {
		t.Fatalf("first alloc: %v", err)
	}
	p, err := heap.Alloc(32768, 8)
	if err != nil {
		t.Fatalf("alloc after exhaustion should grow memory: %v", err)
	}
	if mem.Size() < 2*wasmPageSize {
		t.Fatalf("memory did not grow: %d bytes", mem.Size())
	}
	if p+32768 > heap.Limit() {
		t.Fatalf("block %#x exceeds limit %#x", p, heap.Limit())
	}
	if err := heap.Free(p, 32768, 8); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if got := heap.Stats().LiveBlocks; got != 1 {
		t.Fatalf("expected 1 live block, got %d", got)
	}
}

func TestLinear_InSpace(t *testing.T) {
	heap, err := NewLinear(instantiateMemory(t), 0x7f00_0000_0000, 64)
	if err != nil {
		t.Fatalf("NewLinear: %v", err)
	}
	arena := NewArena(0x1000, 0x1000)
	s := NewSpace(arena, heap)

	p, _ := heap.Alloc(8, 8)
	if !s.WriteAddr(p, 0x1234) {
		t.Fatal("WriteAddr into linear memory failed")
	}
	got, ok := s.ReadAddr(p)
	if !ok || got != 0x1234 {
		t.Fatalf("ReadAddr = %#x, %v", got, ok)
	}
}

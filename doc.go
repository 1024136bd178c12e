// Package nativebridge provides the identity, lifetime and ownership engine of
// an object bridge between native memory and a reference-counted managed
// environment.
//
// Native values live at addresses in a simulated address space. The bridge
// exposes them to the managed environment as wrapper objects, keeps one
// wrapper per (address, exact type) pair, and decides what happens to the
// native value when it crosses over: reuse an existing wrapper, copy, move,
// take ownership, or alias it while keeping another object alive.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	nativebridge/        Root package with Addr, Memory, Allocator and TypeInfo
//	├── memory/          Heaps: Go-backed arenas and wazero linear memory
//	├── host/            Managed environment: objects, types, weak refs, GC
//	├── registry/        Address map, type map and keep-alive table
//	├── bridge/          Type factory, instance lifecycle, wrap/unwrap policies
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
//	space := memory.NewSpace()
//	env, err := host.New(space, host.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	native := memory.NewArena(0x4000_0000, 1<<20)
//	ctx, err := bridge.New(env, native, bridge.DefaultOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer ctx.Close()
//
//	pointInfo := nativebridge.NewTypeInfo("geo::Point")
//	pointType, err := ctx.RegisterType(&bridge.TypeSpec{
//	    Name:  "Point",
//	    Type:  pointInfo,
//	    Size:  16,
//	    Align: 8,
//	    Caps:  bridge.TrivialCaps(),
//	})
//
//	ptr, _ := native.Alloc(16, 8)
//	obj, isNew, err := ctx.Wrap(pointInfo, ptr, bridge.PolicyTakeOwnership, nil)
//
// # Thread Safety
//
// Nothing in this module locks on its own. The managed environment owns a
// single global execution lock (host.Env.Acquire) and every call into the
// bridge must happen while holding it.
package nativebridge

// Package registry provides the bookkeeping tables of the bridge.
//
// Three tables exist:
//
//	AddrMap        native address -> wrapper(s) living at that address
//	TypeMap        native type identity -> type descriptor
//	KeepAliveTable wrapper -> dependents released when the wrapper dies
//
// # Aliasing
//
// Several wrappers may legitimately refer to one address, e.g. a struct
// and its first field. AddrMap stores either a Single wrapper or a Chain of
// them; callers disambiguate by the wrapper's exact type:
//
//	m := registry.NewAddrMap()
//	m.Insert(0x1000, w1)
//	m.Insert(0x1000, w2) // promotes the entry to a Chain
//
//	w, ok := m.Find(0x1000, func(o host.Object) bool {
//	    return o.Head().Type() == wantType
//	})
//
// # Observers
//
// AddrMap notifies subscribed observers when wrappers are inserted and
// removed, which is useful for tracing identity bugs in tests.
//
// # Thread Safety
//
// None of the tables lock. Callers hold the managed environment's
// execution lock.
package registry

package registry

import (
	"slices"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

// AddrMap maps native addresses to the wrappers referring to them.
type AddrMap struct {
	entries   map[nb.Addr]Entry
	observers []Observer
	count     int
}

// NewAddrMap creates an empty address map.
func NewAddrMap() *AddrMap {
	return &AddrMap{
		entries: make(map[nb.Addr]Entry),
	}
}

// Insert registers inst under addr, appending to an existing entry.
// Registering the same wrapper twice under one address is an error.
func (m *AddrMap) Insert(addr nb.Addr, inst host.Object) error {
	switch e := m.entries[addr].(type) {
	case nil:
		m.entries[addr] = Single{Inst: inst}
	case Single:
		if e.Inst == inst {
			return duplicate(addr)
		}
		m.entries[addr] = &Chain{Insts: []host.Object{e.Inst, inst}}
	case *Chain:
		if slices.Contains(e.Insts, inst) {
			return duplicate(addr)
		}
		e.Insts = append(e.Insts, inst)
	}
	m.count++

	m.notify(Event{
		Type:  EventInserted,
		Addr:  addr,
		Value: inst,
	})
	return nil
}

func duplicate(addr nb.Addr) error {
	return errors.New(errors.PhaseLifecycle, errors.KindDuplicate).
		Value(uint64(addr)).
		Detail("duplicate instance at %#x", uint64(addr)).
		Build()
}

// Remove unregisters inst from addr and reports whether it was found.
// A chain reduced to one wrapper collapses back into a Single entry.
func (m *AddrMap) Remove(addr nb.Addr, inst host.Object) bool {
	switch e := m.entries[addr].(type) {
	case Single:
		if e.Inst != inst {
			return false
		}
		delete(m.entries, addr)
	case *Chain:
		i := slices.Index(e.Insts, inst)
		if i < 0 {
			return false
		}
		e.Insts = slices.Delete(e.Insts, i, i+1)
		if len(e.Insts) == 1 {
			m.entries[addr] = Single{Inst: e.Insts[0]}
		}
	default:
		return false
	}
	m.count--

	m.notify(Event{
		Type:  EventRemoved,
		Addr:  addr,
		Value: inst,
	})
	return true
}

// Lookup returns the entry stored under addr.
func (m *AddrMap) Lookup(addr nb.Addr) (Entry, bool) {
	e, ok := m.entries[addr]
	return e, ok
}

// Find returns the first wrapper at addr accepted by match.
func (m *AddrMap) Find(addr nb.Addr, match func(host.Object) bool) (host.Object, bool) {
	e, ok := m.entries[addr]
	if !ok {
		return nil, false
	}
	for i := range e.Len() {
		if inst := e.At(i); match(inst) {
			return inst, true
		}
	}
	return nil, false
}

// Each calls fn for every registered wrapper until fn returns false.
func (m *AddrMap) Each(fn func(nb.Addr, host.Object) bool) {
	for addr, e := range m.entries {
		for i := range e.Len() {
			if !fn(addr, e.At(i)) {
				return
			}
		}
	}
}

// Len returns the number of addresses with at least one wrapper.
func (m *AddrMap) Len() int {
	return len(m.entries)
}

// Count returns the total number of registered wrappers.
func (m *AddrMap) Count() int {
	return m.count
}

// Subscribe adds an observer.
func (m *AddrMap) Subscribe(o Observer) {
	m.observers = append(m.observers, o)
}

// Unsubscribe removes an observer.
func (m *AddrMap) Unsubscribe(o Observer) {
	for i, obs := range m.observers {
		if obs == o {
			m.observers = append(m.observers[:i], m.observers[i+1:]...)
			return
		}
	}
}

func (m *AddrMap) notify(e Event) {
	for _, o := range m.observers {
		o.OnRegistryEvent(e)
	}
}

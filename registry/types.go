package registry

import (
	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/host"
)

// EventType distinguishes address map notifications.
type EventType uint8

const (
	EventInserted EventType = iota
	EventRemoved
)

// Event describes a change to the address map.
type Event struct {
	Value host.Object
	Addr  nb.Addr
	Type  EventType
}

// Observer receives address map notifications.
type Observer interface {
	OnRegistryEvent(Event)
}

// Entry is the value stored under one address.
type Entry interface {
	// Len returns the number of wrappers at the address.
	Len() int

	// At returns the i-th wrapper in insertion order.
	At(i int) host.Object

	entry()
}

// Single is an entry holding exactly one wrapper.
type Single struct {
	Inst host.Object
}

func (Single) Len() int { return 1 }

func (s Single) At(int) host.Object { return s.Inst }

func (Single) entry() {}

// Chain is an entry holding two or more wrappers for one address.
type Chain struct {
	Insts []host.Object
}

func (c *Chain) Len() int { return len(c.Insts) }

func (c *Chain) At(i int) host.Object { return c.Insts[i] }

func (*Chain) entry() {}

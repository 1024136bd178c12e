package host

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	nb "github.com/wippyai/nativebridge"
)

// Plain is an object with no state beyond its header, such as instances
// of classes defined in the managed environment.
type Plain struct {
	Header
}

func objectNew(e *Env, t *Type, _ []Object) (Object, error) {
	o := &Plain{}
	if err := e.GenericAlloc(o, t, 0); err != nil {
		return nil, err
	}
	return o, nil
}

func objectInit(*Env, Object, []Object) error { return nil }

// Int is a managed integer.
type Int struct {
	Header
	V int64
}

// NewInt creates an integer object.
func (e *Env) NewInt(v int64) (*Int, error) {
	o := &Int{V: v}
	if err := e.GenericAlloc(o, e.IntType, 0); err != nil {
		return nil, err
	}
	return o, nil
}

func intRepr(_ *Env, self Object) string {
	return strconv.FormatInt(self.(*Int).V, 10)
}

// Str is a managed string.
type Str struct {
	Header
	V string
}

// NewStr creates a string object.
func (e *Env) NewStr(s string) (*Str, error) {
	o := &Str{V: s}
	if err := e.GenericAlloc(o, e.StrType, 0); err != nil {
		return nil, err
	}
	return o, nil
}

func strRepr(_ *Env, self Object) string {
	return strconv.Quote(self.(*Str).V)
}

// Dict is a string-keyed dictionary holding a reference to each value.
type Dict struct {
	Header
	items map[string]Object
}

// NewDict creates an empty dictionary.
func (e *Env) NewDict() (*Dict, error) {
	d := &Dict{items: make(map[string]Object)}
	if err := e.GenericAlloc(d, e.DictType, 0); err != nil {
		return nil, err
	}
	return d, nil
}

// Get returns a borrowed reference to the value stored under key.
func (d *Dict) Get(key string) (Object, bool) {
	v, ok := d.items[key]
	return v, ok
}

// Set stores value under key, replacing any previous value.
func (d *Dict) Set(key string, value Object) {
	d.env.IncRef(value)
	old, ok := d.items[key]
	d.items[key] = value
	if ok {
		d.env.DecRef(old)
	}
}

// Del removes key and reports whether it was present.
func (d *Dict) Del(key string) bool {
	old, ok := d.items[key]
	if !ok {
		return false
	}
	delete(d.items, key)
	d.env.DecRef(old)
	return true
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.items) }

// Keys returns the keys in sorted order.
func (d *Dict) Keys() []string {
	return slices.Sorted(maps.Keys(d.items))
}

// Clear removes all entries.
func (d *Dict) Clear() {
	items := d.items
	d.items = make(map[string]Object)
	for _, v := range items {
		d.env.DecRef(v)
	}
}

func dictTraverse(_ *Env, self Object, visit VisitFunc) {
	for _, v := range self.(*Dict).items {
		visit(v)
	}
}

func dictClear(_ *Env, self Object) {
	self.(*Dict).Clear()
}

func dictDealloc(e *Env, self Object) {
	e.Untrack(self)
	self.(*Dict).Clear()
	ObjectDealloc(e, self)
}

// DictOf returns the attribute dictionary of o, creating it when create is
// set. It returns nil when the type of o has no dictionary slot.
func (e *Env) DictOf(o Object, create bool) (*Dict, error) {
	h := o.Head()
	if h.dict != nil || !create || h.typ.DictOffset == 0 {
		return h.dict, nil
	}
	d, err := e.NewDict()
	if err != nil {
		return nil, err
	}
	h.dict = d
	return d, nil
}

// ClearDict drops the attribute dictionary of o.
func (e *Env) ClearDict(o Object) {
	h := o.Head()
	if d := h.dict; d != nil {
		h.dict = nil
		e.DecRef(d)
	}
}

// Capsule wraps an opaque native pointer and a release callback invoked when
// the capsule is deallocated.
type Capsule struct {
	Header
	release func(nb.Addr)
	Payload nb.Addr
}

// NewCapsule creates a capsule owning payload.
func (e *Env) NewCapsule(payload nb.Addr, release func(nb.Addr)) (*Capsule, error) {
	c := &Capsule{Payload: payload, release: release}
	if err := e.GenericAlloc(c, e.CapsuleType, 0); err != nil {
		return nil, err
	}
	return c, nil
}

func capsuleDealloc(e *Env, self Object) {
	c := self.(*Capsule)
	if release := c.release; release != nil {
		c.release = nil
		release(c.Payload)
	}
	ObjectDealloc(e, c)
}

// Module is a named namespace.
type Module struct {
	Header
	Name string
}

// NewModule creates an empty module.
func (e *Env) NewModule(name string) (*Module, error) {
	m := &Module{Name: name}
	if err := e.GenericAlloc(m, e.ModuleType, 0); err != nil {
		return nil, err
	}
	s, err := e.NewStr(name)
	if err != nil {
		e.DecRef(m)
		return nil, err
	}
	defer e.DecRef(s)
	if err := e.SetAttr(m, "__name__", s); err != nil {
		e.DecRef(m)
		return nil, err
	}
	return m, nil
}

func (m *Module) String() string {
	return fmt.Sprintf("<module '%s'>", m.Name)
}

func moduleTraverse(_ *Env, self Object, visit VisitFunc) {
	if d := self.Head().dict; d != nil {
		visit(d)
	}
}

func moduleClear(e *Env, self Object) {
	e.ClearDict(self)
}

func moduleDealloc(e *Env, self Object) {
	e.Untrack(self)
	ObjectDealloc(e, self)
}

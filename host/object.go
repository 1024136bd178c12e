package host

import (
	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
)

const (
	// HeaderSize is the size of the fixed object header in host memory.
	HeaderSize = 16

	// ObjectAlign is the alignment of every object allocation.
	ObjectAlign = 16
)

// Object is any value living in the managed environment.
type Object interface {
	Head() *Header
}

// Header is the bookkeeping shared by all managed objects. Concrete object
// types embed it.
type Header struct {
	env      *Env
	typ      *Type
	dict     *Dict
	weakrefs []*WeakRef
	addr     nb.Addr
	size     uint64
	refcnt   int64
	tracked  bool
	immortal bool
}

// Head returns the header itself so that embedding types satisfy Object.
func (h *Header) Head() *Header { return h }

// Type returns the object's type.
func (h *Header) Type() *Type { return h.typ }

// Addr returns the address of the object's allocation in host memory.
func (h *Header) Addr() nb.Addr { return h.addr }

// Size returns the size of the object's allocation.
func (h *Header) Size() uint64 { return h.size }

// RefCount returns the current reference count.
func (h *Header) RefCount() int64 { return h.refcnt }

// Env returns the environment that owns the object.
func (h *Header) Env() *Env { return h.env }

// Dict returns the instance attribute dictionary, or nil.
func (h *Header) Dict() *Dict { return h.dict }

// IncRef adds a reference to o.
func (e *Env) IncRef(o Object) {
	if o == nil {
		return
	}
	h := o.Head()
	if h.immortal {
		return
	}
	h.refcnt++
}

// DecRef drops a reference to o, deallocating it when none remain.
func (e *Env) DecRef(o Object) {
	if o == nil {
		return
	}
	h := o.Head()
	if h.immortal {
		return
	}
	h.refcnt--
	if h.refcnt > 0 {
		return
	}
	if h.refcnt < 0 {
		panic(errors.Invariant(errors.PhaseHost, "", "negative reference count on %s object at %#x",
			h.typ.Name, uint64(h.addr)))
	}
	e.dealloc(o)
}

func (e *Env) dealloc(o Object) {
	h := o.Head()
	if len(h.weakrefs) > 0 {
		e.clearWeakRefs(o)
	}
	if dealloc := h.typ.Slots.Dealloc; dealloc != nil {
		dealloc(e, o)
		return
	}
	ObjectDealloc(e, o)
}

// ObjectDealloc is the default deallocator: it untracks o, drops its
// attribute dictionary, frees its memory and releases its type.
func ObjectDealloc(e *Env, o Object) {
	h := o.Head()
	t := h.typ
	e.ClearDict(o)
	if err := e.Free(o); err != nil {
		e.log.Error("free failed", nameField(t), errField(err))
	}
	e.DecRef(t)
}

// Alloc reserves size bytes of host memory for an object.
func (e *Env) Alloc(size uint64) (nb.Addr, error) {
	addr, err := e.heap.Alloc(size, ObjectAlign)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseHost, errors.KindAllocation, err, "object allocation failed")
	}
	return addr, nil
}

// AllocObject allocates size bytes for o and publishes it as a new object of
// type t with a single reference. The object is not tracked by the collector.
func (e *Env) AllocObject(o Object, t *Type, size uint64) error {
	addr, err := e.Alloc(size)
	if err != nil {
		return err
	}
	e.initObject(o, t, addr, size)
	return nil
}

// GenericAlloc allocates t.BasicSize plus extra bytes for o and publishes it.
// Objects of collector-aware types are tracked.
func (e *Env) GenericAlloc(o Object, t *Type, extra uint64) error {
	if err := e.AllocObject(o, t, t.BasicSize+extra); err != nil {
		return err
	}
	if t.Flags.Has(FlagHaveGC) {
		e.Track(o)
	}
	return nil
}

func (e *Env) initObject(o Object, t *Type, addr nb.Addr, size uint64) {
	h := o.Head()
	*h = Header{
		env:    e,
		typ:    t,
		addr:   addr,
		size:   size,
		refcnt: 1,
	}
	e.IncRef(t)
	e.objects[addr] = o
}

// Realloc moves o to a fresh allocation of size bytes, preserving contents.
// It must only be used before o has been published anywhere by address.
func (e *Env) Realloc(o Object, size uint64) error {
	h := o.Head()
	addr, err := e.Alloc(size)
	if err != nil {
		return err
	}
	if err := e.space.Copy(addr, h.addr, min(size, h.size)); err != nil {
		_ = e.heap.Free(addr, size, ObjectAlign)
		return err
	}
	if err := e.heap.Free(h.addr, h.size, ObjectAlign); err != nil {
		return err
	}
	delete(e.objects, h.addr)
	h.addr = addr
	h.size = size
	e.objects[addr] = o
	return nil
}

// Free releases the memory of o. The object must not be used afterwards.
func (e *Env) Free(o Object) error {
	h := o.Head()
	e.Untrack(o)
	delete(e.objects, h.addr)
	return e.heap.Free(h.addr, h.size, ObjectAlign)
}

// ObjectAt returns the live object allocated at addr.
func (e *Env) ObjectAt(addr nb.Addr) (Object, bool) {
	o, ok := e.objects[addr]
	return o, ok
}

// LiveObjects returns the number of live heap objects.
func (e *Env) LiveObjects() int {
	return len(e.objects)
}

// Track adds o to the set of objects examined by the cycle collector.
func (e *Env) Track(o Object) {
	h := o.Head()
	if h.tracked {
		return
	}
	h.tracked = true
	e.tracked[o] = struct{}{}
}

// Untrack removes o from the cycle collector. Untracking twice is harmless.
func (e *Env) Untrack(o Object) {
	h := o.Head()
	if !h.tracked {
		return
	}
	h.tracked = false
	delete(e.tracked, o)
}

// IsTracked reports whether o participates in cycle collection.
func (e *Env) IsTracked(o Object) bool {
	return o.Head().tracked
}

package bridge

import (
	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

// IsInstance reports whether o is a wrapper of t or of a type deriving from it.
func (c *Context) IsInstance(o host.Object, t *nb.TypeInfo) bool {
	if o == nil {
		return false
	}
	td, ok := c.types.Lookup(t)
	if !ok {
		return false
	}
	return o.Head().Type().IsSubtype(td.HostType)
}

// InstancePtr returns the payload address of a wrapper.
func (c *Context) InstancePtr(o host.Object) (nb.Addr, bool) {
	inst, ok := c.asInstance(o)
	if !ok {
		return 0, false
	}
	return c.instPtr(inst), true
}

// FindInstance returns the wrapper of exactly type t at ptr. The result is borrowed.
func (c *Context) FindInstance(ptr nb.Addr, t *nb.TypeInfo) (*Instance, bool) {
	o, ok := c.addrs.Find(ptr, func(o host.Object) bool {
		td := typeData(o.Head().Type())
		return td != nil && td.Type.Equal(t)
	})
	if !ok {
		return nil, false
	}
	return o.(*Instance), true
}

// InstanceState returns the ready and destruct flags of a wrapper.
func (c *Context) InstanceState(inst *Instance) (ready, destruct bool) {
	return inst.ready, inst.destruct
}

// SetInstanceState sets the ready and destruct flags of a wrapper. The
// wrapper frees the native memory on deallocation exactly when it destructs
// a value it does not embed.
func (c *Context) SetInstanceState(inst *Instance, ready, destruct bool) {
	inst.ready = ready
	inst.destruct = destruct
	inst.cppDelete = destruct && !inst.internal
}

// ZeroInstance zero-fills the payload and marks it constructed and owned.
func (c *Context) ZeroInstance(inst *Instance) error {
	td := typeData(inst.Type())
	if err := c.space.Zero(c.instPtr(inst), td.Size); err != nil {
		return err
	}
	inst.ready = true
	inst.destruct = true
	return nil
}

// DestructInstance runs the destructor of an owned payload and marks the
// wrapper not ready.
func (c *Context) DestructInstance(inst *Instance) error {
	td := typeData(inst.Type())
	if inst.destruct {
		if !td.Caps.Destructible() {
			return c.fatal(errors.Invariant(errors.PhaseLifecycle, td.Name,
				"attempted to call the destructor of a non-destructible type"))
		}
		if fn := td.Caps.Destruct.Func; fn != nil {
			fn(c.instPtr(inst))
		}
		inst.destruct = false
	}
	inst.ready = false
	return nil
}

// CopyInstance copy-constructs the payload of dst from that of src. Both
// wrappers must have the same type.
func (c *Context) CopyInstance(dst, src *Instance) error {
	return c.transfer(dst, src, false)
}

// MoveInstance move-constructs the payload of dst from that of src, falling
// back to a copy for types that are not movable.
func (c *Context) MoveInstance(dst, src *Instance) error {
	return c.transfer(dst, src, true)
}

func (c *Context) transfer(dst, src *Instance, move bool) error {
	td := typeData(dst.Type())
	ctor := td.Caps.Copy
	if move && td.Caps.Movable() {
		ctor = td.Caps.Move
	} else {
		move = false
	}
	if dst.Type() != src.Type() || ctor == nil {
		op := "copy"
		if move {
			op = "move"
		}
		return c.fatal(errors.Invariant(errors.PhaseLifecycle, td.Name, "%s: invalid arguments", op))
	}
	if err := c.construct(td, ctor, c.instPtr(dst), c.instPtr(src), move); err != nil {
		return err
	}
	dst.ready = true
	dst.destruct = true
	return nil
}

// NewInstance allocates a wrapper of type t with an embedded payload that
// is not constructed yet.
func (c *Context) NewInstance(t *host.Type) (*Instance, error) {
	if err := c.checkOpen(errors.PhaseLifecycle); err != nil {
		return nil, err
	}
	if !c.IsBridgeType(t) {
		return nil, errors.TypeMismatch(errors.PhaseLifecycle, "", t.FullName())
	}
	return c.newInstance(t, 0)
}

// WrapInstance creates a wrapper of type t referring to ptr without taking
// ownership. The wrapper is not ready.
func (c *Context) WrapInstance(t *host.Type, ptr nb.Addr) (*Instance, error) {
	if err := c.checkOpen(errors.PhaseLifecycle); err != nil {
		return nil, err
	}
	if !c.IsBridgeType(t) {
		return nil, errors.TypeMismatch(errors.PhaseLifecycle, "", t.FullName())
	}
	if ptr == 0 {
		return nil, errors.InvalidInput(errors.PhaseLifecycle, "cannot wrap a null pointer")
	}
	return c.newInstance(t, ptr)
}

// IsManagedDerived reports whether o is an instance of a type subclassed
// from the managed side.
func (c *Context) IsManagedDerived(o host.Object) bool {
	td := typeData(o.Head().Type())
	return td != nil && td.ManagedDerived
}

// InstanceTypeName returns the qualified name of the type of o.
func (c *Context) InstanceTypeName(o host.Object) string {
	return c.TypeName(o.Head().Type())
}

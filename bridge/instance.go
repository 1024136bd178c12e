package bridge

import (
	"fortio.org/safecast"
	"go.uber.org/zap"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

const (
	// InstanceHeaderSize is the size of a wrapper's header in host memory.
	// Embedded payloads start at the first suitably aligned address after it.
	InstanceHeaderSize = 24

	// PointerSize is the size of an indirect payload pointer.
	PointerSize = 8
)

// Instance is a wrapper object: the managed view of one native value.
type Instance struct {
	host.Header

	// offset locates the payload relative to the wrapper's address; when
	// direct is false it locates a pointer to the payload instead.
	offset int32
	direct bool

	// internal is set when the payload is embedded in the wrapper.
	internal bool

	// ready is set once the payload holds a constructed value.
	ready bool

	// destruct and cppDelete record what deallocation must do to the payload.
	destruct  bool
	cppDelete bool

	// clearKeepAlive is set while the keep-alive table has an entry for the wrapper.
	clearKeepAlive bool
}

// Ready reports whether the payload has been constructed.
func (i *Instance) Ready() bool { return i.ready }

// Destruct reports whether deallocation runs the destructor.
func (i *Instance) Destruct() bool { return i.destruct }

// CppDelete reports whether deallocation frees the native memory.
func (i *Instance) CppDelete() bool { return i.cppDelete }

// Internal reports whether the payload is embedded in the wrapper.
func (i *Instance) Internal() bool { return i.internal }

// Direct reports whether the payload is reached without an indirection.
func (i *Instance) Direct() bool { return i.direct }

// Offset returns the payload displacement, or the displacement of the
// payload pointer for indirect wrappers.
func (i *Instance) Offset() int32 { return i.offset }

// KeepsAlive reports whether the wrapper has keep-alive dependents.
func (i *Instance) KeepsAlive() bool { return i.clearKeepAlive }

// instPtr returns the payload address of inst.
func (c *Context) instPtr(inst *Instance) nb.Addr {
	p := inst.Addr() + nb.Addr(int64(inst.offset))
	if inst.direct {
		return p
	}
	v, _ := c.space.ReadAddr(p)
	return v
}

// newInstance allocates a wrapper of type t. With value == 0 the payload is
// embedded in the wrapper; otherwise the wrapper refers to value. The new
// wrapper is registered in the address map and is not ready.
func (c *Context) newInstance(t *host.Type, value nb.Addr) (*Instance, error) {
	td := typeData(t)
	if td == nil {
		return nil, errors.TypeMismatch(errors.PhaseLifecycle, "", t.FullName())
	}

	inst := &Instance{}
	var err error
	if t.Flags.Has(host.FlagHaveGC) {
		err = c.env.GenericAlloc(inst, t, 0)
	} else {
		size := uint64(InstanceHeaderSize)
		if value == 0 {
			size = td.layoutSize()
		}
		err = c.env.AllocObject(inst, t, size)
	}
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLifecycle, errors.KindAllocation, err, "cannot allocate "+td.Name+" instance")
	}

	self := inst.Addr()
	if value == 0 {
		payload := nb.AlignUp(self+InstanceHeaderSize, td.Align)
		inst.offset = int32(payload - self)
		inst.direct = true
		inst.internal = true
		value = payload
	} else if off, cerr := safecast.Conv[int32](int64(value - self)); cerr == nil {
		inst.offset = off
		inst.direct = true
	} else {
		if need := uint64(InstanceHeaderSize + PointerSize); inst.Size() < need {
			if err := c.env.Realloc(inst, need); err != nil {
				c.discard(inst)
				return nil, errors.Wrap(errors.PhaseLifecycle, errors.KindAllocation, err, "cannot grow "+td.Name+" instance")
			}
		}
		slot := inst.Addr() + InstanceHeaderSize
		if !c.space.WriteAddr(slot, value) {
			c.discard(inst)
			return nil, errors.OutOfBounds(errors.PhaseLifecycle, uint64(slot), PointerSize)
		}
		inst.offset = InstanceHeaderSize
		inst.direct = false
	}

	if _, dup := c.addrs.Find(value, func(o host.Object) bool { return o.Head().Type() == t }); dup {
		err := c.fatal(errors.Invariant(errors.PhaseLifecycle, td.Name,
			"duplicate instance of the same type at %#x", uint64(value)))
		c.discard(inst)
		return nil, err
	}
	if err := c.addrs.Insert(value, inst); err != nil {
		ferr := c.fatal(errors.New(errors.PhaseLifecycle, errors.KindInvariant).
			TypeName(td.Name).Cause(err).Detail("cannot register instance").Build())
		c.discard(inst)
		return nil, ferr
	}

	c.log.Debug("instance allocated",
		zap.String("type", td.Name),
		zap.Uint64("addr", uint64(self)),
		zap.Uint64("payload", uint64(value)),
		zap.Bool("internal", inst.internal),
		zap.Bool("direct", inst.direct))
	return inst, nil
}

// discard releases a wrapper that was never registered.
func (c *Context) discard(inst *Instance) {
	t := inst.Type()
	if err := c.env.Free(inst); err != nil {
		c.log.Error("cannot free instance", zap.String("type", t.FullName()), zap.Error(err))
	}
	c.env.DecRef(t)
}

// instNew is the New slot of bridge types.
func (c *Context) instNew(_ *host.Env, t *host.Type, _ []host.Object) (host.Object, error) {
	inst, err := c.newInstance(t, 0)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// instInit is the default Init slot: types without a bound constructor
// cannot be instantiated from the managed side.
func (c *Context) instInit(_ *host.Env, self host.Object, _ []host.Object) error {
	name := self.Head().Type().FullName()
	if td := typeData(self.Head().Type()); td != nil {
		name = td.Name
	}
	return errors.New(errors.PhaseLifecycle, errors.KindUnsupported).
		TypeName(name).
		Detail("%s: no constructor defined!", name).
		Build()
}

// instDealloc is the Dealloc slot of bridge types.
func (c *Context) instDealloc(e *host.Env, self host.Object) {
	inst := self.(*Instance)
	t := inst.Type()
	td := typeData(t)

	if t.Flags.Has(host.FlagHaveGC) {
		e.Untrack(inst)
	}
	if td.Caps.DynamicAttr {
		e.ClearDict(inst)
	}

	// Unlink first: hooks below may run arbitrary code that looks the
	// address up again.
	p := c.instPtr(inst)
	if !c.addrs.Remove(p, inst) {
		c.fatal(errors.Invariant(errors.PhaseLifecycle, td.Name,
			"attempted to delete an unknown instance (%#x)", uint64(p)))
	}

	if inst.destruct {
		inst.destruct = false
		if !td.Caps.Destructible() {
			c.fatal(errors.Invariant(errors.PhaseLifecycle, td.Name,
				"attempted to call the destructor of a non-destructible type"))
		} else if fn := td.Caps.Destruct.Func; fn != nil {
			fn(p)
		}
	}

	if inst.cppDelete {
		inst.cppDelete = false
		c.freeNative(td, p)
	}

	if inst.clearKeepAlive {
		inst.clearKeepAlive = false
		deps, ok := c.keepAlive.Take(inst)
		if !ok {
			c.fatal(errors.Invariant(errors.PhaseKeepAlive, td.Name, "inconsistent keep_alive information"))
		}
		for _, d := range deps {
			d.Drop(e)
		}
	}

	c.log.Debug("instance deallocated",
		zap.String("type", td.Name),
		zap.Uint64("addr", uint64(inst.Addr())),
		zap.Uint64("payload", uint64(p)))

	if err := e.Free(inst); err != nil {
		c.log.Error("cannot free instance", zap.String("type", td.Name), zap.Error(err))
	}
	e.DecRef(t)
}

// freeNative releases native memory owned by a wrapper.
func (c *Context) freeNative(td *TypeData, p nb.Addr) {
	heap, ok := c.space.Owner(p)
	if !ok {
		c.log.Error("payload is not in a mapped heap",
			zap.String("type", td.Name), zap.Uint64("payload", uint64(p)))
		return
	}
	if err := heap.Free(p, td.Size, td.Align); err != nil {
		c.log.Error("cannot free payload",
			zap.String("type", td.Name), zap.Uint64("payload", uint64(p)), zap.Error(err))
	}
}

// instTraverse visits what an instance with an attribute dictionary refers to.
func (c *Context) instTraverse(_ *host.Env, self host.Object, visit host.VisitFunc) {
	if d := self.Head().Dict(); d != nil {
		visit(d)
	}
	visit(self.Head().Type())
}

// instClear breaks reference cycles through the attribute dictionary.
func (c *Context) instClear(e *host.Env, self host.Object) {
	e.ClearDict(self)
}

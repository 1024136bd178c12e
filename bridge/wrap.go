package bridge

import (
	"go.uber.org/zap"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

// Wrap returns a wrapper for the native value of type t at ptr, following
// policy. isNew reports whether the wrapper was created by this call and
// owns what policy gave it. A zero ptr yields None.
//
// Unless policy is PolicyCopy, an existing wrapper of t, or of a type
// deriving from it, at ptr is returned instead of creating a new one.
func (c *Context) Wrap(t *nb.TypeInfo, ptr nb.Addr, policy Policy, cleanup *Cleanup) (host.Object, bool, error) {
	return c.put(t, nil, ptr, policy, cleanup)
}

// WrapDynamic is Wrap for a value whose most-derived type, dynamic, may be
// more specific than its static type. Existing wrappers of either type are
// reused; new wrappers use the dynamic type when it is registered.
func (c *Context) WrapDynamic(static, dynamic *nb.TypeInfo, ptr nb.Addr, policy Policy, cleanup *Cleanup) (host.Object, bool, error) {
	if dynamic != nil && dynamic.Equal(static) {
		dynamic = nil
	}
	return c.put(static, dynamic, ptr, policy, cleanup)
}

func (c *Context) put(t, dyn *nb.TypeInfo, ptr nb.Addr, policy Policy, cleanup *Cleanup) (host.Object, bool, error) {
	if err := c.checkOpen(errors.PhaseWrap); err != nil {
		return nil, false, err
	}
	e := c.env
	if ptr == 0 {
		e.IncRef(e.None)
		return e.None, false, nil
	}
	policy = policy.resolve()

	var td, tdDyn *TypeData
	lookup := func() bool {
		if td == nil {
			td, _ = c.types.Lookup(t)
			if dyn != nil {
				tdDyn, _ = c.types.Lookup(dyn)
			}
		}
		return td != nil || tdDyn != nil
	}

	if policy != PolicyCopy {
		if entry, ok := c.addrs.Lookup(ptr); ok {
			for i := range entry.Len() {
				inst := entry.At(i)
				tp := inst.Head().Type()
				itd := typeData(tp)
				if itd.Type.Equal(t) || (dyn != nil && itd.Type.Equal(dyn)) {
					e.IncRef(inst)
					return inst, false, nil
				}
				if !lookup() {
					return nil, false, c.unregistered(t)
				}
				if (td != nil && tp.IsSubtype(td.HostType)) || (tdDyn != nil && tp.IsSubtype(tdDyn.HostType)) {
					e.IncRef(inst)
					return inst, false, nil
				}
			}
		}
		if policy == PolicyNone {
			name := t.String()
			if lookup() && td != nil {
				name = td.Name
			}
			return nil, false, errors.NoConversion(errors.PhaseWrap, name,
				"no existing instance and policy forbids creating one")
		}
	}

	if !lookup() {
		return nil, false, c.unregistered(t)
	}
	if tdDyn != nil {
		td = tdDyn
	}
	return c.putCommon(td, ptr, policy, cleanup)
}

func (c *Context) unregistered(t *nb.TypeInfo) error {
	return errors.NotFound(errors.PhaseWrap, "type", errors.Demangle(t.String()))
}

// putCommon creates a new wrapper for ptr under policy.
func (c *Context) putCommon(td *TypeData, ptr nb.Addr, policy Policy, cleanup *Cleanup) (host.Object, bool, error) {
	e := c.env
	if policy == PolicyReferenceInternal && cleanup.Self() == nil {
		return nil, false, errors.NoConversion(errors.PhaseWrap, td.Name,
			"reference_internal requires a cleanup list with a self object")
	}

	intrusive := td.Caps.Intrusive != nil && td.Caps.Intrusive.SetSelf != nil
	if intrusive {
		policy = PolicyTakeOwnership
	}
	storeInObj := policy == PolicyCopy || policy == PolicyMove

	var value nb.Addr
	if !storeInObj {
		value = ptr
	}
	inst, err := c.newInstance(td.HostType, value)
	if err != nil {
		return nil, false, err
	}
	newValue := c.instPtr(inst)

	if policy == PolicyMove {
		switch {
		case td.Caps.Movable():
			if err := c.construct(td, td.Caps.Move, newValue, ptr, true); err != nil {
				e.DecRef(inst)
				return nil, false, err
			}
		case td.Caps.Copyable():
			policy = PolicyCopy
		default:
			ferr := c.fatal(errors.Invariant(errors.PhaseWrap, td.Name,
				"attempted to move an instance that is neither copy- nor move-constructible!"))
			e.DecRef(inst)
			return nil, false, ferr
		}
	}
	if policy == PolicyCopy {
		if !td.Caps.Copyable() {
			ferr := c.fatal(errors.Invariant(errors.PhaseWrap, td.Name,
				"attempted to copy an instance that is not copy-constructible!"))
			e.DecRef(inst)
			return nil, false, ferr
		}
		if err := c.construct(td, td.Caps.Copy, newValue, ptr, false); err != nil {
			e.DecRef(inst)
			return nil, false, err
		}
	}

	isNew := true
	if sh := td.Caps.Shared; sh != nil && sh.KeepAlive != nil && !storeInObj && sh.KeepAlive(c, inst) {
		policy = PolicyReference
		isNew = false
	}

	inst.destruct = policy != PolicyReference && policy != PolicyReferenceInternal
	inst.cppDelete = policy == PolicyTakeOwnership
	inst.ready = true

	if policy == PolicyReferenceInternal {
		if err := c.KeepAlive(inst, cleanup.Self()); err != nil {
			e.DecRef(inst)
			return nil, false, err
		}
	}
	if intrusive {
		td.Caps.Intrusive.SetSelf(newValue, inst)
	}

	c.log.Debug("wrapped",
		zap.String("type", td.Name),
		zap.Stringer("policy", policy),
		zap.Uint64("payload", uint64(newValue)),
		zap.Bool("new", isNew))
	return inst, isNew, nil
}

// construct copy- or move-constructs dst from src. A trivial move leaves
// the source zeroed.
func (c *Context) construct(td *TypeData, ctor *Constructor, dst, src nb.Addr, move bool) error {
	if ctor.Func != nil {
		if err := ctor.Func(dst, src); err != nil {
			return errors.New(errors.PhaseWrap, errors.KindInvalidInput).
				TypeName(td.Name).
				Cause(err).
				Detail("constructor failed").
				Build()
		}
		return nil
	}
	if err := c.space.Copy(dst, src, td.Size); err != nil {
		return err
	}
	if move {
		return c.space.Zero(src, td.Size)
	}
	return nil
}

// WrapUnique wraps a value whose unique owner is handed over. With
// cppDelete the wrapper takes full ownership; otherwise the value must
// already have a wrapper that gave up ownership earlier, which becomes
// ready again.
func (c *Context) WrapUnique(t *nb.TypeInfo, ptr nb.Addr, cleanup *Cleanup, cppDelete bool) (host.Object, error) {
	policy := PolicyNone
	if cppDelete {
		policy = PolicyTakeOwnership
	}
	o, isNew, err := c.put(t, nil, ptr, policy, cleanup)
	if err != nil {
		return nil, err
	}
	inst, ok := c.asInstance(o)
	if !ok {
		return o, nil
	}
	td := typeData(inst.Type())

	if !cppDelete && isNew {
		c.env.DecRef(o)
		return nil, c.fatal(errors.Invariant(errors.PhaseWrap, td.Name, "ownership status has become corrupted."))
	}

	if cppDelete {
		if inst.ready != isNew || inst.destruct != isNew || inst.cppDelete != isNew {
			ferr := errors.Invariant(errors.PhaseWrap, td.Name,
				"unexpected status flags! (ready=%t, destruct=%t, cpp_delete=%t)",
				inst.ready, inst.destruct, inst.cppDelete)
			c.env.DecRef(o)
			return nil, c.fatal(ferr)
		}
		inst.ready = true
		inst.destruct = true
		inst.cppDelete = true
	} else {
		if inst.ready {
			c.env.DecRef(o)
			return nil, c.fatal(errors.Invariant(errors.PhaseWrap, td.Name, "ownership status has become corrupted."))
		}
		inst.ready = true
	}
	return inst, nil
}

// RelinquishOwnership hands the value of a wrapper back to native code. The
// wrapper stays alive but is no longer ready. With cppDelete, native code
// takes over destruction too, which requires the wrapper to own a value it
// does not embed.
func (c *Context) RelinquishOwnership(o host.Object, cppDelete bool) error {
	inst, ok := c.asInstance(o)
	if !ok {
		return errors.TypeMismatch(errors.PhaseUnwrap, "", o.Head().Type().FullName())
	}
	td := typeData(inst.Type())

	if !inst.ready {
		return c.fatal(errors.Invariant(errors.PhaseUnwrap, td.Name, "ownership status has become corrupted."))
	}

	if cppDelete {
		if !inst.cppDelete || !inst.destruct || inst.internal {
			c.log.Warn("cannot transfer ownership",
				zap.String("type", td.Name),
				zap.Bool("cpp_delete", inst.cppDelete),
				zap.Bool("destruct", inst.destruct),
				zap.Bool("internal", inst.internal))
			return errors.NoConversion(errors.PhaseUnwrap, td.Name,
				"cannot transfer ownership of an instance that does not own a separately allocated value")
		}
		inst.cppDelete = false
		inst.destruct = false
	}

	inst.ready = false
	return nil
}

package bridge

import (
	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

// KeepAlive keeps patient alive at least as long as nurse. Nil or None
// arguments make it a no-op.
//
// Wrapper nurses record the patient in the keep-alive table, once per
// patient. Any other nurse must support weak references: the patient is
// released by the callback of a weak reference to the nurse. A nurse that
// cannot be weakly referenced is an invariant violation.
func (c *Context) KeepAlive(nurse, patient host.Object) error {
	if err := c.checkOpen(errors.PhaseKeepAlive); err != nil {
		return err
	}
	e := c.env
	if nurse == nil || patient == nil || e.IsNone(nurse) || e.IsNone(patient) {
		return nil
	}

	if inst, ok := c.asInstance(nurse); ok {
		if c.keepAlive.AddPatient(inst, patient) {
			e.IncRef(patient)
			inst.clearKeepAlive = true
		}
		return nil
	}

	_, err := e.NewWeakRef(nurse, func(w *host.WeakRef) {
		e.DecRef(w)
		e.DecRef(patient)
	})
	if err != nil {
		return c.fatal(errors.New(errors.PhaseKeepAlive, errors.KindInvariant).
			HostType(nurse.Head().Type().FullName()).
			Cause(err).
			Detail("could not create a weak reference! Likely, the 'nurse' argument is not a weak-referenceable type").
			Build())
	}
	// The weak reference is owned by its own callback.
	e.IncRef(patient)
	return nil
}

// KeepAliveFunc calls release(payload) once nurse is deallocated. Wrapper
// nurses run their callbacks before their object patients; other nurses
// keep a capsule alive through KeepAlive.
func (c *Context) KeepAliveFunc(nurse host.Object, payload nb.Addr, release func(nb.Addr)) error {
	if err := c.checkOpen(errors.PhaseKeepAlive); err != nil {
		return err
	}
	if nurse == nil {
		return c.fatal(errors.Invariant(errors.PhaseKeepAlive, "", "'nurse' is undefined!"))
	}

	if inst, ok := c.asInstance(nurse); ok {
		c.keepAlive.AddRelease(inst, payload, release)
		inst.clearKeepAlive = true
		return nil
	}

	capsule, err := c.env.NewCapsule(payload, release)
	if err != nil {
		return err
	}
	defer c.env.DecRef(capsule)
	return c.KeepAlive(nurse, capsule)
}

package host

import (
	"slices"

	"github.com/wippyai/nativebridge/errors"
)

// WeakRef observes an object without keeping it alive. Its callback runs
// once, when the referent is deallocated.
type WeakRef struct {
	Header
	referent Object
	callback func(*WeakRef)
}

// NewWeakRef creates a weak reference to o. It fails when the type of o
// does not support weak references.
func (e *Env) NewWeakRef(o Object, callback func(*WeakRef)) (*WeakRef, error) {
	tp := o.Head().typ
	if !tp.Flags.Has(FlagWeakRefable) {
		return nil, errors.New(errors.PhaseHost, errors.KindWeakRef).
			HostType(tp.FullName()).
			Detail("cannot create weak reference to '%s' object", tp.Name).
			Build()
	}
	w := &WeakRef{referent: o, callback: callback}
	if err := e.GenericAlloc(w, e.WeakRefType, 0); err != nil {
		return nil, err
	}
	h := o.Head()
	h.weakrefs = append(h.weakrefs, w)
	return w, nil
}

// Referent returns a borrowed reference to the referent, or nil once it has
// been deallocated.
func (w *WeakRef) Referent() Object {
	return w.referent
}

// WeakRefCount returns the number of weak references to o.
func (e *Env) WeakRefCount(o Object) int {
	return len(o.Head().weakrefs)
}

func (e *Env) clearWeakRefs(o Object) {
	h := o.Head()
	refs := h.weakrefs
	h.weakrefs = nil
	for _, w := range refs {
		w.referent = nil
	}
	for _, w := range refs {
		if cb := w.callback; cb != nil {
			w.callback = nil
			cb(w)
		}
	}
}

func weakrefDealloc(e *Env, self Object) {
	w := self.(*WeakRef)
	if r := w.referent; r != nil {
		h := r.Head()
		h.weakrefs = slices.DeleteFunc(h.weakrefs, func(x *WeakRef) bool { return x == w })
		w.referent = nil
	}
	w.callback = nil
	ObjectDealloc(e, w)
}

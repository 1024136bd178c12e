package host

import (
	"fmt"

	"github.com/wippyai/nativebridge/errors"
)

func noAttribute(t *Type, name string) *errors.Error {
	return errors.Attribute(t.FullName(), fmt.Sprintf("object has no attribute '%s'", name))
}

func isDataDescriptor(o Object) bool {
	s := o.Head().typ.Slots
	return s.DescrGet != nil && s.DescrSet != nil
}

// GetAttr returns a new reference to attribute name of o, invoking
// descriptors found on the type.
func (e *Env) GetAttr(o Object, name string) (Object, error) {
	if t, ok := o.(*Type); ok {
		return e.typeGetAttr(t, name)
	}

	tp := o.Head().typ
	descr, found := tp.Lookup(name)
	if found && isDataDescriptor(descr) {
		return descr.Head().typ.Slots.DescrGet(e, descr, o, tp)
	}
	if d := o.Head().dict; d != nil {
		if v, ok := d.Get(name); ok {
			e.IncRef(v)
			return v, nil
		}
	}
	if found {
		if get := descr.Head().typ.Slots.DescrGet; get != nil {
			return get(e, descr, o, tp)
		}
		e.IncRef(descr)
		return descr, nil
	}
	return nil, noAttribute(tp, name)
}

func (e *Env) typeGetAttr(t *Type, name string) (Object, error) {
	meta := t.typ
	mdescr, mfound := meta.Lookup(name)
	if mfound && isDataDescriptor(mdescr) {
		return mdescr.Head().typ.Slots.DescrGet(e, mdescr, t, meta)
	}

	if v, ok := t.Lookup(name); ok {
		if get := v.Head().typ.Slots.DescrGet; get != nil {
			return get(e, v, nil, t)
		}
		e.IncRef(v)
		return v, nil
	}

	if mfound {
		if get := mdescr.Head().typ.Slots.DescrGet; get != nil {
			return get(e, mdescr, t, meta)
		}
		e.IncRef(mdescr)
		return mdescr, nil
	}

	switch name {
	case "__name__":
		return e.NewStr(t.ShortName())
	case "__qualname__":
		return e.NewStr(t.QualName)
	case "__module__":
		return e.NewStr(t.Module)
	}
	return nil, errors.Attribute(t.FullName(), fmt.Sprintf("type object has no attribute '%s'", name))
}

// HasAttr reports whether GetAttr would succeed.
func (e *Env) HasAttr(o Object, name string) bool {
	v, err := e.GetAttr(o, name)
	if err != nil {
		return false
	}
	e.DecRef(v)
	return true
}

// SetAttr assigns attribute name of o through its type's SetAttr slot.
// A nil value deletes the attribute.
func (e *Env) SetAttr(o Object, name string, value Object) error {
	if set := o.Head().typ.Slots.SetAttr; set != nil {
		return set(e, o, name, value)
	}
	return GenericSetAttr(e, o, name, value)
}

// DelAttr deletes attribute name of o.
func (e *Env) DelAttr(o Object, name string) error {
	return e.SetAttr(o, name, nil)
}

// GenericSetAttr implements attribute assignment for ordinary objects:
// data descriptors on the type first, then the instance dictionary.
func GenericSetAttr(e *Env, o Object, name string, value Object) error {
	tp := o.Head().typ
	if descr, ok := tp.Lookup(name); ok {
		if set := descr.Head().typ.Slots.DescrSet; set != nil {
			return set(e, descr, o, value)
		}
	}

	d, err := e.DictOf(o, value != nil)
	if err != nil {
		return err
	}
	if d == nil {
		if tp.DictOffset == 0 {
			return errors.Attribute(tp.FullName(), fmt.Sprintf("object attribute '%s' is read-only", name))
		}
		return noAttribute(tp, name)
	}
	if value == nil {
		if !d.Del(name) {
			return noAttribute(tp, name)
		}
		return nil
	}
	d.Set(name, value)
	return nil
}

// TypeSetAttr is the attribute assignment slot of the type metatype.
func TypeSetAttr(e *Env, self Object, name string, value Object) error {
	t := self.(*Type)
	if !t.Flags.Has(FlagHeapType) {
		return errors.Attribute(t.FullName(),
			fmt.Sprintf("cannot set '%s' attribute of immutable type '%s'", name, t.Name))
	}
	if descr, ok := t.typ.Lookup(name); ok {
		if set := descr.Head().typ.Slots.DescrSet; set != nil {
			return set(e, descr, t, value)
		}
	}
	return e.setTypeAttr(t, name, value)
}

func (e *Env) setTypeAttr(t *Type, name string, value Object) error {
	if value == nil {
		old, ok := t.Attrs[name]
		if !ok {
			return errors.Attribute(t.FullName(), fmt.Sprintf("type object has no attribute '%s'", name))
		}
		delete(t.Attrs, name)
		e.DecRef(old)
		return nil
	}

	if s, ok := value.(*Str); ok {
		switch name {
		case "__module__":
			t.Module = s.V
		case "__qualname__":
			t.QualName = s.V
		case "__doc__":
			t.Doc = s.V
		}
	}

	e.IncRef(value)
	old, ok := t.Attrs[name]
	t.Attrs[name] = value
	if ok {
		e.DecRef(old)
	}
	return nil
}

package bridge

import (
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

// StaticProperty is a class-level property. Reading it through the type or
// an instance calls Get; assigning it through the type calls Set instead of
// rebinding the attribute.
type StaticProperty struct {
	host.Header
	Get func() (host.Object, error)
	Set func(value host.Object) error
}

// NewStaticProperty creates a static property descriptor. A nil set makes
// the property read-only.
func (c *Context) NewStaticProperty(get func() (host.Object, error), set func(host.Object) error) (*StaticProperty, error) {
	if err := c.checkOpen(errors.PhaseRegister); err != nil {
		return nil, err
	}
	if get == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "static property requires a getter")
	}
	t, err := c.staticPropertyType()
	if err != nil {
		return nil, err
	}
	sp := &StaticProperty{Get: get, Set: set}
	if err := c.env.GenericAlloc(sp, t, 0); err != nil {
		return nil, err
	}
	return sp, nil
}

// staticPropertyType creates the descriptor type on first use.
func (c *Context) staticPropertyType() (*host.Type, error) {
	if c.staticProp != nil {
		return c.staticProp, nil
	}
	t, err := c.env.TypeFromSpec(nil, nil, &host.TypeSpec{
		Name:      "nativebridge.static_property",
		BasicSize: host.HeaderSize + 16,
		Slots: []host.Slot{
			{ID: host.SlotDescrGet, Value: host.DescrGetFunc(staticPropertyGet)},
			{ID: host.SlotDescrSet, Value: host.DescrSetFunc(staticPropertySet)},
		},
	})
	if err != nil {
		return nil, err
	}
	c.staticProp = t
	return t, nil
}

func staticPropertyGet(_ *host.Env, descr, _ host.Object, _ *host.Type) (host.Object, error) {
	return descr.(*StaticProperty).Get()
}

func staticPropertySet(e *host.Env, descr, _, value host.Object) error {
	return descr.(*StaticProperty).set(e, value)
}

func (sp *StaticProperty) set(_ *host.Env, value host.Object) error {
	if sp.Set == nil {
		return errors.Attribute(sp.Type().FullName(), "can't set attribute")
	}
	if value == nil {
		return errors.Attribute(sp.Type().FullName(), "can't delete attribute")
	}
	return sp.Set(value)
}

package bridge

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

// RegisterType creates the type object for a native type and records it in
// the type map. The caller receives a new reference to the type; when a
// scope is given, the scope holds another one.
func (c *Context) RegisterType(spec *TypeSpec) (*host.Type, error) {
	if err := c.checkOpen(errors.PhaseRegister); err != nil {
		return nil, err
	}
	if err := spec.validate(); err != nil {
		return nil, err
	}
	e := c.env

	name, qualname, modname := spec.Name, spec.Name, ""
	var module *host.Module
	if spec.Scope != nil {
		if m, ok := spec.Scope.(*host.Module); ok {
			module = m
			modname = m.Name
		} else {
			modname = c.strAttr(spec.Scope, "__module__")
			if q := c.strAttr(spec.Scope, "__qualname__"); q != "" {
				qualname = q + "." + name
			}
		}
	}
	fullName := name
	if modname != "" {
		fullName = modname + "." + name
	}

	basicSize := layoutSize(spec.Size, spec.Align)

	var base *host.Type
	switch {
	case spec.BaseType != nil && spec.Base != nil:
		return nil, c.fatal(errors.Invariant(errors.PhaseRegister, fullName, "multiple base types specified!"))
	case spec.BaseType != nil:
		base = spec.BaseType
		if !c.IsBridgeType(base) {
			return nil, c.fatal(errors.Invariant(errors.PhaseRegister, fullName,
				"base type %s is not a bridge type", base.FullName()))
		}
	case spec.Base != nil:
		btd, ok := c.types.Lookup(spec.Base)
		if !ok {
			return nil, c.fatal(errors.Invariant(errors.PhaseRegister, fullName,
				"base type %q not known to the bridge!", errors.Demangle(spec.Base.String())))
		}
		base = btd.HostType
	}

	caps := spec.Caps
	var btd *TypeData
	if base != nil {
		btd = typeData(base)
		if btd.Caps.DynamicAttr {
			caps.DynamicAttr = true
		}
		if caps.Intrusive == nil {
			caps.Intrusive = btd.Caps.Intrusive
		}
		if caps.Shared == nil {
			caps.Shared = btd.Caps.Shared
		}
		if bsize := base.BasicSize; bsize > basicSize {
			if c.opts.StrictLayout {
				return nil, errors.New(errors.PhaseRegister, errors.KindInvalidInput).
					TypeName(fullName).
					Detail("instance layout (%d bytes) is smaller than that of base %s (%d bytes)",
						basicSize, btd.Name, bsize).
					Build()
			}
			basicSize = bsize
		}
	}

	slots := make([]host.Slot, 0, 8+len(spec.Slots))
	if base != nil {
		slots = append(slots, host.Slot{ID: host.SlotBase, Value: base})
	}
	slots = append(slots,
		host.Slot{ID: host.SlotInit, Value: host.InitFunc(c.instInit)},
		host.Slot{ID: host.SlotNew, Value: host.NewFunc(c.instNew)},
		host.Slot{ID: host.SlotDealloc, Value: host.DeallocFunc(c.instDealloc)},
	)
	if spec.Doc != "" {
		slots = append(slots, host.Slot{ID: host.SlotDoc, Value: spec.Doc})
	}
	slots = append(slots, spec.Slots...)

	hasTraverse := false
	for _, s := range spec.Slots {
		if s.ID == host.SlotTraverse {
			hasTraverse = true
		}
	}
	if caps.DynamicAttr {
		basicSize = uint64(nb.AlignUp(nb.Addr(basicSize), PointerSize)) + PointerSize
		slots = append(slots, host.Slot{ID: host.SlotMembers, Value: []host.Member{
			{Name: "__dictoffset__", Offset: basicSize - PointerSize, ReadOnly: true},
		}})
		if !hasTraverse {
			slots = append(slots,
				host.Slot{ID: host.SlotTraverse, Value: host.TraverseFunc(c.instTraverse)},
				host.Slot{ID: host.SlotClear, Value: host.ClearFunc(c.instClear)},
			)
			hasTraverse = true
		}
	}

	flags := host.FlagBaseType
	if caps.Final {
		flags = 0
	}
	if hasTraverse && (base == nil || !base.Flags.Has(host.FlagHaveGC)) {
		flags |= host.FlagHaveGC
	}

	meta, err := c.metaFor(spec.Supplement)
	if err != nil {
		return nil, err
	}

	t, err := e.TypeFromSpec(meta, module, &host.TypeSpec{
		Name:      fullName,
		BasicSize: basicSize,
		Flags:     flags,
		Slots:     slots,
	})
	if err != nil {
		return nil, c.fatal(errors.New(errors.PhaseRegister, errors.KindInvariant).
			TypeName(fullName).
			Cause(err).
			Detail("type creation failed").
			Build())
	}

	td := &TypeData{
		ctx:                c,
		Name:               fullName,
		Type:               spec.Type,
		HostType:           t,
		Size:               spec.Size,
		Align:              spec.Align,
		Supplement:         spec.Supplement,
		Caps:               caps,
		Implicit:           append([]*nb.TypeInfo(nil), spec.Implicit...),
		ImplicitPredicates: append([]ImplicitPredicate(nil), spec.ImplicitPredicates...),
	}
	t.Data = td

	if err := c.types.Insert(spec.Type, td); err != nil {
		ferr := c.fatal(errors.New(errors.PhaseRegister, errors.KindInvariant).
			TypeName(fullName).
			Cause(err).
			Detail("type %q was already registered!", errors.Demangle(spec.Type.String())).
			Build())
		e.DecRef(t)
		return nil, ferr
	}

	// typeDealloc drops the Type Map entry inserted above.
	if err := c.publish(t, spec.Scope, name, qualname, modname); err != nil {
		e.DecRef(t)
		return nil, err
	}

	c.log.Debug("type registered",
		zap.String("type", fullName),
		zap.String("native", spec.Type.String()),
		zap.Uint64("size", spec.Size),
		zap.Uint64("align", spec.Align),
		zap.Uint64("basic_size", basicSize),
		zap.Bool("gc", t.Flags.Has(host.FlagHaveGC)))
	return t, nil
}

// publish stamps the naming attributes on t and attaches it to scope.
func (c *Context) publish(t *host.Type, scope host.Object, name, qualname, modname string) error {
	e := c.env
	q, err := e.NewStr(qualname)
	if err != nil {
		return err
	}
	err = e.SetAttr(t, "__qualname__", q)
	e.DecRef(q)
	if err != nil {
		return err
	}
	if modname != "" {
		m, err := e.NewStr(modname)
		if err != nil {
			return err
		}
		err = e.SetAttr(t, "__module__", m)
		e.DecRef(m)
		if err != nil {
			return err
		}
	}
	if scope != nil {
		return e.SetAttr(scope, name, t)
	}
	return nil
}

func (c *Context) strAttr(o host.Object, name string) string {
	v, err := c.env.GetAttr(o, name)
	if err != nil {
		return ""
	}
	defer c.env.DecRef(v)
	if s, ok := v.(*host.Str); ok {
		return s.V
	}
	return ""
}

// typeInit runs when a bridge type is subclassed from the managed side.
func (c *Context) typeInit(e *host.Env, t *host.Type, bases []*host.Type) error {
	if len(bases) != 1 {
		return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			HostType(t.FullName()).
			Detail("invalid number of bases!").
			Build()
	}
	btd := typeData(bases[0])
	if btd == nil {
		return errors.New(errors.PhaseRegister, errors.KindTypeMismatch).
			HostType(t.FullName()).
			Detail("expected a base type object!").
			Build()
	}
	if btd.Caps.Final {
		return errors.New(errors.PhaseRegister, errors.KindUnsupported).
			TypeName(btd.Name).
			HostType(t.FullName()).
			Detail("The type '%s' prohibits subclassing!", btd.Name).
			Build()
	}

	if init := e.TypeType.Slots.InitType; init != nil {
		if err := init(e, t, bases); err != nil {
			return err
		}
	}

	td := *btd
	td.ManagedDerived = true
	td.Implicit = nil
	td.ImplicitPredicates = nil
	td.Name = t.FullName()
	td.HostType = t
	t.Data = &td

	c.log.Debug("managed subclass created",
		zap.String("type", td.Name),
		zap.String("base", btd.Name))
	return nil
}

// typeSetAttr is the SetAttr slot of bridge metatypes.
func (c *Context) typeSetAttr(e *host.Env, self host.Object, name string, value host.Object) error {
	t := self.(*host.Type)
	if cur, ok := t.Lookup(name); ok {
		if sp, ok := cur.(*StaticProperty); ok {
			return sp.set(e, value)
		}
		if strings.HasPrefix(name, "@") {
			return errors.Attribute(t.FullName(),
				fmt.Sprintf("internal attribute '%s' cannot be reassigned or deleted.", name))
		}
	}
	return e.TypeType.Slots.SetAttr(e, self, name, value)
}

// typeDealloc is the Dealloc slot of bridge metatypes.
func (c *Context) typeDealloc(e *host.Env, self host.Object) {
	t := self.(*host.Type)
	if td := typeData(t); td != nil && !td.ManagedDerived {
		cur, ok := c.types.Lookup(td.Type)
		switch {
		case !ok:
			c.fatal(errors.Invariant(errors.PhaseLifecycle, td.Name, "could not find type!"))
		case cur == td:
			c.types.Remove(td.Type)
			c.log.Debug("type unregistered", zap.String("type", td.Name))
		}
	}
	e.TypeType.Slots.Dealloc(e, self)
}

// LookupType returns the type object registered for t. The result is borrowed.
func (c *Context) LookupType(t *nb.TypeInfo) (*host.Type, bool) {
	td, ok := c.types.Lookup(t)
	if !ok {
		return nil, false
	}
	return td.HostType, true
}

// TypeName returns the qualified display name of a bridge type.
func (c *Context) TypeName(t *host.Type) string {
	if td := typeData(t); td != nil {
		return td.Name
	}
	return t.FullName()
}

// TypeSize returns the payload size of a bridge type.
func (c *Context) TypeSize(t *host.Type) uint64 {
	if td := typeData(t); td != nil {
		return td.Size
	}
	return 0
}

// TypeAlign returns the payload alignment of a bridge type.
func (c *Context) TypeAlign(t *host.Type) uint64 {
	if td := typeData(t); td != nil {
		return td.Align
	}
	return 0
}

// TypeInfoOf returns the native identity of a bridge type.
func (c *Context) TypeInfoOf(t *host.Type) *nb.TypeInfo {
	if td := typeData(t); td != nil {
		return td.Type
	}
	return nil
}

// Supplement returns the bytes reserved on a bridge type object for the
// registering code.
func (c *Context) Supplement(t *host.Type) []byte {
	if !c.IsBridgeType(t) {
		return nil
	}
	return c.env.Supplement(t)
}

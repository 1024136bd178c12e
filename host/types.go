package host

import (
	"fmt"
	"maps"
	"strings"

	"go.uber.org/zap"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
)

// Flags describe structural properties of a type.
type Flags uint32

const (
	FlagHeapType Flags = 1 << iota
	FlagBaseType
	FlagHaveGC
	FlagWeakRefable
)

// Has reports whether all bits of x are set.
func (f Flags) Has(x Flags) bool { return f&x == x }

type (
	NewFunc      func(e *Env, t *Type, args []Object) (Object, error)
	InitFunc     func(e *Env, self Object, args []Object) error
	DeallocFunc  func(e *Env, self Object)
	VisitFunc    func(Object)
	TraverseFunc func(e *Env, self Object, visit VisitFunc)
	ClearFunc    func(e *Env, self Object)
	SetAttrFunc  func(e *Env, self Object, name string, value Object) error
	InitTypeFunc func(e *Env, t *Type, bases []*Type) error
	DescrGetFunc func(e *Env, descr, obj Object, owner *Type) (Object, error)
	DescrSetFunc func(e *Env, descr, obj, value Object) error
	ReprFunc     func(e *Env, self Object) string
)

// Slots hold the behavior of a type. Nil slots are inherited from the base
// when the type is created.
type Slots struct {
	New      NewFunc
	Init     InitFunc
	Dealloc  DeallocFunc
	Traverse TraverseFunc
	Clear    ClearFunc
	SetAttr  SetAttrFunc
	InitType InitTypeFunc
	DescrGet DescrGetFunc
	DescrSet DescrSetFunc
	Repr     ReprFunc

	// Extra holds protocol slots (operators, iteration, buffers) that the
	// environment stores but does not interpret.
	Extra map[SlotID]any
}

// SlotID identifies an entry of a type specification's slot list.
type SlotID int

const (
	SlotBase SlotID = iota + 1
	SlotNew
	SlotInit
	SlotDealloc
	SlotDoc
	SlotTraverse
	SlotClear
	SlotMembers
	SlotSetAttr
	SlotInitType
	SlotDescrGet
	SlotDescrSet
	SlotRepr

	// Opaque protocol slots.
	SlotAdd
	SlotSubtract
	SlotMultiply
	SlotNegative
	SlotBool
	SlotInt
	SlotFloat
	SlotIndex
	SlotRichCompare
	SlotHash
	SlotCall
	SlotIter
	SlotIterNext
	SlotLength
	SlotGetItem
	SlotSetItem
	SlotContains
	SlotGetBuffer
	SlotReleaseBuffer

	slotEnd
)

// Slot is one entry of a type specification.
type Slot struct {
	Value any
	ID    SlotID
}

// Member describes a fixed-offset field of an instance layout. Only the
// special layout members __dictoffset__, __weaklistoffset__ and
// __vectorcalloffset__ are understood.
type Member struct {
	Name     string
	Offset   uint64
	ReadOnly bool
}

// TypeSpec is the declarative input of TypeFromSpec.
type TypeSpec struct {
	Name      string
	Slots     []Slot
	BasicSize uint64
	ItemSize  uint64
	Flags     Flags
}

// Type is a type object. Types are objects themselves; the type of a type
// is its metatype.
type Type struct {
	Header

	Base  *Type
	Attrs map[string]Object

	// Data is reserved for the library that created the type.
	Data any

	Name     string
	QualName string
	Module   string
	Doc      string
	Bases    []*Type

	Slots Slots

	BasicSize        uint64
	ItemSize         uint64
	DictOffset       uint64
	WeakListOffset   uint64
	VectorcallOffset uint64
	Flags            Flags
}

// ShortName returns the last dotted component of the type name.
func (t *Type) ShortName() string {
	if i := strings.LastIndexByte(t.Name, '.'); i >= 0 {
		return t.Name[i+1:]
	}
	return t.Name
}

// FullName returns "module.name" for heap types and the plain name otherwise.
func (t *Type) FullName() string {
	if t.Flags.Has(FlagHeapType) && t.Module != "" {
		return t.Module + "." + t.ShortName()
	}
	return t.Name
}

// IsSubtype reports whether t is base or derives from it.
func (t *Type) IsSubtype(base *Type) bool {
	if t == nil || base == nil {
		return false
	}
	if t == base {
		return true
	}
	if t.Base != nil && t.Base.IsSubtype(base) {
		return true
	}
	for _, b := range t.Bases {
		if b != t.Base && b.IsSubtype(base) {
			return true
		}
	}
	return false
}

// Lookup finds name in the attributes of t and its bases without invoking
// descriptors. The result is borrowed.
func (t *Type) Lookup(name string) (Object, bool) {
	for c := t; c != nil; c = c.Base {
		if v, ok := c.Attrs[name]; ok {
			return v, true
		}
		for _, b := range c.Bases {
			if b == c.Base {
				continue
			}
			if v, ok := b.Lookup(name); ok {
				return v, true
			}
		}
	}
	return nil, false
}

func (t *Type) String() string {
	return fmt.Sprintf("<class '%s'>", t.FullName())
}

// Supplement returns the supplemental data of t: the bytes its metatype
// reserves beyond a plain type object.
func (e *Env) Supplement(t *Type) []byte {
	meta := t.Type()
	if meta == nil || meta.BasicSize <= e.TypeType.BasicSize {
		return nil
	}
	size := meta.BasicSize - e.TypeType.BasicSize
	view, ok := e.space.Read(t.Addr()+nb.Addr(e.TypeType.BasicSize), size)
	if !ok {
		return nil
	}
	return view
}

func specError(name, format string, args ...any) *errors.Error {
	return errors.New(errors.PhaseHost, errors.KindInvalidInput).
		HostType(name).
		Detail(format, args...).
		Build()
}

// TypeFromSpec creates a heap type whose metatype is meta. Slot entries are
// applied in order, so later entries override earlier ones. Unknown slot ids
// and unknown members are rejected.
func (e *Env) TypeFromSpec(meta *Type, module *Module, spec *TypeSpec) (*Type, error) {
	if meta == nil {
		meta = e.TypeType
	}
	if !meta.IsSubtype(e.TypeType) {
		return nil, specError(spec.Name, "metatype %s does not derive from type", meta.Name)
	}

	t := &Type{
		Name:      spec.Name,
		BasicSize: spec.BasicSize,
		ItemSize:  spec.ItemSize,
		Flags:     spec.Flags | FlagHeapType,
		Attrs:     make(map[string]Object),
	}
	t.QualName = t.ShortName()
	if module != nil {
		t.Module = module.Name
	} else if i := strings.LastIndexByte(spec.Name, '.'); i >= 0 {
		t.Module = spec.Name[:i]
	}

	for _, s := range spec.Slots {
		if err := t.applySlot(s); err != nil {
			return nil, err
		}
	}

	if t.Base == nil {
		t.Base = e.ObjectType
	}
	if !t.Base.Flags.Has(FlagBaseType) {
		return nil, specError(spec.Name, "type '%s' is not an acceptable base type", t.Base.Name)
	}
	t.Bases = []*Type{t.Base}
	t.inherit(t.Base)

	if err := e.GenericAlloc(t, meta, 0); err != nil {
		return nil, err
	}
	e.IncRef(t.Base)
	if t.Doc != "" {
		doc, err := e.NewStr(t.Doc)
		if err == nil {
			err = e.setTypeAttr(t, "__doc__", doc)
			e.DecRef(doc)
		}
		if err != nil {
			e.DecRef(t)
			return nil, err
		}
	}

	e.log.Debug("type created",
		nameField(t),
		zap.Uint64("basic_size", t.BasicSize),
		zap.Uint64("meta_size", meta.BasicSize))
	return t, nil
}

func (t *Type) applySlot(s Slot) error {
	bad := func() error {
		return specError(t.Name, "slot %d has unexpected value of type %T", s.ID, s.Value)
	}
	var ok bool
	switch s.ID {
	case SlotBase:
		t.Base, ok = s.Value.(*Type)
	case SlotNew:
		t.Slots.New, ok = s.Value.(NewFunc)
	case SlotInit:
		t.Slots.Init, ok = s.Value.(InitFunc)
	case SlotDealloc:
		t.Slots.Dealloc, ok = s.Value.(DeallocFunc)
	case SlotDoc:
		t.Doc, ok = s.Value.(string)
	case SlotTraverse:
		t.Slots.Traverse, ok = s.Value.(TraverseFunc)
	case SlotClear:
		t.Slots.Clear, ok = s.Value.(ClearFunc)
	case SlotSetAttr:
		t.Slots.SetAttr, ok = s.Value.(SetAttrFunc)
	case SlotInitType:
		t.Slots.InitType, ok = s.Value.(InitTypeFunc)
	case SlotDescrGet:
		t.Slots.DescrGet, ok = s.Value.(DescrGetFunc)
	case SlotDescrSet:
		t.Slots.DescrSet, ok = s.Value.(DescrSetFunc)
	case SlotRepr:
		t.Slots.Repr, ok = s.Value.(ReprFunc)
	case SlotMembers:
		var members []Member
		if members, ok = s.Value.([]Member); !ok {
			return bad()
		}
		return t.applyMembers(members)
	default:
		if s.ID <= 0 || s.ID >= slotEnd {
			return specError(t.Name, "unhandled slot %d", s.ID)
		}
		if t.Slots.Extra == nil {
			t.Slots.Extra = make(map[SlotID]any)
		}
		t.Slots.Extra[s.ID] = s.Value
		return nil
	}
	if !ok {
		return bad()
	}
	return nil
}

func (t *Type) applyMembers(members []Member) error {
	for _, m := range members {
		if !m.ReadOnly {
			return specError(t.Name, "unhandled member entry %q", m.Name)
		}
		switch m.Name {
		case "__dictoffset__":
			t.DictOffset = m.Offset
		case "__weaklistoffset__":
			t.WeakListOffset = m.Offset
			t.Flags |= FlagWeakRefable
		case "__vectorcalloffset__":
			t.VectorcallOffset = m.Offset
		default:
			return specError(t.Name, "unhandled member entry %q", m.Name)
		}
	}
	return nil
}

// inherit fills unset slots and layout fields from base.
func (t *Type) inherit(base *Type) {
	if t.Slots.New == nil {
		t.Slots.New = base.Slots.New
	}
	if t.Slots.Init == nil {
		t.Slots.Init = base.Slots.Init
	}
	if t.Slots.Dealloc == nil {
		t.Slots.Dealloc = base.Slots.Dealloc
	}
	if t.Slots.SetAttr == nil {
		t.Slots.SetAttr = base.Slots.SetAttr
	}
	if t.Slots.InitType == nil {
		t.Slots.InitType = base.Slots.InitType
	}
	if t.Slots.DescrGet == nil {
		t.Slots.DescrGet = base.Slots.DescrGet
	}
	if t.Slots.DescrSet == nil {
		t.Slots.DescrSet = base.Slots.DescrSet
	}
	if t.Slots.Repr == nil {
		t.Slots.Repr = base.Slots.Repr
	}
	if base.Flags.Has(FlagHaveGC) {
		t.Flags |= FlagHaveGC
		if t.Slots.Traverse == nil && t.Slots.Clear == nil {
			t.Slots.Traverse = base.Slots.Traverse
			t.Slots.Clear = base.Slots.Clear
		}
	}
	if len(base.Slots.Extra) > 0 {
		extra := maps.Clone(base.Slots.Extra)
		maps.Copy(extra, t.Slots.Extra)
		t.Slots.Extra = extra
	}
	if t.DictOffset == 0 {
		t.DictOffset = base.DictOffset
	}
	if t.WeakListOffset == 0 && base.WeakListOffset != 0 {
		t.WeakListOffset = base.WeakListOffset
		t.Flags |= FlagWeakRefable
	}
	if t.VectorcallOffset == 0 {
		t.VectorcallOffset = base.VectorcallOffset
	}
}

// DefineClass creates a subclass from within the managed environment, as a
// class statement would. The metatype is that of the first base; its
// InitType slot runs after the type has been built. Instances gain an
// attribute dictionary and weak reference support when the base lacks them.
func (e *Env) DefineClass(name string, bases []*Type, attrs map[string]Object) (*Type, error) {
	if len(bases) == 0 {
		bases = []*Type{e.ObjectType}
	}
	base := bases[0]
	meta := base.Type()
	for _, b := range bases[1:] {
		if !meta.IsSubtype(b.Type()) {
			return nil, specError(name, "metaclass conflict between %s and %s", meta.Name, b.Type().Name)
		}
	}
	for _, b := range bases {
		if !b.Flags.Has(FlagBaseType) {
			return nil, specError(name, "type '%s' is not an acceptable base type", b.Name)
		}
	}

	t := &Type{
		Name:      name,
		QualName:  name,
		Module:    "__main__",
		Base:      base,
		Bases:     append([]*Type(nil), bases...),
		BasicSize: base.BasicSize,
		Flags:     FlagHeapType | FlagBaseType | (base.Flags & (FlagHaveGC | FlagWeakRefable)),
		Slots:     base.Slots,
		Attrs:     make(map[string]Object),
	}
	t.Slots.Extra = maps.Clone(base.Slots.Extra)
	t.DictOffset = base.DictOffset
	t.WeakListOffset = base.WeakListOffset
	t.VectorcallOffset = base.VectorcallOffset

	if t.DictOffset == 0 {
		t.DictOffset = uint64(nb.AlignUp(nb.Addr(t.BasicSize), 8))
		t.BasicSize = t.DictOffset + 8
		t.Flags |= FlagHaveGC
		t.wrapDictSlots(base)
	}
	if t.WeakListOffset == 0 {
		t.WeakListOffset = t.BasicSize
		t.BasicSize += 8
		t.Flags |= FlagWeakRefable
	}

	if err := e.GenericAlloc(t, meta, 0); err != nil {
		return nil, err
	}
	for _, b := range t.Bases {
		e.IncRef(b)
	}

	for k, v := range attrs {
		if err := e.setTypeAttr(t, k, v); err != nil {
			e.DecRef(t)
			return nil, err
		}
	}

	if meta.Slots.InitType != nil {
		if err := meta.Slots.InitType(e, t, bases); err != nil {
			e.DecRef(t)
			return nil, err
		}
	}

	e.log.Debug("class defined", nameField(t), zap.String("base", base.Name))
	return t, nil
}

// wrapDictSlots layers attribute dictionary handling over the base's
// deallocation and collector slots.
func (t *Type) wrapDictSlots(base *Type) {
	baseDealloc, baseTraverse, baseClear := base.Slots.Dealloc, base.Slots.Traverse, base.Slots.Clear

	t.Slots.Dealloc = func(e *Env, self Object) {
		e.ClearDict(self)
		if baseDealloc != nil {
			baseDealloc(e, self)
			return
		}
		ObjectDealloc(e, self)
	}
	t.Slots.Traverse = func(e *Env, self Object, visit VisitFunc) {
		if d := self.Head().dict; d != nil {
			visit(d)
		}
		if baseTraverse != nil {
			baseTraverse(e, self, visit)
			return
		}
		visit(self.Head().typ)
	}
	t.Slots.Clear = func(e *Env, self Object) {
		e.ClearDict(self)
		if baseClear != nil {
			baseClear(e, self)
		}
	}
}

func typeDealloc(e *Env, self Object) {
	t := self.(*Type)
	attrs := t.Attrs
	t.Attrs = nil
	for _, v := range attrs {
		e.DecRef(v)
	}
	bases := t.Bases
	t.Bases = nil
	for _, b := range bases {
		e.DecRef(b)
	}
	e.log.Debug("type destroyed", nameField(t))
	ObjectDealloc(e, t)
}

// Call instantiates t: its New slot creates the object and, when the result
// is an instance of t, the Init slot of the result's type initializes it.
func (e *Env) Call(t *Type, args ...Object) (Object, error) {
	if t.Slots.New == nil {
		return nil, errors.Unsupported(errors.PhaseHost, fmt.Sprintf("cannot create '%s' instances", t.Name))
	}
	obj, err := t.Slots.New(e, t, args)
	if err != nil {
		return nil, err
	}
	rt := obj.Head().typ
	if rt.IsSubtype(t) && rt.Slots.Init != nil {
		if err := rt.Slots.Init(e, obj, args); err != nil {
			e.DecRef(obj)
			return nil, err
		}
	}
	return obj, nil
}

// IsInstance reports whether o is an instance of t or one of its subtypes.
func (e *Env) IsInstance(o Object, t *Type) bool {
	return o != nil && o.Head().typ.IsSubtype(t)
}

// Repr returns a printable representation of o.
func (e *Env) Repr(o Object) string {
	if repr := o.Head().typ.Slots.Repr; repr != nil {
		return repr(e, o)
	}
	return fmt.Sprintf("<%s object at %#x>", o.Head().typ.FullName(), uint64(o.Head().addr))
}

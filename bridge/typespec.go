package bridge

import (
	"github.com/go-playground/validator/v10"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

// Destructor runs the native destructor of a payload. A nil Func marks the
// type as trivially destructible.
type Destructor struct {
	Func func(ptr nb.Addr)
}

// Constructor copy- or move-constructs dst from src. A nil Func means the
// bytes are copied as they are.
type Constructor struct {
	Func func(dst, src nb.Addr) error
}

// IntrusiveHooks are set for types that embed their own reference count and
// remember their wrapper.
type IntrusiveHooks struct {
	SetSelf func(ptr nb.Addr, self host.Object)
}

// SharedHooks are set for types whose values may be owned by a shared
// control block. KeepAlive ties the control block to the new wrapper and
// reports whether it did; in that case the wrapper does not own the value.
type SharedHooks struct {
	KeepAlive func(c *Context, inst *Instance) bool
}

// Capabilities describe what the bridge may do with a type's payloads.
// A nil Destruct, Copy or Move means the operation is unavailable.
type Capabilities struct {
	Destruct  *Destructor
	Copy      *Constructor
	Move      *Constructor
	Intrusive *IntrusiveHooks
	Shared    *SharedHooks

	// DynamicAttr gives instances an attribute dictionary.
	DynamicAttr bool

	// Final forbids subclassing from the managed side.
	Final bool
}

// TrivialCaps returns capabilities of a plain-old-data type: destructible,
// copyable and movable by copying bytes.
func TrivialCaps() Capabilities {
	return Capabilities{
		Destruct: &Destructor{},
		Copy:     &Constructor{},
		Move:     &Constructor{},
	}
}

// Destructible reports whether payloads may be destructed.
func (c Capabilities) Destructible() bool { return c.Destruct != nil }

// Copyable reports whether payloads may be copy-constructed.
func (c Capabilities) Copyable() bool { return c.Copy != nil }

// Movable reports whether payloads may be move-constructed.
func (c Capabilities) Movable() bool { return c.Move != nil }

// ImplicitPredicate decides whether src may be converted into an instance of
// dst by calling dst's constructor.
type ImplicitPredicate func(dst *host.Type, src host.Object, cleanup *Cleanup) bool

// TypeSpec is the input of RegisterType.
type TypeSpec struct {
	// Type is the native identity of the registered type.
	Type *nb.TypeInfo `validate:"required"`

	// Name is the unqualified managed name.
	Name string `validate:"required"`
	Doc  string

	// Scope is the module or type the new type is attached to.
	Scope host.Object `validate:"-"`

	// Base names a registered base type by native identity; BaseType names it
	// by its type object. At most one may be set.
	Base     *nb.TypeInfo `validate:"-"`
	BaseType *host.Type   `validate:"-"`

	Size  uint64 `validate:"lte=4294967295"`
	Align uint64 `validate:"pow2,lte=4096"`

	// Supplement is the number of bytes reserved on the type object for the
	// caller's use.
	Supplement uint64 `validate:"lte=65536"`

	Caps Capabilities `validate:"-"`

	// Slots are appended verbatim to the generated slot list.
	Slots []host.Slot `validate:"-"`

	// Implicit lists native types convertible into this one.
	Implicit           []*nb.TypeInfo      `validate:"-"`
	ImplicitPredicates []ImplicitPredicate `validate:"-"`
}

var specValidator = newSpecValidator()

func newSpecValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("pow2", func(fl validator.FieldLevel) bool {
		return nb.IsPowerOfTwo(fl.Field().Uint())
	}); err != nil {
		panic(err)
	}
	return v
}

func (s *TypeSpec) validate() error {
	if err := specValidator.Struct(s); err != nil {
		return errors.New(errors.PhaseRegister, errors.KindInvalidInput).
			TypeName(s.Name).
			Cause(err).
			Detail("invalid type specification").
			Build()
	}
	return nil
}

// TypeData is the descriptor the bridge keeps for each type object it
// manages, stored in host.Type.Data.
type TypeData struct {
	ctx *Context

	// Name is the qualified display name used in diagnostics.
	Name     string
	Type     *nb.TypeInfo
	HostType *host.Type

	Size       uint64
	Align      uint64
	Supplement uint64
	Caps       Capabilities

	Implicit           []*nb.TypeInfo
	ImplicitPredicates []ImplicitPredicate

	// ManagedDerived is set on types subclassed from the managed side.
	ManagedDerived bool
}

func (td *TypeData) hasImplicit() bool {
	return len(td.Implicit) > 0 || len(td.ImplicitPredicates) > 0
}

// layoutSize is the instance size needed for an embedded payload.
func (td *TypeData) layoutSize() uint64 {
	return layoutSize(td.Size, td.Align)
}

func layoutSize(size, align uint64) uint64 {
	n := InstanceHeaderSize + size
	if align > PointerSize {
		n += align - PointerSize
	}
	return n
}

func typeData(t *host.Type) *TypeData {
	if t == nil {
		return nil
	}
	td, _ := t.Data.(*TypeData)
	return td
}

package host

import (
	"sync"

	"go.uber.org/zap"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/memory"
)

// TypeObjectSize is the basic size of a plain type object.
const TypeObjectSize = 128

// Env is a reference-counted managed environment. Objects are allocated from
// an object heap mapped into a shared address space, so that native code can
// address them the same way it addresses its own memory.
//
// Env methods must be called while holding the execution lock (Acquire).
type Env struct {
	log     *zap.Logger
	space   *memory.Space
	heap    *memory.Arena
	objects map[nb.Addr]Object
	tracked map[Object]struct{}

	ObjectType  *Type
	TypeType    *Type
	NoneType    *Type
	IntType     *Type
	StrType     *Type
	DictType    *Type
	CapsuleType *Type
	WeakRefType *Type
	ModuleType  *Type

	// None is the immortal null object.
	None Object

	gil sync.Mutex
}

// New creates an environment whose object heap is mapped into space.
// A nil space creates a private one.
func New(space *memory.Space, cfg Config) (*Env, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if space == nil {
		space = memory.NewSpace()
	}

	heap := memory.NewArena(cfg.HeapBase, cfg.HeapSize)
	if err := space.Map(heap); err != nil {
		return nil, errors.Wrap(errors.PhaseHost, errors.KindInvalidInput, err, "cannot map object heap")
	}

	log := cfg.Logger
	if log == nil {
		log = Logger()
	}

	e := &Env{
		log:     log,
		space:   space,
		heap:    heap,
		objects: make(map[nb.Addr]Object),
		tracked: make(map[Object]struct{}),
	}
	if err := e.bootstrap(); err != nil {
		space.Unmap(heap)
		return nil, err
	}

	log.Debug("environment created",
		zap.Uint64("heap_base", uint64(heap.Base())),
		zap.Uint64("heap_limit", uint64(heap.Limit())))
	return e, nil
}

func (e *Env) bootstrap() error {
	e.TypeType = &Type{
		Name:      "type",
		BasicSize: TypeObjectSize,
		Flags:     FlagBaseType,
		Slots: Slots{
			Dealloc: typeDealloc,
			SetAttr: TypeSetAttr,
		},
	}
	e.TypeType.Header = Header{env: e, typ: e.TypeType, refcnt: 1, immortal: true}

	e.ObjectType = e.staticType("object", HeaderSize, FlagBaseType, Slots{
		New:     objectNew,
		Init:    objectInit,
		Dealloc: ObjectDealloc,
	})
	e.TypeType.Base = e.ObjectType
	e.TypeType.Bases = []*Type{e.ObjectType}
	e.TypeType.QualName = "type"
	e.TypeType.Module = "builtins"
	e.TypeType.Attrs = make(map[string]Object)

	e.NoneType = e.staticType("NoneType", HeaderSize, 0, Slots{
		Repr: func(*Env, Object) string { return "None" },
	})
	e.IntType = e.staticType("int", 24, 0, Slots{Repr: intRepr})
	e.StrType = e.staticType("str", 32, 0, Slots{Repr: strRepr})
	e.DictType = e.staticType("dict", 48, FlagHaveGC, Slots{
		Dealloc:  dictDealloc,
		Traverse: dictTraverse,
		Clear:    dictClear,
	})
	e.CapsuleType = e.staticType("capsule", 40, 0, Slots{Dealloc: capsuleDealloc})
	e.WeakRefType = e.staticType("weakref", 40, 0, Slots{Dealloc: weakrefDealloc})
	e.ModuleType = e.staticType("module", 32, FlagBaseType|FlagHaveGC, Slots{
		Dealloc:  moduleDealloc,
		Traverse: moduleTraverse,
		Clear:    moduleClear,
	})
	e.ModuleType.DictOffset = 24

	none := &Plain{}
	if err := e.AllocObject(none, e.NoneType, HeaderSize); err != nil {
		return err
	}
	none.immortal = true
	e.None = none
	return nil
}

func (e *Env) staticType(name string, size uint64, flags Flags, slots Slots) *Type {
	t := &Type{
		Name:      name,
		QualName:  name,
		Module:    "builtins",
		BasicSize: size,
		Flags:     flags,
		Slots:     slots,
		Attrs:     make(map[string]Object),
	}
	t.Header = Header{env: e, typ: e.TypeType, refcnt: 1, immortal: true}
	if e.ObjectType != nil {
		t.Base = e.ObjectType
		t.Bases = []*Type{e.ObjectType}
	}
	return t
}

// Space returns the address space the object heap is mapped into.
func (e *Env) Space() *memory.Space { return e.space }

// Heap returns the object heap.
func (e *Env) Heap() *memory.Arena { return e.heap }

// Log returns the environment's logger.
func (e *Env) Log() *zap.Logger { return e.log }

// Acquire takes the global execution lock.
func (e *Env) Acquire() { e.gil.Lock() }

// Release gives up the global execution lock.
func (e *Env) Release() { e.gil.Unlock() }

// WithGIL runs fn while holding the global execution lock.
func (e *Env) WithGIL(fn func() error) error {
	e.Acquire()
	defer e.Release()
	return fn()
}

// IsNone reports whether o is the null object.
func (e *Env) IsNone(o Object) bool {
	return o == e.None
}

// Stats reports object heap occupancy.
func (e *Env) Stats() memory.Stats {
	return e.heap.Stats()
}

func nameField(t *Type) zap.Field {
	if t == nil {
		return zap.String("type", "<nil>")
	}
	return zap.String("type", t.FullName())
}

func errField(err error) zap.Field {
	return zap.Error(err)
}

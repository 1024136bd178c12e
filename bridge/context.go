package bridge

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
	"github.com/wippyai/nativebridge/memory"
	"github.com/wippyai/nativebridge/registry"
)

// Context holds the bridge's process-wide state: the address map, the type
// map, the keep-alive table and the metatype cache.
//
// Like the environment it belongs to, a Context is not safe for concurrent
// use; callers must hold the environment's execution lock.
type Context struct {
	env    *host.Env
	space  *memory.Space
	native nb.Heap
	log    *zap.Logger
	opts   Options

	addrs     *registry.AddrMap
	types     *registry.TypeMap[*TypeData]
	keepAlive *registry.KeepAliveTable

	// meta is the metatype of all bridge metatypes; metas caches one
	// metatype per supplement size.
	meta       *host.Type
	metas      map[uint64]*host.Type
	staticProp *host.Type

	closed bool
}

// New creates a context over env. The native heap is mapped into the
// environment's address space unless it already is.
func New(env *host.Env, native nb.Heap, opts Options) (*Context, error) {
	if env == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "environment is nil")
	}
	if native == nil {
		return nil, errors.InvalidInput(errors.PhaseRegister, "native heap is nil")
	}

	space := env.Space()
	if owner, ok := space.Owner(native.Base()); !ok || owner != native {
		if err := space.Map(native); err != nil {
			return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "cannot map native heap")
		}
	}

	log := opts.Logger
	if log == nil {
		log = Logger()
	}

	c := &Context{
		env:       env,
		space:     space,
		native:    native,
		log:       log,
		opts:      opts,
		addrs:     registry.NewAddrMap(),
		types:     registry.NewTypeMap[*TypeData](),
		keepAlive: registry.NewKeepAliveTable(),
		metas:     make(map[uint64]*host.Type),
	}

	meta, err := env.TypeFromSpec(env.TypeType, nil, &host.TypeSpec{
		Name:      "nativebridge.meta",
		BasicSize: env.TypeType.BasicSize,
		Flags:     host.FlagBaseType,
		Slots:     []host.Slot{{ID: host.SlotBase, Value: env.TypeType}},
	})
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRegister, errors.KindInvalidInput, err, "cannot create meta-metatype")
	}
	c.meta = meta

	log.Debug("bridge context created",
		zap.Uint64("native_base", uint64(native.Base())),
		zap.Uint64("native_limit", uint64(native.Limit())))
	return c, nil
}

// Env returns the managed environment.
func (c *Context) Env() *host.Env { return c.env }

// Space returns the shared address space.
func (c *Context) Space() *memory.Space { return c.space }

// Native returns the native heap the context was created with.
func (c *Context) Native() nb.Heap { return c.native }

// Options returns the context's options.
func (c *Context) Options() Options { return c.opts }

// Subscribe registers an observer of wrapper registration events.
func (c *Context) Subscribe(o registry.Observer) { c.addrs.Subscribe(o) }

// Unsubscribe removes an observer added with Subscribe.
func (c *Context) Unsubscribe(o registry.Observer) { c.addrs.Unsubscribe(o) }

// Instances returns the number of live wrappers.
func (c *Context) Instances() int { return c.addrs.Count() }

// Types returns the number of registered types.
func (c *Context) Types() int { return c.types.Len() }

// fatal reports an invariant violation. It returns err so that callers can
// bail out when a custom handler does not abort.
func (c *Context) fatal(err *errors.Error) *errors.Error {
	c.log.Error("fatal bridge error",
		zap.String("type", err.TypeName),
		zap.String("kind", string(err.Kind)),
		zap.Error(err))
	if c.opts.OnFatal != nil {
		c.opts.OnFatal(err)
		return err
	}
	panic(err)
}

func (c *Context) checkOpen(phase errors.Phase) error {
	if c.closed {
		return errors.Closed(phase)
	}
	return nil
}

// metaFor returns the metatype for types with the given supplement size,
// creating it on first use.
func (c *Context) metaFor(supplement uint64) (*host.Type, error) {
	if m, ok := c.metas[supplement]; ok {
		return m, nil
	}

	tt := c.env.TypeType
	m, err := c.env.TypeFromSpec(c.meta, nil, &host.TypeSpec{
		Name:      fmt.Sprintf("nativebridge.type_%d", supplement),
		BasicSize: tt.BasicSize + supplement,
		Flags:     host.FlagBaseType,
		Slots: []host.Slot{
			{ID: host.SlotBase, Value: tt},
			{ID: host.SlotDealloc, Value: host.DeallocFunc(c.typeDealloc)},
			{ID: host.SlotSetAttr, Value: host.SetAttrFunc(c.typeSetAttr)},
			{ID: host.SlotInitType, Value: host.InitTypeFunc(c.typeInit)},
		},
	})
	if err != nil {
		return nil, c.fatal(errors.New(errors.PhaseRegister, errors.KindInvariant).
			Cause(err).
			Detail("metatype creation failed").
			Build())
	}

	c.metas[supplement] = m
	c.log.Debug("metatype created", zap.Uint64("supplement", supplement))
	return m, nil
}

// IsBridgeType reports whether t was created by this context, directly or
// by subclassing from the managed side.
func (c *Context) IsBridgeType(t *host.Type) bool {
	if t == nil {
		return false
	}
	meta := t.Type()
	return meta != nil && meta.Type() == c.meta
}

// asInstance returns o as a wrapper of this context.
func (c *Context) asInstance(o host.Object) (*Instance, bool) {
	if o == nil {
		return nil, false
	}
	inst, ok := o.(*Instance)
	if !ok || !c.IsBridgeType(inst.Type()) {
		return nil, false
	}
	return inst, true
}

// Close tears the context down. Objects still alive are reported in a
// *errors.LeaksError; operations on a closed context fail with KindClosed.
// The address, type and keep-alive tables keep their entries so leaked
// objects released afterwards still unlink and run their hooks.
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true

	var leaks []errors.Leak
	c.addrs.Each(func(addr nb.Addr, o host.Object) bool {
		name := "<unknown>"
		if td := typeData(o.Head().Type()); td != nil {
			name = td.Name
		}
		leaks = append(leaks, errors.Leak{Type: name, Addr: uint64(addr)})
		return true
	})
	sort.Slice(leaks, func(i, j int) bool {
		if leaks[i].Addr != leaks[j].Addr {
			return leaks[i].Addr < leaks[j].Addr
		}
		return leaks[i].Type < leaks[j].Type
	})

	var types []string
	c.types.Each(func(_ string, td *TypeData) bool {
		types = append(types, td.Name)
		return true
	})
	sort.Strings(types)

	report := errors.NewLeaksError(leaks, types, c.keepAlive.Len())

	if c.staticProp != nil {
		c.env.DecRef(c.staticProp)
		c.staticProp = nil
	}
	for supplement, m := range c.metas {
		delete(c.metas, supplement)
		c.env.DecRef(m)
	}
	c.env.DecRef(c.meta)

	if report.Empty() {
		c.log.Debug("bridge context closed")
		return nil
	}
	if c.opts.PrintLeakWarnings {
		c.log.Warn("leaks detected",
			zap.Int("instances", len(leaks)),
			zap.Strings("types", types),
			zap.Int("keep_alive", report.KeepAlive))
	}
	return report
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying c.
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the bridge context carried by ctx.
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(contextKey{}).(*Context)
	return c, ok
}

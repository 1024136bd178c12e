package bridge

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
	"github.com/wippyai/nativebridge/memory"
	"github.com/wippyai/nativebridge/registry"
)

const nativeBase = 0x4000_0000

var (
	pointInfo = nb.NewTypeInfo("N3geo5PointE")
	lineInfo  = nb.NewTypeInfo("N3geo4LineE")
	shapeInfo = nb.NewTypeInfo("N3geo5ShapeE")
)

type fixture struct {
	t      *testing.T
	env    *host.Env
	native *memory.Arena
	ctx    *Context
	logs   *observer.ObservedLogs
	fatals []*errors.Error
}

// newFixture creates a context whose fatal handler records instead of
// panicking.
func newFixture(t *testing.T, mods ...func(*Options)) *fixture {
	t.Helper()
	env, err := host.New(memory.NewSpace(), host.DefaultConfig())
	require.NoError(t, err)

	core, logs := observer.New(zap.DebugLevel)
	f := &fixture{
		t:      t,
		env:    env,
		native: memory.NewArena(nativeBase, 1<<20),
		logs:   logs,
	}

	opts := DefaultOptions()
	opts.Logger = zap.New(core)
	opts.OnFatal = func(err *errors.Error) { f.fatals = append(f.fatals, err) }
	for _, m := range mods {
		m(&opts)
	}

	f.ctx, err = New(env, f.native, opts)
	require.NoError(t, err)
	return f
}

func (f *fixture) register(name string, info *nb.TypeInfo, mods ...func(*TypeSpec)) *host.Type {
	f.t.Helper()
	spec := &TypeSpec{
		Name:  name,
		Type:  info,
		Size:  16,
		Align: 8,
		Caps:  TrivialCaps(),
	}
	for _, m := range mods {
		m(spec)
	}
	tp, err := f.ctx.RegisterType(spec)
	require.NoError(f.t, err)
	return tp
}

func (f *fixture) alloc(size uint64) nb.Addr {
	f.t.Helper()
	p, err := f.native.Alloc(size, 8)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) write(p nb.Addr, v uint64) {
	f.t.Helper()
	view, ok := f.env.Space().Read(p, 8)
	require.True(f.t, ok)
	binary.LittleEndian.PutUint64(view, v)
}

func (f *fixture) read(p nb.Addr) uint64 {
	f.t.Helper()
	view, ok := f.env.Space().Read(p, 8)
	require.True(f.t, ok)
	return binary.LittleEndian.Uint64(view)
}

func (f *fixture) wrap(info *nb.TypeInfo, p nb.Addr, policy Policy) *Instance {
	f.t.Helper()
	o, _, err := f.ctx.Wrap(info, p, policy, nil)
	require.NoError(f.t, err)
	inst, ok := o.(*Instance)
	require.True(f.t, ok, "expected an instance, got %T", o)
	return inst
}

func (f *fixture) messages(level zapcore.Level, msg string) int {
	return f.logs.FilterLevelExact(level).FilterMessage(msg).Len()
}

// tracker records hook invocations of a type.
type tracker struct {
	destroyed []nb.Addr
	copies    int
	moves     int
}

// caps returns capabilities whose hooks record into tr. Copy and move
// transfer the first word of the payload; move clears the source.
func (tr *tracker) caps(f *fixture, copyable, movable bool) Capabilities {
	c := Capabilities{
		Destruct: &Destructor{Func: func(p nb.Addr) { tr.destroyed = append(tr.destroyed, p) }},
	}
	if copyable {
		c.Copy = &Constructor{Func: func(dst, src nb.Addr) error {
			tr.copies++
			f.write(dst, f.read(src))
			return nil
		}}
	}
	if movable {
		c.Move = &Constructor{Func: func(dst, src nb.Addr) error {
			tr.moves++
			f.write(dst, f.read(src))
			f.write(src, 0)
			return nil
		}}
	}
	return c
}

type eventRecorder struct {
	inserted int
	removed  int
}

func (r *eventRecorder) OnRegistryEvent(e registry.Event) {
	switch e.Type {
	case registry.EventInserted:
		r.inserted++
	case registry.EventRemoved:
		r.removed++
	}
}

package bridge

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
	"github.com/wippyai/nativebridge/memory"
)

func TestNew_RejectsMissingInputs(t *testing.T) {
	env, err := host.New(memory.NewSpace(), host.DefaultConfig())
	require.NoError(t, err)

	_, err = New(nil, memory.NewArena(nativeBase, 4096), DefaultOptions())
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))

	_, err = New(env, nil, DefaultOptions())
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))
}

func TestNew_RejectsOverlappingHeap(t *testing.T) {
	env, err := host.New(memory.NewSpace(), host.DefaultConfig())
	require.NoError(t, err)

	overlapping := memory.NewArena(env.Heap().Base()+0x100, 4096)
	_, err = New(env, overlapping, DefaultOptions())
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))
}

func TestNew_AcceptsPremappedHeap(t *testing.T) {
	native := memory.NewArena(nativeBase, 4096)
	env, err := host.New(memory.NewSpace(native), host.DefaultConfig())
	require.NoError(t, err)

	c, err := New(env, native, DefaultOptions())
	require.NoError(t, err)
	assert.Same(t, native, c.Native())
	assert.NoError(t, c.Close())
}

func TestClose_Clean(t *testing.T) {
	f := newFixture(t)
	tp := f.register("Point", pointInfo)
	inst := f.wrap(pointInfo, f.alloc(16), PolicyTakeOwnership)

	f.env.DecRef(inst)
	f.env.DecRef(tp)
	assert.Equal(t, 0, f.ctx.Types())

	require.NoError(t, f.ctx.Close())
	assert.NoError(t, f.ctx.Close(), "second Close is a no-op")
	assert.Empty(t, f.fatals)
}

func TestClose_ReportsLeaks(t *testing.T) {
	f := newFixture(t)
	f.register("Point", pointInfo)
	p := f.alloc(16)
	f.wrap(pointInfo, p, PolicyReference)

	err := f.ctx.Close()
	require.Error(t, err)

	var leaks *errors.LeaksError
	require.ErrorAs(t, err, &leaks)

	want := &errors.LeaksError{
		Instances: []errors.Leak{{Type: "Point", Addr: uint64(p)}},
		Types:     []string{"Point"},
	}
	if diff := cmp.Diff(want, leaks); diff != "" {
		t.Errorf("leak report mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, f.messages(zap.WarnLevel, "leaks detected"))
}

func TestClose_LeaksReleasedAfterwards(t *testing.T) {
	f := newFixture(t)
	tr := &tracker{}
	tp := f.register("Point", pointInfo, func(s *TypeSpec) { s.Caps = tr.caps(f, true, true) })
	p := f.alloc(16)
	inst := f.wrap(pointInfo, p, PolicyTakeOwnership)
	patient, err := f.env.NewInt(5)
	require.NoError(t, err)
	require.NoError(t, f.ctx.KeepAlive(inst, patient))

	require.Error(t, f.ctx.Close())

	f.env.DecRef(inst)
	assert.Equal(t, []nb.Addr{p}, tr.destroyed)
	assert.Equal(t, 0, f.ctx.Instances())
	assert.Equal(t, int64(1), patient.RefCount())
	f.env.DecRef(patient)

	f.env.DecRef(tp)
	assert.Equal(t, 0, f.ctx.Types())
	assert.Empty(t, f.fatals)
}

func TestClose_QuietLeaks(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.PrintLeakWarnings = false })
	f.register("Point", pointInfo)

	require.Error(t, f.ctx.Close())
	assert.Equal(t, 0, f.messages(zap.WarnLevel, "leaks detected"))
}

func TestClosed_OperationsFail(t *testing.T) {
	f := newFixture(t)
	tp := f.register("Point", pointInfo)
	p := f.alloc(16)
	_ = f.ctx.Close()

	_, _, err := f.ctx.Wrap(pointInfo, p, PolicyReference, nil)
	assert.True(t, errors.HasKind(err, errors.KindClosed))

	_, err = f.ctx.Unwrap(pointInfo, f.env.None, 0, nil)
	assert.True(t, errors.HasKind(err, errors.KindClosed))

	_, err = f.ctx.RegisterType(&TypeSpec{Name: "Line", Type: lineInfo, Align: 8})
	assert.True(t, errors.HasKind(err, errors.KindClosed))

	_, err = f.ctx.NewInstance(tp)
	assert.True(t, errors.HasKind(err, errors.KindClosed))

	assert.True(t, errors.HasKind(f.ctx.KeepAlive(tp, tp), errors.KindClosed))
}

func TestWithContext(t *testing.T) {
	f := newFixture(t)

	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithContext(context.Background(), f.ctx)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Same(t, f.ctx, got)
}

func TestFatal_DefaultPanics(t *testing.T) {
	env, err := host.New(memory.NewSpace(), host.DefaultConfig())
	require.NoError(t, err)
	c, err := New(env, memory.NewArena(nativeBase, 1<<16), DefaultOptions())
	require.NoError(t, err)

	spec := &TypeSpec{Name: "Point", Type: pointInfo, Size: 8, Align: 8}
	_, err = c.RegisterType(spec)
	require.NoError(t, err)

	defer func() {
		r := recover()
		require.NotNil(t, r, "duplicate registration must abort")
		e, ok := r.(*errors.Error)
		require.True(t, ok, "panic value is %T", r)
		assert.True(t, e.Fatal())
		assert.Equal(t, "Point", e.TypeName)
	}()
	_, _ = c.RegisterType(spec)
}

package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/memory"
)

func newEnv(t *testing.T) *Env {
	t.Helper()
	e, err := New(nil, DefaultConfig())
	require.NoError(t, err)
	return e
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Config{HeapBase: 0x1000, HeapSize: 16})
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))

	space := memory.NewSpace(memory.NewArena(0x1000_0000, 0x1000))
	_, err = New(space, DefaultConfig())
	require.Error(t, err, "overlapping heap must be rejected")
}

func TestRefCounting(t *testing.T) {
	e := newEnv(t)
	before := e.LiveObjects()

	i, err := e.NewInt(42)
	require.NoError(t, err)
	assert.EqualValues(t, 1, i.RefCount())
	assert.Equal(t, before+1, e.LiveObjects())

	got, ok := e.ObjectAt(i.Addr())
	require.True(t, ok)
	assert.Same(t, i, got)

	e.IncRef(i)
	e.DecRef(i)
	assert.EqualValues(t, 1, i.RefCount())

	e.DecRef(i)
	assert.Equal(t, before, e.LiveObjects())
	_, ok = e.ObjectAt(i.Addr())
	assert.False(t, ok)
}

func TestNoneIsImmortal(t *testing.T) {
	e := newEnv(t)
	for range 3 {
		e.DecRef(e.None)
	}
	assert.True(t, e.IsNone(e.None))
	assert.Equal(t, "None", e.Repr(e.None))
}

func TestNegativeRefCountPanics(t *testing.T) {
	e := newEnv(t)
	s, err := e.NewStr("x")
	require.NoError(t, err)
	s.refcnt = 0
	assert.Panics(t, func() { e.DecRef(s) })
}

func TestCapsuleRelease(t *testing.T) {
	e := newEnv(t)
	var released []uint64
	c, err := e.NewCapsule(0xbeef, func(p nb.Addr) { released = append(released, uint64(p)) })
	require.NoError(t, err)
	e.DecRef(c)
	assert.Equal(t, []uint64{0xbeef}, released)
}

func TestRealloc(t *testing.T) {
	e := newEnv(t)
	o := &Plain{}
	require.NoError(t, e.AllocObject(o, e.ObjectType, 24))
	view, ok := e.Space().Read(o.Addr(), 24)
	require.True(t, ok)
	view[20] = 0xaa
	old := o.Addr()

	require.NoError(t, e.Realloc(o, 32))
	assert.EqualValues(t, 32, o.Size())
	view, ok = e.Space().Read(o.Addr(), 32)
	require.True(t, ok)
	assert.EqualValues(t, 0xaa, view[20])

	if o.Addr() != old {
		_, ok = e.ObjectAt(old)
		assert.False(t, ok)
	}
	got, ok := e.ObjectAt(o.Addr())
	require.True(t, ok)
	assert.Same(t, o, got)
	e.DecRef(o)
}

func TestWithGIL(t *testing.T) {
	e := newEnv(t)
	ran := false
	require.NoError(t, e.WithGIL(func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

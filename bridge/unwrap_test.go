package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

// convertingInit is an Init slot that builds a point from an int or from
// another wrapper's first word. Negative ints are rejected.
func convertingInit(f *fixture) host.Slot {
	return host.Slot{ID: host.SlotInit, Value: host.InitFunc(
		func(_ *host.Env, self host.Object, args []host.Object) error {
			inst := self.(*Instance)
			if err := f.ctx.ZeroInstance(inst); err != nil {
				return err
			}
			if len(args) != 1 {
				return nil
			}
			dst, _ := f.ctx.InstancePtr(inst)
			switch a := args[0].(type) {
			case *host.Int:
				if a.V < 0 {
					return errors.InvalidInput(errors.PhaseHost, "negative coordinate")
				}
				f.write(dst, uint64(a.V))
			default:
				if src, ok := f.ctx.InstancePtr(a); ok {
					f.write(dst, f.read(src))
				}
			}
			return nil
		})}
}

func acceptInts(_ *host.Type, src host.Object, _ *Cleanup) bool {
	_, ok := src.(*host.Int)
	return ok
}

func TestUnwrap_None(t *testing.T) {
	f := newFixture(t)
	f.register("Point", pointInfo)

	p, err := f.ctx.Unwrap(pointInfo, f.env.None, 0, nil)
	require.NoError(t, err)
	assert.Zero(t, p)
	p, err = f.ctx.Unwrap(pointInfo, nil, 0, nil)
	require.NoError(t, err)
	assert.Zero(t, p)
}

func TestUnwrap_Instances(t *testing.T) {
	f := newFixture(t)
	f.register("Point", pointInfo)
	f.register("Shape", shapeInfo)
	f.register("Line", lineInfo, func(s *TypeSpec) { s.Base = shapeInfo })

	pp, lp := f.alloc(16), f.alloc(16)
	point := f.wrap(pointInfo, pp, PolicyReference)
	line := f.wrap(lineInfo, lp, PolicyReference)

	got, err := f.ctx.Unwrap(pointInfo, point, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, pp, got)

	got, err = f.ctx.Unwrap(shapeInfo, line, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, lp, got, "a derived wrapper unwraps as its base")

	_, err = f.ctx.Unwrap(pointInfo, line, 0, nil)
	require.Error(t, err)
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNoConversion, e.Kind)
	assert.Equal(t, "Point", e.TypeName)
	assert.Equal(t, "Line", e.HostType)

	_, err = f.ctx.Unwrap(lineInfo, point, FlagConvert, NewCleanup(f.env, nil))
	assert.True(t, errors.HasKind(err, errors.KindNoConversion))

	f.env.DecRef(line)
	f.env.DecRef(point)
}

func TestUnwrap_NotReady(t *testing.T) {
	f := newFixture(t)
	tp := f.register("Point", pointInfo)
	inst, err := f.ctx.NewInstance(tp)
	require.NoError(t, err)

	_, err = f.ctx.Unwrap(pointInfo, inst, 0, nil)
	assert.True(t, errors.HasKind(err, errors.KindNotInitialized))
	assert.Equal(t, 1, f.messages(zapcore.WarnLevel, "attempted to access an uninitialized instance"))

	p, err := f.ctx.Unwrap(pointInfo, inst, FlagConstruct, nil)
	require.NoError(t, err)
	want, _ := f.ctx.InstancePtr(inst)
	assert.Equal(t, want, p)

	f.env.DecRef(inst)
}

func TestUnwrap_ImplicitFromType(t *testing.T) {
	f := newFixture(t)
	f.register("Line", lineInfo)
	f.register("Point", pointInfo, func(s *TypeSpec) {
		s.Implicit = []*nb.TypeInfo{lineInfo}
		s.Slots = []host.Slot{convertingInit(f)}
	})
	lp := f.alloc(16)
	f.write(lp, 41)
	line := f.wrap(lineInfo, lp, PolicyReference)

	_, err := f.ctx.Unwrap(pointInfo, line, 0, NewCleanup(f.env, nil))
	assert.True(t, errors.HasKind(err, errors.KindNoConversion), "conversion needs the convert flag")
	_, err = f.ctx.Unwrap(pointInfo, line, FlagConvert, nil)
	assert.True(t, errors.HasKind(err, errors.KindNoConversion), "conversion needs a cleanup list")

	cleanup := NewCleanup(f.env, nil)
	p, err := f.ctx.Unwrap(pointInfo, line, FlagConvert, cleanup)
	require.NoError(t, err)
	assert.NotEqual(t, lp, p)
	assert.Equal(t, uint64(41), f.read(p))
	assert.Equal(t, 1, cleanup.Len())
	assert.Equal(t, 2, f.ctx.Instances())

	cleanup.Release()
	assert.Equal(t, 0, cleanup.Len())
	assert.Equal(t, 1, f.ctx.Instances(), "the temporary is released with the cleanup list")

	f.env.DecRef(line)
}

func TestUnwrap_ImplicitFromSubtype(t *testing.T) {
	f := newFixture(t)
	f.register("Shape", shapeInfo)
	f.register("Line", lineInfo, func(s *TypeSpec) { s.Base = shapeInfo })
	f.register("Point", pointInfo, func(s *TypeSpec) {
		s.Implicit = []*nb.TypeInfo{shapeInfo}
		s.Slots = []host.Slot{convertingInit(f)}
	})
	lp := f.alloc(16)
	f.write(lp, 5)
	line := f.wrap(lineInfo, lp, PolicyReference)

	cleanup := NewCleanup(f.env, nil)
	p, err := f.ctx.Unwrap(pointInfo, line, FlagConvert, cleanup)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), f.read(p))

	cleanup.Release()
	f.env.DecRef(line)
	assert.Equal(t, 0, f.ctx.Instances())
}

func TestUnwrap_ImplicitPredicate(t *testing.T) {
	f := newFixture(t)
	f.register("Point", pointInfo, func(s *TypeSpec) {
		s.ImplicitPredicates = []ImplicitPredicate{acceptInts}
		s.Slots = []host.Slot{convertingInit(f)}
	})

	seven, err := f.env.NewInt(7)
	require.NoError(t, err)
	defer f.env.DecRef(seven)

	cleanup := NewCleanup(f.env, nil)
	p, err := f.ctx.Unwrap(pointInfo, seven, FlagConvert, cleanup)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), f.read(p))

	str, err := f.env.NewStr("seven")
	require.NoError(t, err)
	defer f.env.DecRef(str)
	_, err = f.ctx.Unwrap(pointInfo, str, FlagConvert, cleanup)
	assert.True(t, errors.HasKind(err, errors.KindNoConversion))
	assert.Equal(t, 1, cleanup.Len())

	cleanup.Release()
	assert.Equal(t, 0, f.ctx.Instances())
}

func TestUnwrap_ImplicitConstructorFails(t *testing.T) {
	for _, warn := range []bool{true, false} {
		f := newFixture(t, func(o *Options) { o.PrintImplicitCastWarnings = warn })
		f.register("Point", pointInfo, func(s *TypeSpec) {
			s.ImplicitPredicates = []ImplicitPredicate{acceptInts}
			s.Slots = []host.Slot{convertingInit(f)}
		})

		neg, err := f.env.NewInt(-1)
		require.NoError(t, err)

		cleanup := NewCleanup(f.env, nil)
		_, err = f.ctx.Unwrap(pointInfo, neg, FlagConvert, cleanup)
		assert.True(t, errors.HasKind(err, errors.KindNoConversion))
		assert.Equal(t, 0, cleanup.Len())
		assert.Equal(t, 0, f.ctx.Instances())

		want := 0
		if warn {
			want = 1
		}
		assert.Equal(t, want, f.messages(zapcore.WarnLevel, "implicit conversion failed"))
		f.env.DecRef(neg)
	}
}

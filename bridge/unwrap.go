package bridge

import (
	"go.uber.org/zap"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
	"github.com/wippyai/nativebridge/host"
)

// UnwrapFlags modify Unwrap.
type UnwrapFlags uint8

const (
	// FlagConvert allows implicit conversions.
	FlagConvert UnwrapFlags = 1 << iota

	// FlagConstruct accepts wrappers whose payload is not constructed yet,
	// as needed by constructors.
	FlagConstruct
)

// Unwrap returns the payload address of src viewed as native type t. None
// unwraps to the null address.
//
// With FlagConvert and a cleanup list, a value that is not an instance of t
// may be converted by calling t's type object with it, provided t declares
// the source type or a matching predicate as implicitly convertible. The
// temporary wrapper is appended to cleanup.
func (c *Context) Unwrap(t *nb.TypeInfo, src host.Object, flags UnwrapFlags, cleanup *Cleanup) (nb.Addr, error) {
	if err := c.checkOpen(errors.PhaseUnwrap); err != nil {
		return 0, err
	}
	if src == nil || c.env.IsNone(src) {
		return 0, nil
	}

	srcType := src.Head().Type()
	var (
		srcInfo *nb.TypeInfo
		dst     *TypeData
	)

	inst, isInst := c.asInstance(src)
	if isInst {
		std := typeData(srcType)
		srcInfo = std.Type

		valid := t.Equal(srcInfo)
		if !valid {
			if d, ok := c.types.Lookup(t); ok {
				dst = d
				valid = srcType.IsSubtype(d.HostType)
			}
		}
		if valid {
			if !inst.ready && flags&FlagConstruct == 0 {
				c.log.Warn("attempted to access an uninitialized instance",
					zap.String("type", std.Name))
				return 0, errors.NotInitialized(errors.PhaseUnwrap, std.Name)
			}
			return c.instPtr(inst), nil
		}
	}

	if flags&FlagConvert != 0 && cleanup != nil {
		if !isInst {
			dst, _ = c.types.Lookup(t)
		}
		if dst != nil && dst.hasImplicit() {
			if p, ok := c.unwrapImplicit(src, srcInfo, dst, cleanup); ok {
				return p, nil
			}
		}
	}

	name := errors.Demangle(t.String())
	if dst != nil {
		name = dst.Name
	}
	return 0, errors.New(errors.PhaseUnwrap, errors.KindNoConversion).
		TypeName(name).
		HostType(srcType.FullName()).
		Detail("incompatible value").
		Build()
}

// unwrapImplicit tries the implicit conversions declared by dst: identity
// of the source's native type, then subtyping, then predicates.
func (c *Context) unwrapImplicit(src host.Object, srcInfo *nb.TypeInfo, dst *TypeData, cleanup *Cleanup) (nb.Addr, bool) {
	srcType := src.Head().Type()

	found := false
	if len(dst.Implicit) > 0 && srcInfo != nil {
		for _, v := range dst.Implicit {
			if v.Equal(srcInfo) {
				found = true
				break
			}
		}
		if !found {
			for _, v := range dst.Implicit {
				if d, ok := c.types.Lookup(v); ok && srcType.IsSubtype(d.HostType) {
					found = true
					break
				}
			}
		}
	}
	if !found {
		for _, pred := range dst.ImplicitPredicates {
			if pred(dst.HostType, src, cleanup) {
				found = true
				break
			}
		}
	}
	if !found {
		return 0, false
	}

	result, err := c.env.Call(dst.HostType, src)
	if err != nil {
		if c.opts.PrintImplicitCastWarnings {
			c.log.Warn("implicit conversion failed",
				zap.String("from", srcType.FullName()),
				zap.String("to", dst.Name),
				zap.Error(err))
		}
		return 0, false
	}

	inst, ok := c.asInstance(result)
	if !ok {
		c.env.DecRef(result)
		return 0, false
	}
	cleanup.Append(inst)
	return c.instPtr(inst), true
}

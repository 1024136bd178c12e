package host

import (
	"go.uber.org/zap"
)

// Collect runs the cycle collector over tracked objects and returns the
// number of unreachable objects it cleared.
//
// Trial deletion: each tracked object starts with its reference count,
// references held by other tracked objects are subtracted, and whatever
// is not reachable from an object with external references is garbage.
// Garbage is broken up through the Clear slot of its type.
func (e *Env) Collect() int {
	if len(e.tracked) == 0 {
		return 0
	}

	refs := make(map[Object]int64, len(e.tracked))
	for o := range e.tracked {
		refs[o] = o.Head().refcnt
	}
	for o := range refs {
		e.traverse(o, func(target Object) {
			if _, ok := refs[target]; ok {
				refs[target]--
			}
		})
	}

	reachable := make(map[Object]bool, len(refs))
	var stack []Object
	for o, n := range refs {
		if n > 0 {
			reachable[o] = true
			stack = append(stack, o)
		}
	}
	for len(stack) > 0 {
		o := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		e.traverse(o, func(target Object) {
			if _, ok := refs[target]; ok && !reachable[target] {
				reachable[target] = true
				stack = append(stack, target)
			}
		})
	}

	var garbage []Object
	for o := range refs {
		if !reachable[o] {
			garbage = append(garbage, o)
		}
	}
	if len(garbage) == 0 {
		return 0
	}

	for _, o := range garbage {
		e.IncRef(o)
	}
	for _, o := range garbage {
		if clear := o.Head().typ.Slots.Clear; clear != nil && o.Head().refcnt > 0 {
			clear(e, o)
		}
	}
	for _, o := range garbage {
		e.DecRef(o)
	}

	e.log.Debug("collected cycles", zap.Int("objects", len(garbage)))
	return len(garbage)
}

func (e *Env) traverse(o Object, visit VisitFunc) {
	if tr := o.Head().typ.Slots.Traverse; tr != nil {
		tr(e, o, func(target Object) {
			if target != nil {
				visit(target)
			}
		})
	}
}

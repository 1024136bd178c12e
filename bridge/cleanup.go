package bridge

import (
	"github.com/wippyai/nativebridge/host"
)

// Cleanup collects temporaries created while converting call arguments.
// Its self object is the receiver of the call in progress and is borrowed.
type Cleanup struct {
	env  *host.Env
	self host.Object
	objs []host.Object
}

// NewCleanup creates a cleanup list for a call on self, which may be nil.
func NewCleanup(env *host.Env, self host.Object) *Cleanup {
	return &Cleanup{env: env, self: self}
}

// Self returns the receiver of the call, or nil.
func (c *Cleanup) Self() host.Object {
	if c == nil {
		return nil
	}
	return c.self
}

// Append transfers one reference to o into the list.
func (c *Cleanup) Append(o host.Object) {
	c.objs = append(c.objs, o)
}

// Len returns the number of collected temporaries.
func (c *Cleanup) Len() int {
	return len(c.objs)
}

// Release drops every collected reference, newest last.
func (c *Cleanup) Release() {
	objs := c.objs
	c.objs = nil
	for _, o := range objs {
		c.env.DecRef(o)
	}
}

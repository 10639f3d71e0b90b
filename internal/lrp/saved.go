package lrp

import (
	"fmt"

	"github.com/relprop-ml/relprop/internal/tensor"
)

// savedTensor is one tensor kept alive for a rule's propagation step.
//
// A retained tensor pins the live buffer (refcount bump) and remembers its
// version counter; if the buffer is mutated in place before propagation, the
// version check fails and get panics instead of silently propagating through
// stale values. A snapshot owns a private copy and never fails the check.
type savedTensor struct {
	t        *tensor.RawTensor
	version  uint64
	snapshot bool
}

// retainTensor pins t without copying. The returned savedTensor shares t's
// storage and records the current buffer version.
func retainTensor(t *tensor.RawTensor) *savedTensor {
	return &savedTensor{
		t:       t.Clone(),
		version: t.Version(),
	}
}

// snapshotTensor copies t's storage. Used when the caller is about to
// overwrite t in place.
func snapshotTensor(t *tensor.RawTensor) *savedTensor {
	return &savedTensor{
		t:        t.DeepClone(),
		snapshot: true,
	}
}

// ruleContext holds the tensors a rule saved during the forward pass.
// The context is consumed by exactly one propagation step: get panics after
// release, which is how a second backward through the same rule fails fast.
type ruleContext struct {
	name     string
	saved    []*savedTensor
	released bool
}

func newRuleContext(name string, saved ...*savedTensor) *ruleContext {
	return &ruleContext{name: name, saved: saved}
}

// get returns the i-th saved tensor, validating the version of retained
// tensors.
func (c *ruleContext) get(i int) *tensor.RawTensor {
	if c.released {
		panic(fmt.Sprintf("lrp: %s: saved context already released (backward called twice?)", c.name))
	}
	s := c.saved[i]
	if !s.snapshot && s.t.Version() != s.version {
		panic(fmt.Sprintf("lrp: %s: saved tensor was modified in place after the forward pass (version %d, expected %d)",
			c.name, s.t.Version(), s.version))
	}
	return s.t
}

// release drops all saved tensors. Safe to call once; get panics afterwards.
func (c *ruleContext) release() {
	if c.released {
		return
	}
	c.released = true
	for _, s := range c.saved {
		s.t.Release()
		s.t = nil
	}
	c.saved = nil
}

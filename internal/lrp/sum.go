package lrp

import (
	"fmt"

	"github.com/relprop-ml/relprop/internal/tensor"
)

// Add2 computes a + b for equally shaped operands and records the epsilon
// rule for summation.
//
// With inplace=true the result overwrites a's storage; a is snapshotted
// first.
func (e *Engine[B]) Add2(a, b *tensor.RawTensor, inplace bool, eps float64) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()

	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("lrp: Add2 requires equal shapes, got %v and %v", a.Shape(), b.Shape()))
	}

	y := e.inner.Add(a, b)

	var out *tensor.RawTensor
	var ctx *ruleContext
	if inplace {
		sa := snapshotTensor(a)
		out = overwrite(a, y)
		ctx = newRuleContext("add2", sa, retainTensor(b), retainTensor(out))
	} else {
		out = y
		ctx = newRuleContext("add2", retainTensor(a), retainTensor(b), retainTensor(out))
	}

	e.tape.Record(&add2Rule{
		ctx:    ctx,
		inputs: []*tensor.RawTensor{a, b},
		output: out,
		eps:    eps,
	})
	return out
}

// add2Rule redistributes relevance proportionally to each summand:
//
//	R_a = a * R_y / (y + eps)
//	R_b = b * R_y / (y + eps)
type add2Rule struct {
	ctx    *ruleContext // [a, b, y]
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	eps    float64
}

func (r *add2Rule) Backward(outputRel *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a := r.ctx.get(0)
	b := r.ctx.get(1)
	y := r.ctx.get(2)

	s := safeDiv(outputRel, y, r.eps, backend)
	ra := backend.Mul(a, s)
	rb := backend.Mul(b, s)

	r.ctx.release()
	return []*tensor.RawTensor{ra, rb}
}

func (r *add2Rule) Inputs() []*tensor.RawTensor {
	return r.inputs
}

func (r *add2Rule) Output() *tensor.RawTensor {
	return r.output
}

// MulScalar computes a * scalar and records a pass-through rule: scaling by
// a constant does not move relevance between positions.
func (e *Engine[B]) MulScalar(a *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	defer a.ForceNonUnique()()

	y := e.inner.MulScalar(a, scalar)

	e.tape.Record(&passthroughRule{
		inputs: []*tensor.RawTensor{a},
		output: y,
	})
	return y
}

// passthroughRule forwards relevance unchanged.
type passthroughRule struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

func (r *passthroughRule) Backward(outputRel *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputRel.Clone()}
}

func (r *passthroughRule) Inputs() []*tensor.RawTensor {
	return r.inputs
}

func (r *passthroughRule) Output() *tensor.RawTensor {
	return r.output
}

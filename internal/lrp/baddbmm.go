package lrp

import (
	"github.com/relprop-ml/relprop/internal/autodiff/ops"
	"github.com/relprop-ml/relprop/internal/tensor"
)

// BaddBmm computes beta*c + alpha*(a @ b) fused and records the bilinear
// epsilon rule for the whole expression. a and b are batched matrices and c
// matches the product shape.
//
// With inplace=true the result overwrites c's storage. c's values are not
// needed during propagation, so no snapshot is taken.
func (e *Engine[B]) BaddBmm(c, a, b *tensor.RawTensor, inplace bool, alpha, beta, eps float64) *tensor.RawTensor {
	defer c.ForceNonUnique()()
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()

	y := e.inner.Add(
		e.inner.MulScalar(c, beta),
		e.inner.MulScalar(e.inner.BatchMatMul(a, b), alpha),
	)

	var out *tensor.RawTensor
	if inplace {
		out = overwrite(c, y)
	} else {
		out = y
	}

	e.tape.Record(&baddbmmRule{
		ctx:     newRuleContext("baddbmm", retainTensor(a), retainTensor(b), retainTensor(out)),
		inputs:  []*tensor.RawTensor{c, a, b},
		output:  out,
		alpha:   alpha,
		beta:    beta,
		eps:     eps,
		inplace: inplace,
		scratch: e.inner,
	})
	return out
}

// baddbmmRule treats the fused expression as one bilinear unit:
//
//	s   = R_y / (2y + eps)
//	R_a = alpha * a * (s @ b^T)
//	R_b = alpha * b * (a^T @ s)
//	R_c = beta * s
//
// The 2y denominator applies to the additive term as well, so the rule is
// not equivalent to composing Add2 with MatMul for R_c.
type baddbmmRule struct {
	ctx     *ruleContext // [a, b, y]
	inputs  []*tensor.RawTensor
	output  *tensor.RawTensor
	alpha   float64
	beta    float64
	eps     float64
	inplace bool
	scratch tensor.Backend
}

func (r *baddbmmRule) Backward(outputRel *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a := r.ctx.get(0)
	b := r.ctx.get(1)
	y := r.ctx.get(2)

	den := stabilize(backend.MulScalar(y, 2), r.eps, backend)
	var s *tensor.RawTensor
	if r.inplace {
		s = r.scratch.Div(outputRel.DeepClone(), den)
	} else {
		s = backend.Div(outputRel, den)
	}

	axes := ops.SwapLastAxes(len(a.Shape()))
	ra := backend.MulScalar(backend.Mul(a, backend.BatchMatMul(s, backend.Transpose(b, axes...))), r.alpha)
	rb := backend.MulScalar(backend.Mul(b, backend.BatchMatMul(backend.Transpose(a, axes...), s)), r.alpha)
	rc := backend.MulScalar(s, r.beta)

	r.ctx.release()
	return []*tensor.RawTensor{rc, ra, rb}
}

func (r *baddbmmRule) Inputs() []*tensor.RawTensor {
	return r.inputs
}

func (r *baddbmmRule) Output() *tensor.RawTensor {
	return r.output
}

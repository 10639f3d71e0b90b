package lrp

import (
	"github.com/relprop-ml/relprop/internal/autodiff/ops"
	"github.com/relprop-ml/relprop/internal/tensor"
)

// MatMul computes a @ b and records the bilinear epsilon rule. Operands may
// be 2D or batched with equal rank.
//
// With inplace=true the propagation step divides the incoming relevance into
// a private scratch buffer in place; the result is identical to the
// out-of-place variant.
func (e *Engine[B]) MatMul(a, b *tensor.RawTensor, inplace bool, eps float64) *tensor.RawTensor {
	defer a.ForceNonUnique()()
	defer b.ForceNonUnique()()

	batched := len(a.Shape()) > 2
	var y *tensor.RawTensor
	if batched {
		y = e.inner.BatchMatMul(a, b)
	} else {
		y = e.inner.MatMul(a, b)
	}

	e.tape.Record(&matmulRule{
		ctx:     newRuleContext("matmul", retainTensor(a), retainTensor(b), retainTensor(y)),
		inputs:  []*tensor.RawTensor{a, b},
		output:  y,
		eps:     eps,
		inplace: inplace,
		batched: batched,
		scratch: e.inner,
	})
	return y
}

// matmulRule splits relevance equally between the two factors of a bilinear
// product:
//
//	s   = R_y / (2y + eps)
//	R_a = a * (s @ b^T)
//	R_b = b * (a^T @ s)
type matmulRule struct {
	ctx     *ruleContext // [a, b, y]
	inputs  []*tensor.RawTensor
	output  *tensor.RawTensor
	eps     float64
	inplace bool
	batched bool
	scratch tensor.Backend
}

func (r *matmulRule) Backward(outputRel *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a := r.ctx.get(0)
	b := r.ctx.get(1)
	y := r.ctx.get(2)

	den := stabilize(backend.MulScalar(y, 2), r.eps, backend)
	var s *tensor.RawTensor
	if r.inplace {
		// Unique buffer, so the scratch backend divides in place.
		s = r.scratch.Div(outputRel.DeepClone(), den)
	} else {
		s = backend.Div(outputRel, den)
	}

	var ra, rb *tensor.RawTensor
	if r.batched {
		axes := ops.SwapLastAxes(len(a.Shape()))
		ra = backend.Mul(a, backend.BatchMatMul(s, backend.Transpose(b, axes...)))
		rb = backend.Mul(b, backend.BatchMatMul(backend.Transpose(a, axes...), s))
	} else {
		ra = backend.Mul(a, backend.MatMul(s, backend.Transpose(b)))
		rb = backend.Mul(b, backend.MatMul(backend.Transpose(a), s))
	}

	r.ctx.release()
	return []*tensor.RawTensor{ra, rb}
}

func (r *matmulRule) Inputs() []*tensor.RawTensor {
	return r.inputs
}

func (r *matmulRule) Output() *tensor.RawTensor {
	return r.output
}

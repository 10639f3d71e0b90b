package lrp

import "github.com/relprop-ml/relprop/internal/tensor"

// Softmax computes softmax(x, dim) and records its relevance rule.
//
// With inplace=true the result overwrites x's storage; x is snapshotted
// first so propagation still sees the pre-softmax values.
func (e *Engine[B]) Softmax(x *tensor.RawTensor, dim int, inplace bool) *tensor.RawTensor {
	defer x.ForceNonUnique()()

	d := x.Shape().NormalizeDim(dim)
	y := e.inner.Softmax(x, d)

	var out *tensor.RawTensor
	var ctx *ruleContext
	if inplace {
		sx := snapshotTensor(x)
		out = overwrite(x, y)
		ctx = newRuleContext("softmax", sx, retainTensor(out))
	} else {
		out = y
		ctx = newRuleContext("softmax", retainTensor(x), retainTensor(out))
	}

	e.tape.Record(&softmaxRule{
		ctx:    ctx,
		inputs: []*tensor.RawTensor{x},
		output: out,
		dim:    d,
	})
	return out
}

// softmaxRule propagates relevance through softmax via the Taylor
// decomposition at the input point:
//
//	R_x = x * (R_y - y * sum(R_y, dim))
type softmaxRule struct {
	ctx    *ruleContext // [x, y]
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

func (r *softmaxRule) Backward(outputRel *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	x := r.ctx.get(0)
	y := r.ctx.get(1)

	total := backend.SumDim(outputRel, r.dim, true)
	rx := backend.Mul(x, backend.Sub(outputRel, backend.Mul(y, total)))

	r.ctx.release()
	return []*tensor.RawTensor{rx}
}

func (r *softmaxRule) Inputs() []*tensor.RawTensor {
	return r.inputs
}

func (r *softmaxRule) Output() *tensor.RawTensor {
	return r.output
}

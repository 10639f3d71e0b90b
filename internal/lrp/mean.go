package lrp

import "github.com/relprop-ml/relprop/internal/tensor"

// Mean computes mean(a, dim) and records the epsilon rule for averaging.
// Relevance is redistributed proportionally to each element's share of the
// sum along dim, so the 1/n factor of the mean cancels out.
func (e *Engine[B]) Mean(a *tensor.RawTensor, dim int, keepDim bool, eps float64) *tensor.RawTensor {
	defer a.ForceNonUnique()()

	d := a.Shape().NormalizeDim(dim)
	y := e.inner.MeanDim(a, d, keepDim)

	e.tape.Record(&meanRule{
		ctx:     newRuleContext("mean", retainTensor(a)),
		inputs:  []*tensor.RawTensor{a},
		output:  y,
		dim:     d,
		keepDim: keepDim,
		eps:     eps,
	})
	return y
}

// meanRule propagates relevance through averaging:
//
//	R_a = a * R_y / (sum(a, dim) + eps)
type meanRule struct {
	ctx     *ruleContext // [a]
	inputs  []*tensor.RawTensor
	output  *tensor.RawTensor
	dim     int
	keepDim bool
	eps     float64
}

func (r *meanRule) Backward(outputRel *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	a := r.ctx.get(0)

	rel := outputRel
	if !r.keepDim {
		rel = backend.Unsqueeze(rel, r.dim)
	}
	den := stabilize(backend.SumDim(a, r.dim, true), r.eps, backend)
	ra := backend.Mul(a, backend.Div(rel, den))

	r.ctx.release()
	return []*tensor.RawTensor{ra}
}

func (r *meanRule) Inputs() []*tensor.RawTensor {
	return r.inputs
}

func (r *meanRule) Output() *tensor.RawTensor {
	return r.output
}

package lrp

import (
	"fmt"

	"github.com/relprop-ml/relprop/internal/tensor"
)

// F.normalize clamps the denominator at 1e-12 to avoid division by zero;
// an additive shift of the same magnitude is indistinguishable at float32
// precision.
const normalizeEps = 1e-12

// RMSNormIdentity computes RMS normalization with a learned scale and
// records the identity rule: normalization layers are treated as a change
// of units, so relevance passes through untouched.
func (e *Engine[B]) RMSNormIdentity(x, weight *tensor.RawTensor, eps float64) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	defer weight.ForceNonUnique()()

	last := len(x.Shape()) - 1
	variance := e.inner.MeanDim(e.inner.Mul(x, x), last, true)
	y := e.inner.Mul(x, e.inner.Rsqrt(e.inner.AddScalar(variance, eps)))
	y = e.inner.Mul(y, weight)

	e.tape.Record(&identityRule{
		inputs: []*tensor.RawTensor{x},
		output: y,
	})
	return y
}

// NormalizeIdentity computes L2 normalization along dim and records the
// identity rule. Only p=2 is supported.
func (e *Engine[B]) NormalizeIdentity(x *tensor.RawTensor, p float64, dim int) *tensor.RawTensor {
	if p != 2 {
		panic(fmt.Sprintf("lrp: NormalizeIdentity supports p=2 only, got p=%v", p))
	}
	defer x.ForceNonUnique()()

	d := x.Shape().NormalizeDim(dim)
	norm := e.inner.Sqrt(e.inner.SumDim(e.inner.Mul(x, x), d, true))
	y := e.inner.Div(x, e.inner.AddScalar(norm, normalizeEps))

	e.tape.Record(&identityRule{
		inputs: []*tensor.RawTensor{x},
		output: y,
	})
	return y
}

// identityRule forwards relevance unchanged.
type identityRule struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
}

func (r *identityRule) Backward(outputRel *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{outputRel.Clone()}
}

func (r *identityRule) Inputs() []*tensor.RawTensor {
	return r.inputs
}

func (r *identityRule) Output() *tensor.RawTensor {
	return r.output
}

// LayerNorm computes layer normalization over the last dimension and records
// the detached-statistics rule: relevance propagates through the centering
// but treats the standard deviation as a constant. This is the fast rule
// used during attribution.
func (e *Engine[B]) LayerNorm(x, weight, bias *tensor.RawTensor, eps float64) *tensor.RawTensor {
	return e.layerNorm(x, weight, bias, eps, false)
}

// LayerNormSlower is LayerNorm with relevance propagated through the
// standard deviation as well, matching the exact gradient of the layer.
// Used as a reference for validating the detached rule.
func (e *Engine[B]) LayerNormSlower(x, weight, bias *tensor.RawTensor, eps float64) *tensor.RawTensor {
	return e.layerNorm(x, weight, bias, eps, true)
}

func (e *Engine[B]) layerNorm(x, weight, bias *tensor.RawTensor, eps float64, full bool) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	defer weight.ForceNonUnique()()

	last := len(x.Shape()) - 1
	mu := e.inner.MeanDim(x, last, true)
	d := e.inner.Sub(x, mu)

	// d has the unique reference to its buffer here; pin it so Mul cannot
	// square it in place. The forward and the full rule both still need it.
	undo := d.ForceNonUnique()
	variance := e.inner.MeanDim(e.inner.Mul(d, d), last, true)
	undo()

	sigma := e.inner.Sqrt(e.inner.AddScalar(variance, eps))

	y := e.inner.Mul(e.inner.Div(d, sigma), weight)
	if bias != nil {
		defer bias.ForceNonUnique()()
		y = e.inner.Add(y, bias)
	}

	saved := []*savedTensor{retainTensor(weight), retainTensor(sigma)}
	if full {
		saved = append(saved, retainTensor(d))
	}
	e.tape.Record(&layernormRule{
		ctx:    newRuleContext("layer_norm", saved...),
		inputs: []*tensor.RawTensor{x},
		output: y,
		dim:    last,
		full:   full,
	})
	return y
}

// layernormRule propagates relevance through y = w * (x - mu)/sigma + b.
//
// With detached statistics (full=false) only the centering is
// differentiated:
//
//	R_x = (w*R_y - mean(w*R_y)) / sigma
//
// With full=true the sigma term is included, giving the exact layer
// gradient:
//
//	R_x = (w*R_y - mean(w*R_y)) / sigma - d * mean(w*R_y*d) / sigma³
type layernormRule struct {
	ctx    *ruleContext // [weight, sigma] or [weight, sigma, d]
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
	full   bool
}

func (r *layernormRule) Backward(outputRel *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	w := r.ctx.get(0)
	sigma := r.ctx.get(1)

	wr := backend.Mul(outputRel, w)
	rx := backend.Div(backend.Sub(wr, backend.MeanDim(wr, r.dim, true)), sigma)

	if r.full {
		d := r.ctx.get(2)
		sigma3 := backend.Mul(sigma, backend.Mul(sigma, sigma))
		term := backend.Mul(d, backend.Div(backend.MeanDim(backend.Mul(wr, d), r.dim, true), sigma3))
		rx = backend.Sub(rx, term)
	}

	r.ctx.release()
	return []*tensor.RawTensor{rx}
}

func (r *layernormRule) Inputs() []*tensor.RawTensor {
	return r.inputs
}

func (r *layernormRule) Output() *tensor.RawTensor {
	return r.output
}

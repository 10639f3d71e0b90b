package lrp

import (
	"fmt"

	"github.com/relprop-ml/relprop/internal/tensor"
)

// Linear computes x @ weight^T + bias and records the epsilon rule.
//
// weight is [out, in] and bias is [out] or nil. x may have any rank with
// last dimension in; leading dimensions are flattened for the product and
// restored afterwards. Relevance flows only to x: weight and bias are
// treated as constants.
func (e *Engine[B]) Linear(x, weight, bias *tensor.RawTensor, eps float64) *tensor.RawTensor {
	return e.affine(x, weight, bias, eps, true)
}

// Conv1D computes x @ weight + bias with a transposed weight layout
// (weight is [in, out], the GPT-2 convention). Otherwise identical to
// Linear.
func (e *Engine[B]) Conv1D(x, weight, bias *tensor.RawTensor, eps float64) *tensor.RawTensor {
	return e.affine(x, weight, bias, eps, false)
}

func (e *Engine[B]) affine(x, weight, bias *tensor.RawTensor, eps float64, outFirst bool) *tensor.RawTensor {
	defer x.ForceNonUnique()()
	defer weight.ForceNonUnique()()

	xShape := x.Shape()
	wShape := weight.Shape()
	if len(wShape) != 2 {
		panic(fmt.Sprintf("lrp: affine weight must be 2D, got %v", wShape))
	}
	in, out := wShape[1], wShape[0]
	if !outFirst {
		in, out = wShape[0], wShape[1]
	}
	if xShape[len(xShape)-1] != in {
		panic(fmt.Sprintf("lrp: affine input shape %v incompatible with weight %v", xShape, wShape))
	}

	x2 := x
	flat := len(xShape) != 2
	if flat {
		x2 = e.inner.Reshape(x, tensor.Shape{xShape.NumElements() / in, in})
	}

	var y2 *tensor.RawTensor
	if outFirst {
		y2 = e.inner.MatMul(x2, e.inner.Transpose(weight))
	} else {
		y2 = e.inner.MatMul(x2, weight)
	}
	if bias != nil {
		defer bias.ForceNonUnique()()
		y2 = e.inner.Add(y2, bias)
	}

	outShape := xShape.Clone()
	outShape[len(outShape)-1] = out
	y := y2
	if flat {
		y = e.inner.Reshape(y2, outShape)
	}

	e.tape.Record(&affineRule{
		ctx:      newRuleContext("affine", retainTensor(x2), retainTensor(weight), retainTensor(y2)),
		inputs:   []*tensor.RawTensor{x},
		output:   y,
		xShape:   xShape.Clone(),
		eps:      eps,
		outFirst: outFirst,
	})
	return y
}

// affineRule propagates relevance through y = x @ W^T + bias:
//
//	s   = R_y / (y + eps)
//	R_x = x * (s @ W)
//
// The bias absorbs no relevance, so conservation holds only up to the bias
// contribution.
type affineRule struct {
	ctx      *ruleContext // [x2, weight, y2] (2D forms)
	inputs   []*tensor.RawTensor
	output   *tensor.RawTensor
	xShape   tensor.Shape
	eps      float64
	outFirst bool
}

func (r *affineRule) Backward(outputRel *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	x2 := r.ctx.get(0)
	w := r.ctx.get(1)
	y2 := r.ctx.get(2)

	rel2 := outputRel
	if !rel2.Shape().Equal(y2.Shape()) {
		rel2 = backend.Reshape(rel2, y2.Shape())
	}
	s := safeDiv(rel2, y2, r.eps, backend)

	var grad *tensor.RawTensor
	if r.outFirst {
		grad = backend.MatMul(s, w)
	} else {
		grad = backend.MatMul(s, backend.Transpose(w))
	}
	rx := backend.Mul(x2, grad)
	if !rx.Shape().Equal(r.xShape) {
		rx = backend.Reshape(rx, r.xShape)
	}

	r.ctx.release()
	return []*tensor.RawTensor{rx}
}

func (r *affineRule) Inputs() []*tensor.RawTensor {
	return r.inputs
}

func (r *affineRule) Output() *tensor.RawTensor {
	return r.output
}

package ops

import "github.com/relprop-ml/relprop/internal/tensor"

// SumDimOp represents a sum reduction along one dimension.
//
// Backward pass: the gradient of a sum is broadcast back over the reduced
// dimension, since every element contributed with weight 1.
type SumDimOp struct {
	inputs  []*tensor.RawTensor // [x]
	output  *tensor.RawTensor   // sum(x, dim)
	dim     int
	keepDim bool
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	return &SumDimOp{
		inputs:  []*tensor.RawTensor{x},
		output:  output,
		dim:     dim,
		keepDim: keepDim,
	}
}

// Backward expands the output gradient back to the input shape.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	xShape := op.inputs[0].Shape()
	grad := outputGrad
	if !op.keepDim {
		grad = unsqueezeToRank(grad, op.dim, xShape, backend)
	}
	return []*tensor.RawTensor{backend.Expand(grad, xShape)}
}

// Inputs returns the input tensors [x].
func (op *SumDimOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the reduced output tensor.
func (op *SumDimOp) Output() *tensor.RawTensor {
	return op.output
}

// SumOp represents a full reduction to a scalar.
type SumOp struct {
	inputs []*tensor.RawTensor // [x]
	output *tensor.RawTensor   // sum(x), shape {}
}

// NewSumOp creates a new SumOp.
func NewSumOp(x, output *tensor.RawTensor) *SumOp {
	return &SumOp{
		inputs: []*tensor.RawTensor{x},
		output: output,
	}
}

// Backward broadcasts the scalar gradient over the whole input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Expand(outputGrad, op.inputs[0].Shape())}
}

// Inputs returns the input tensors [x].
func (op *SumOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the scalar output tensor.
func (op *SumOp) Output() *tensor.RawTensor {
	return op.output
}

// MeanDimOp represents a mean reduction along one dimension.
//
// Backward pass: like sum, but each element contributed with weight 1/n
// where n is the size of the reduced dimension.
type MeanDimOp struct {
	inputs  []*tensor.RawTensor // [x]
	output  *tensor.RawTensor   // mean(x, dim)
	dim     int
	keepDim bool
}

// NewMeanDimOp creates a new MeanDimOp.
func NewMeanDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *MeanDimOp {
	return &MeanDimOp{
		inputs:  []*tensor.RawTensor{x},
		output:  output,
		dim:     dim,
		keepDim: keepDim,
	}
}

// Backward expands the output gradient and divides by the reduced size.
func (op *MeanDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	xShape := op.inputs[0].Shape()
	n := xShape[xShape.NormalizeDim(op.dim)]

	grad := outputGrad
	if !op.keepDim {
		grad = unsqueezeToRank(grad, op.dim, xShape, backend)
	}
	grad = backend.Expand(grad, xShape)
	return []*tensor.RawTensor{backend.DivScalar(grad, float64(n))}
}

// Inputs returns the input tensors [x].
func (op *MeanDimOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the reduced output tensor.
func (op *MeanDimOp) Output() *tensor.RawTensor {
	return op.output
}

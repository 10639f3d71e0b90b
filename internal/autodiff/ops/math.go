package ops

import "github.com/relprop-ml/relprop/internal/tensor"

// ExpOp represents element-wise exponential: output = exp(x).
//
// Backward: d(exp(x))/dx = exp(x) = output, so the gradient reuses the
// saved forward output instead of recomputing the exponential.
type ExpOp struct {
	inputs []*tensor.RawTensor // [x]
	output *tensor.RawTensor   // exp(x)
}

// NewExpOp creates a new ExpOp.
func NewExpOp(x, output *tensor.RawTensor) *ExpOp {
	return &ExpOp{
		inputs: []*tensor.RawTensor{x},
		output: output,
	}
}

// Backward computes outputGrad * exp(x) using the saved output.
func (op *ExpOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Mul(outputGrad, op.output)}
}

// Inputs returns the input tensors [x].
func (op *ExpOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor exp(x).
func (op *ExpOp) Output() *tensor.RawTensor {
	return op.output
}

// SqrtOp represents element-wise square root: output = sqrt(x).
//
// Backward: d(sqrt(x))/dx = 1/(2*sqrt(x)) = 1/(2*output).
type SqrtOp struct {
	inputs []*tensor.RawTensor // [x]
	output *tensor.RawTensor   // sqrt(x)
}

// NewSqrtOp creates a new SqrtOp.
func NewSqrtOp(x, output *tensor.RawTensor) *SqrtOp {
	return &SqrtOp{
		inputs: []*tensor.RawTensor{x},
		output: output,
	}
}

// Backward computes outputGrad / (2 * sqrt(x)) using the saved output.
func (op *SqrtOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{backend.Div(outputGrad, backend.MulScalar(op.output, 2))}
}

// Inputs returns the input tensors [x].
func (op *SqrtOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor sqrt(x).
func (op *SqrtOp) Output() *tensor.RawTensor {
	return op.output
}

// RsqrtOp represents element-wise reciprocal square root: output = 1/sqrt(x).
//
// Backward: d(x^-1/2)/dx = -1/2 * x^-3/2 = -1/2 * output³.
type RsqrtOp struct {
	inputs []*tensor.RawTensor // [x]
	output *tensor.RawTensor   // 1/sqrt(x)
}

// NewRsqrtOp creates a new RsqrtOp.
func NewRsqrtOp(x, output *tensor.RawTensor) *RsqrtOp {
	return &RsqrtOp{
		inputs: []*tensor.RawTensor{x},
		output: output,
	}
}

// Backward computes -0.5 * outputGrad * output³ using the saved output.
func (op *RsqrtOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	cubed := backend.Mul(backend.Mul(op.output, op.output), op.output)
	grad := backend.MulScalar(backend.Mul(outputGrad, cubed), -0.5)
	return []*tensor.RawTensor{grad}
}

// Inputs returns the input tensors [x].
func (op *RsqrtOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor 1/sqrt(x).
func (op *RsqrtOp) Output() *tensor.RawTensor {
	return op.output
}

package ops

import "github.com/relprop-ml/relprop/internal/tensor"

// SoftmaxOp represents softmax along one dimension: output = softmax(x, dim).
//
// Backward pass uses the saved output y:
//
//	grad_x = y * (outputGrad - sum(outputGrad * y, dim, keepdim))
type SoftmaxOp struct {
	inputs []*tensor.RawTensor // [x]
	output *tensor.RawTensor   // softmax(x, dim)
	dim    int
}

// NewSoftmaxOp creates a new SoftmaxOp.
func NewSoftmaxOp(x, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{
		inputs: []*tensor.RawTensor{x},
		output: output,
		dim:    dim,
	}
}

// Backward computes the softmax Jacobian-vector product using the saved
// forward output.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	y := op.output
	inner := backend.SumDim(backend.Mul(outputGrad, y), op.dim, true)
	grad := backend.Mul(y, backend.Sub(outputGrad, inner))
	return []*tensor.RawTensor{grad}
}

// Inputs returns the input tensors [x].
func (op *SoftmaxOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor softmax(x, dim).
func (op *SoftmaxOp) Output() *tensor.RawTensor {
	return op.output
}

// Dim returns the softmax dimension.
func (op *SoftmaxOp) Dim() int {
	return op.dim
}

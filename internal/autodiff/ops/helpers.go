package ops

import (
	"fmt"

	"github.com/relprop-ml/relprop/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor back to the target shape after a
// broadcasting forward op.
//
// Example:
//
//	Forward: a[3,1] + b[3,4] -> c[3,4]  (a was broadcast along dim 1)
//	Backward: grad_c[3,4] -> grad_a[3,1] (sum along dim 1)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()

	// Clone when shapes already match so accumulation cannot mutate a
	// gradient shared with another consumer.
	if gradShape.Equal(targetShape) {
		return grad.Clone()
	}

	if len(targetShape) == 0 {
		return backend.Sum(grad)
	}

	// Broadcasting aligns shapes from the right: sum away extra leading
	// dimensions first, then the dimensions where the target is 1.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}
	for i := 0; i < len(targetShape); i++ {
		if targetShape[i] == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}

	return result
}

// unsqueezeToRank re-inserts a reduced dimension so that grad broadcasts
// against the pre-reduction shape.
func unsqueezeToRank(grad *tensor.RawTensor, dim int, fullShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if len(grad.Shape()) == len(fullShape) {
		return grad
	}
	d := fullShape.NormalizeDim(dim)
	return backend.Unsqueeze(grad, d)
}

// SwapLastAxes builds the transpose permutation exchanging the last two
// dimensions of a rank-ndim tensor.
func SwapLastAxes(ndim int) []int {
	if ndim < 2 {
		panic(fmt.Sprintf("SwapLastAxes: rank %d", ndim))
	}
	axes := make([]int, ndim)
	for i := 0; i < ndim-2; i++ {
		axes[i] = i
	}
	axes[ndim-2] = ndim - 1
	axes[ndim-1] = ndim - 2
	return axes
}

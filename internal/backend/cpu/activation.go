package cpu

import (
	"fmt"
	"math"

	"github.com/relprop-ml/relprop/internal/tensor"
)

// Softmax computes softmax along the specified dimension.
// Softmax(x_i) = exp(x_i - max(x)) / sum_j exp(x_j - max(x)); the max shift
// keeps the exponentials from overflowing.
func (cpu *CPUBackend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)

	result := mustNewRaw(shape, x.DType(), cpu.device, "softmax")

	outer := 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	dimSize := shape[dim]
	inner := 1
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}

	switch x.DType() {
	case tensor.Float32:
		softmaxSlice(x.AsFloat32(), result.AsFloat32(), outer, dimSize, inner)
	case tensor.Float64:
		softmaxSlice(x.AsFloat64(), result.AsFloat64(), outer, dimSize, inner)
	default:
		panic(fmt.Sprintf("softmax: unsupported dtype %s", x.DType()))
	}

	return result
}

func softmaxSlice[T float32 | float64](src, dst []T, outer, dimSize, inner int) {
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			base := o*dimSize*inner + i

			maxVal := src[base]
			for d := 1; d < dimSize; d++ {
				if v := src[base+d*inner]; v > maxVal {
					maxVal = v
				}
			}

			var sumExp T
			for d := 0; d < dimSize; d++ {
				idx := base + d*inner
				e := T(math.Exp(float64(src[idx] - maxVal)))
				dst[idx] = e
				sumExp += e
			}

			for d := 0; d < dimSize; d++ {
				dst[base+d*inner] /= sumExp
			}
		}
	}
}

package cpu

import (
	"fmt"

	"github.com/relprop-ml/relprop/internal/tensor"
)

// Sum computes the total sum of all elements, returning a scalar tensor.
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	result := mustNewRaw(tensor.Shape{}, x.DType(), cpu.device, "sum")

	switch x.DType() {
	case tensor.Float32:
		var sum float32
		for _, v := range x.AsFloat32() {
			sum += v
		}
		result.AsFloat32()[0] = sum
	case tensor.Float64:
		var sum float64
		for _, v := range x.AsFloat64() {
			sum += v
		}
		result.AsFloat64()[0] = sum
	default:
		panic(fmt.Sprintf("sum: unsupported dtype %s", x.DType()))
	}

	return result
}

// SumDim sums along a dimension.
// With keepDim the reduced dimension stays as size 1; otherwise it is
// removed from the output shape.
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("SumDim", x, dim, keepDim, false)
}

// MeanDim averages along a dimension.
func (cpu *CPUBackend) MeanDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	return cpu.reduceDim("MeanDim", x, dim, keepDim, true)
}

func (cpu *CPUBackend) reduceDim(name string, x *tensor.RawTensor, dim int, keepDim, mean bool) *tensor.RawTensor {
	shape := x.Shape()
	dim = shape.NormalizeDim(dim)

	outShape := shape.Clone()
	outShape[dim] = 1
	if !keepDim {
		outShape = outShape.Remove(dim)
	}

	result := mustNewRaw(outShape, x.DType(), cpu.device, name)

	// Collapse the shape into [outer, dimSize, inner] around the reduced
	// dimension; the reduction then runs over the middle index.
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
		reduceSlice(x.AsFloat32(), result.AsFloat32(), outer, dimSize, inner, mean)
	case tensor.Float64:
		reduceSlice(x.AsFloat64(), result.AsFloat64(), outer, dimSize, inner, mean)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}

	return result
}

func reduceSlice[T float32 | float64](src, dst []T, outer, dimSize, inner int, mean bool) {
	for o := 0; o < outer; o++ {
		for i := 0; i < inner; i++ {
			var sum T
			base := o*dimSize*inner + i
			for d := 0; d < dimSize; d++ {
				sum += src[base+d*inner]
			}
			if mean {
				sum /= T(dimSize)
			}
			dst[o*inner+i] = sum
		}
	}
}

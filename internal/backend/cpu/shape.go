package cpu

import (
	"fmt"

	"github.com/relprop-ml/relprop/internal/tensor"
)

// Reshape returns a tensor with the same data and a new shape.
// The element count must be preserved. The result shares no storage with the
// input (backends are free to copy; callers must not rely on aliasing).
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if t.NumElements() != newShape.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}

	result := mustNewRaw(newShape, t.DType(), cpu.device, "reshape")
	copy(result.Data(), t.Data()[:t.ByteSize()])
	return result
}

// Unsqueeze inserts a size-1 dimension at dim.
func (cpu *CPUBackend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return cpu.Reshape(x, x.Shape().Insert(dim))
}

// Squeeze removes a size-1 dimension at dim.
func (cpu *CPUBackend) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	return cpu.Reshape(x, x.Shape().Remove(dim))
}

// Transpose permutes tensor dimensions. With no axes given, all dimensions
// are reversed.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: got %d axes for tensor of rank %d", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	outShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		if ax < 0 || ax >= ndim || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid axes %v for rank %d", axes, ndim))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
	}

	result := mustNewRaw(outShape, t.DType(), cpu.device, "transpose")

	switch t.DType() {
	case tensor.Float32:
		transposeSlice(t.AsFloat32(), result.AsFloat32(), shape, outShape, axes)
	case tensor.Float64:
		transposeSlice(t.AsFloat64(), result.AsFloat64(), shape, outShape, axes)
	default:
		panic(fmt.Sprintf("transpose: unsupported dtype %s", t.DType()))
	}

	return result
}

func transposeSlice[T float32 | float64](src, dst []T, inShape, outShape tensor.Shape, axes []int) {
	inStrides := inShape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	n := inShape.NumElements()

	for outIdx := 0; outIdx < n; outIdx++ {
		// Decompose the output index into coordinates and map each output
		// dimension back to its source dimension.
		rem := outIdx
		srcIdx := 0
		for d := 0; d < len(outStrides); d++ {
			coord := rem / outStrides[d]
			rem %= outStrides[d]
			srcIdx += coord * inStrides[axes[d]]
		}
		dst[outIdx] = src[srcIdx]
	}
}

// Expand broadcasts a tensor to a larger shape. Size-1 dimensions (and
// missing leading dimensions) are repeated; other dimensions must match.
func (cpu *CPUBackend) Expand(x *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	outShape, _, err := tensor.BroadcastShapes(x.Shape(), newShape)
	if err != nil || !outShape.Equal(newShape) {
		panic(fmt.Sprintf("expand: cannot expand %v to %v", x.Shape(), newShape))
	}

	result := mustNewRaw(newShape, x.DType(), cpu.device, "expand")

	outStrides := newShape.ComputeStrides()
	srcStrides := computeBroadcastStridesForShape(x.Shape(), newShape)
	n := newShape.NumElements()

	switch x.DType() {
	case tensor.Float32:
		src := x.AsFloat32()
		dst := result.AsFloat32()
		for i := 0; i < n; i++ {
			dst[i] = src[computeFlatIndex(i, outStrides, srcStrides)]
		}
	case tensor.Float64:
		src := x.AsFloat64()
		dst := result.AsFloat64()
		for i := 0; i < n; i++ {
			dst[i] = src[computeFlatIndex(i, outStrides, srcStrides)]
		}
	default:
		panic(fmt.Sprintf("expand: unsupported dtype %s", x.DType()))
	}

	return result
}

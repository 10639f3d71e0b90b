package cpu

import (
	"github.com/relprop-ml/relprop/internal/tensor"
)

// binaryKind selects the arithmetic applied by the element-wise kernels.
type binaryKind int

const (
	addKernel binaryKind = iota
	subKernel
	mulKernel
	divKernel
)

// binaryInplace performs a ∘= b for equally shaped tensors.
// Requires a.Shape().Equal(b.Shape()) && a.IsUnique().
func binaryInplace(kind binaryKind, a, b *tensor.RawTensor) {
	switch a.DType() {
	case tensor.Float32:
		inplaceSlice(kind, a.AsFloat32(), b.AsFloat32())
	case tensor.Float64:
		inplaceSlice(kind, a.AsFloat64(), b.AsFloat64())
	default:
		panic("binaryInplace: unsupported dtype")
	}
}

// binaryVectorized computes result = a ∘ b for equally shaped tensors.
func binaryVectorized(kind binaryKind, result, a, b *tensor.RawTensor) {
	switch a.DType() {
	case tensor.Float32:
		vectorizedSlice(kind, result.AsFloat32(), a.AsFloat32(), b.AsFloat32())
	case tensor.Float64:
		vectorizedSlice(kind, result.AsFloat64(), a.AsFloat64(), b.AsFloat64())
	default:
		panic("binaryVectorized: unsupported dtype")
	}
}

// binaryBroadcast computes result = a ∘ b with NumPy-style broadcasting.
func binaryBroadcast(kind binaryKind, result, a, b *tensor.RawTensor, outShape tensor.Shape) {
	switch a.DType() {
	case tensor.Float32:
		broadcastSlice(kind, result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), a.Shape(), b.Shape(), outShape)
	case tensor.Float64:
		broadcastSlice(kind, result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), a.Shape(), b.Shape(), outShape)
	default:
		panic("binaryBroadcast: unsupported dtype")
	}
}

func inplaceSlice[T float32 | float64](kind binaryKind, a, b []T) {
	switch kind {
	case addKernel:
		for i := range a {
			a[i] += b[i]
		}
	case subKernel:
		for i := range a {
			a[i] -= b[i]
		}
	case mulKernel:
		for i := range a {
			a[i] *= b[i]
		}
	case divKernel:
		for i := range a {
			a[i] /= b[i]
		}
	}
}

func vectorizedSlice[T float32 | float64](kind binaryKind, dst, a, b []T) {
	switch kind {
	case addKernel:
		for i := range dst {
			dst[i] = a[i] + b[i]
		}
	case subKernel:
		for i := range dst {
			dst[i] = a[i] - b[i]
		}
	case mulKernel:
		for i := range dst {
			dst[i] = a[i] * b[i]
		}
	case divKernel:
		for i := range dst {
			dst[i] = a[i] / b[i]
		}
	}
}

func broadcastSlice[T float32 | float64](kind binaryKind, dst, a, b []T, aShape, bShape, outShape tensor.Shape) {
	outStrides := outShape.ComputeStrides()
	aStrides := computeBroadcastStridesForShape(aShape, outShape)
	bStrides := computeBroadcastStridesForShape(bShape, outShape)

	n := outShape.NumElements()
	for i := 0; i < n; i++ {
		av := a[computeFlatIndex(i, outStrides, aStrides)]
		bv := b[computeFlatIndex(i, outStrides, bStrides)]
		switch kind {
		case addKernel:
			dst[i] = av + bv
		case subKernel:
			dst[i] = av - bv
		case mulKernel:
			dst[i] = av * bv
		case divKernel:
			dst[i] = av / bv
		}
	}
}

// computeBroadcastStridesForShape computes strides for broadcasting a shape
// to outShape. Dimensions of size 1 (and padded leading dimensions) get
// stride 0.
func computeBroadcastStridesForShape(inShape, outShape tensor.Shape) []int {
	outDim := len(outShape)
	strides := make([]int, outDim)

	inDim := len(inShape)
	offset := outDim - inDim
	origStrides := inShape.ComputeStrides()

	for i := 0; i < outDim; i++ {
		inIdx := i - offset
		switch {
		case inIdx < 0 || inIdx >= inDim:
			strides[i] = 0
		case inShape[inIdx] == 1:
			strides[i] = 0
		default:
			strides[i] = origStrides[inIdx]
		}
	}

	return strides
}

// computeFlatIndex maps an output flat index to the source flat index using
// broadcast-adjusted strides.
func computeFlatIndex(outIdx int, outStrides, inStrides []int) int {
	flatIdx := 0
	for i := 0; i < len(outStrides); i++ {
		coord := outIdx / outStrides[i]
		outIdx %= outStrides[i]
		flatIdx += coord * inStrides[i]
	}
	return flatIdx
}

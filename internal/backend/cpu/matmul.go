package cpu

import (
	"fmt"

	"github.com/relprop-ml/relprop/internal/parallel"
	"github.com/relprop-ml/relprop/internal/tensor"
)

// MatMul performs 2D matrix multiplication: (M, K) @ (K, N) -> (M, N).
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: only 2D tensors supported, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape[0], aShape[1]
	kAlt, n := bShape[0], bShape[1]

	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch [%d,%d] @ [%d,%d]", m, k, kAlt, n))
	}

	result := mustNewRaw(tensor.Shape{m, n}, a.DType(), cpu.device, "matmul")

	switch a.DType() {
	case tensor.Float32:
		gemm(cpu.blocked, result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), m, k, n)
	case tensor.Float64:
		gemm(cpu.blocked, result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), m, k, n)
	default:
		panic(fmt.Sprintf("matmul: unsupported dtype %s", a.DType()))
	}

	return result
}

// BatchMatMul performs batched matrix multiplication.
// For 3D: [B, M, K] @ [B, K, N] -> [B, M, N]; 4D adds a head dimension.
// Batches are independent and run on the parallel worker pool.
func (cpu *CPUBackend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()
	ndim := len(aShape)

	if ndim < 3 {
		panic(fmt.Sprintf("BatchMatMul: inputs must be at least 3D, got %dD", ndim))
	}
	if len(bShape) != ndim {
		panic(fmt.Sprintf("BatchMatMul: dimension mismatch, got %dD and %dD", ndim, len(bShape)))
	}
	for i := 0; i < ndim-2; i++ {
		if aShape[i] != bShape[i] {
			panic(fmt.Sprintf("BatchMatMul: batch dimension mismatch at dim %d: %d vs %d", i, aShape[i], bShape[i]))
		}
	}

	m := aShape[ndim-2]
	k1 := aShape[ndim-1]
	k2 := bShape[ndim-2]
	n := bShape[ndim-1]

	if k1 != k2 {
		panic(fmt.Sprintf("BatchMatMul: inner dimension mismatch: %d vs %d", k1, k2))
	}

	batchSize := 1
	for i := 0; i < ndim-2; i++ {
		batchSize *= aShape[i]
	}

	outShape := make(tensor.Shape, ndim)
	copy(outShape, aShape[:ndim-2])
	outShape[ndim-2] = m
	outShape[ndim-1] = n

	result := mustNewRaw(outShape, a.DType(), cpu.device, "BatchMatMul")

	switch a.DType() {
	case tensor.Float32:
		batchGemm(cpu, result.AsFloat32(), a.AsFloat32(), b.AsFloat32(), batchSize, m, k1, n)
	case tensor.Float64:
		batchGemm(cpu, result.AsFloat64(), a.AsFloat64(), b.AsFloat64(), batchSize, m, k1, n)
	default:
		panic(fmt.Sprintf("BatchMatMul: unsupported dtype %s", a.DType()))
	}

	return result
}

func batchGemm[T float32 | float64](cpu *CPUBackend, c, a, b []T, batchSize, m, k, n int) {
	sizeA := m * k
	sizeB := k * n
	sizeC := m * n

	parallel.For(batchSize, func(batch int) {
		gemm(
			cpu.blocked,
			c[batch*sizeC:(batch+1)*sizeC],
			a[batch*sizeA:(batch+1)*sizeA],
			b[batch*sizeB:(batch+1)*sizeB],
			m, k, n,
		)
	}, cpu.par)
}

// gemm computes C = A @ B for row-major slices.
//
// On cores with wide SIMD units (detected at construction) the i-k-j loop
// order is used: the inner j loop walks both B and C contiguously, which the
// compiler auto-vectorizes. The naive i-j-k order is the fallback.
func gemm[T float32 | float64](blocked bool, c, a, b []T, m, k, n int) {
	for i := range c {
		c[i] = 0
	}

	if blocked {
		for i := 0; i < m; i++ {
			for kIdx := 0; kIdx < k; kIdx++ {
				av := a[i*k+kIdx]
				bRow := b[kIdx*n : kIdx*n+n]
				cRow := c[i*n : i*n+n]
				for j := range cRow {
					cRow[j] += av * bRow[j]
				}
			}
		}
		return
	}

	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum T
			for kIdx := 0; kIdx < k; kIdx++ {
				sum += a[i*k+kIdx] * b[kIdx*n+j]
			}
			c[i*n+j] = sum
		}
	}
}

// Package cpu implements the pure-Go CPU backend for the relevance engine.
package cpu

import (
	"fmt"

	"github.com/klauspost/cpuid/v2"

	"github.com/relprop-ml/relprop/internal/parallel"
	"github.com/relprop-ml/relprop/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
//
// Matrix kernels are selected at construction time: on cores with AVX2 (or
// NEON on arm64) a cache-blocked loop order is used so the compiler can keep
// the inner accumulation vectorizable; otherwise the naive loop order is
// kept.
type CPUBackend struct {
	device  tensor.Device
	par     parallel.Config
	blocked bool
}

// New creates a new CPU backend with default parallel configuration.
func New() *CPUBackend {
	return &CPUBackend{
		device:  tensor.CPU,
		par:     parallel.DefaultConfig(),
		blocked: cpuid.CPU.Supports(cpuid.AVX2) || cpuid.CPU.Supports(cpuid.ASIMD),
	}
}

// NewWithConfig creates a CPU backend with an explicit parallel configuration.
func NewWithConfig(cfg parallel.Config) *CPUBackend {
	b := New()
	b.par = cfg
	return b
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *CPUBackend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("add", a, b, addKernel)
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("sub", a, b, subKernel)
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("mul", a, b, mulKernel)
}

// Div performs element-wise division with broadcasting.
// Division by zero follows IEEE-754 semantics (Inf/NaN); callers that need
// stabilized division add an epsilon to the denominator first.
func (cpu *CPUBackend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binary("div", a, b, divKernel)
}

// binary dispatches an element-wise binary operation.
//
// Fast path: identical shapes, with in-place reuse of a's storage when a is
// the unique reference to its buffer. Slow path: strided broadcast walk.
func (cpu *CPUBackend) binary(name string, a, b *tensor.RawTensor, kind binaryKind) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch %s vs %s", name, a.DType(), b.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	if !needsBroadcast && a.Shape().Equal(b.Shape()) {
		if a.IsUnique() {
			binaryInplace(kind, a, b)
			return a
		}
		result := mustNewRaw(outShape, a.DType(), cpu.device, name)
		binaryVectorized(kind, result, a, b)
		return result
	}

	result := mustNewRaw(outShape, a.DType(), cpu.device, name)
	binaryBroadcast(kind, result, a, b, outShape)
	return result
}

// mustNewRaw allocates a result tensor or panics with the op name.
func mustNewRaw(shape tensor.Shape, dtype tensor.DataType, device tensor.Device, op string) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, dtype, device)
	if err != nil {
		panic(fmt.Sprintf("%s: failed to create result tensor: %v", op, err))
	}
	return result
}

package lrp

import (
	"fmt"

	"github.com/relprop-ml/relprop/internal/autodiff"
	"github.com/relprop-ml/relprop/internal/tensor"
)

// Engine decorates a numeric backend with relevance propagation.
//
// Forward methods (Softmax, MatMul, Linear, ...) compute the regular result
// through the wrapped backend and record a relevance rule on the tape.
// Relevance walks the tape in reverse and redistributes an output seed to
// every tensor on a path to it.
//
// Usage:
//
//	engine := lrp.New(cpu.New())
//	y := engine.Softmax(x, -1, false)
//	rel := engine.Relevance(y, seed)
//	rx := rel[x]
type Engine[B tensor.Backend] struct {
	inner B
	tape  *autodiff.GradientTape

	// vjp wraps inner with refcount pinning so rule math cannot mutate
	// tensors shared with the tape or the relevance map. Its own tape never
	// records.
	vjp *autodiff.AutodiffBackend[B]
}

// New creates an Engine wrapping the given backend. The tape records
// immediately.
func New[B tensor.Backend](backend B) *Engine[B] {
	e := &Engine[B]{
		inner: backend,
		tape:  autodiff.NewGradientTape(),
		vjp:   autodiff.New(backend),
	}
	e.tape.StartRecording()
	return e
}

// Inner returns the wrapped backend.
func (e *Engine[B]) Inner() B {
	return e.inner
}

// Tape returns the relevance tape for inspection.
func (e *Engine[B]) Tape() *autodiff.GradientTape {
	return e.tape
}

// Reset clears the tape between passes.
func (e *Engine[B]) Reset() {
	e.tape.Clear()
}

// Relevance propagates seed from output back through every recorded rule.
//
// The returned map is keyed by the tensors passed to the forward methods;
// tensors not on a path to output are absent. The sum of input relevances
// approximately equals the sum of the seed for conservative rules.
func (e *Engine[B]) Relevance(output, seed *tensor.RawTensor) map[*tensor.RawTensor]*tensor.RawTensor {
	if !output.Shape().Equal(seed.Shape()) {
		panic(fmt.Sprintf("lrp: relevance seed shape %v does not match output shape %v",
			seed.Shape(), output.Shape()))
	}
	return e.tape.BackwardFrom(output, seed, e.vjp)
}

// overwrite redirects y into x's storage and returns a fresh handle for the
// result. The handle shares x's buffer but has its own graph identity, so
// relevance seeded on it does not collide with x's own entry.
func overwrite(x, y *tensor.RawTensor) *tensor.RawTensor {
	out := x.Clone()
	out.StoreInplace(y)
	y.Release()
	return out
}

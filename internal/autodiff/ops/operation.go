// Package ops defines the operation interface and the gradient-rule
// implementations recorded on the autodiff tape.
//
// Each operation captures its inputs and output during the forward pass and
// computes input gradients from the output gradient during the backward
// pass. The relevance engine records its own operations against the same
// interface, so gradient rules and relevance rules share one tape walker.
package ops

import "github.com/relprop-ml/relprop/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor; a nil
	// entry means no gradient flows to that input.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

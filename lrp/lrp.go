// Copyright 2025 RelProp Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package lrp provides layer-wise relevance propagation for tensor
// primitives.
//
// The Engine wraps a numeric backend: forward calls compute the regular
// result and record a relevance rule; Relevance redistributes an output
// relevance seed back to the inputs according to the recorded rules.
//
// Example:
//
//	backend := cpu.New()
//	engine := lrp.New(backend)
//
//	y := engine.Softmax(x, -1, false)
//	rel := engine.Relevance(y, seed)
//	rx := rel[x] // relevance of the input
package lrp

import (
	"github.com/relprop-ml/relprop/internal/lrp"
	"github.com/relprop-ml/relprop/internal/tensor"
)

// Engine is the relevance propagation engine, generic over the wrapped
// backend.
type Engine[B tensor.Backend] = lrp.Engine[B]

// New creates an Engine wrapping the given backend.
func New[B tensor.Backend](backend B) *Engine[B] {
	return lrp.New(backend)
}

// EpsilonRule applies the generic epsilon rule to an arbitrary function
// composed of backend operations. See Engine.Apply.
type EpsilonRule = lrp.EpsilonRule

// Fn is the function form accepted by EpsilonRule.
type Fn = lrp.Fn

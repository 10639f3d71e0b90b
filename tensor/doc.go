// Copyright 2025 RelProp Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the public API for tensor values in RelProp.
//
// The package defines the core types the relevance engine operates on:
//   - Tensor[T, B]: High-level generic tensor with type safety
//   - RawTensor: Low-level tensor over a reference-counted, versioned buffer
//   - Backend: Interface for compute implementations
//   - Shape, DataType, Device: Core type definitions
//
// Example:
//
//	backend := cpu.New()
//	x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
package tensor

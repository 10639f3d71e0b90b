// Copyright 2025 RelProp Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - Float32 and Float64 support
//   - NumPy-compatible broadcasting
//   - A cache-blocked matmul kernel selected via CPU feature detection
//
// # Basic Usage
//
//	import (
//	    "github.com/relprop-ml/relprop/backend/cpu"
//	    "github.com/relprop-ml/relprop/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    x := tensor.Zeros[float32](tensor.Shape{2, 3}, backend)
//	    y := tensor.Ones[float32](tensor.Shape{2, 3}, backend)
//	    z := backend.Add(x.Raw(), y.Raw())
//	}
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each tensor operation is
// isolated and does not share mutable state; batched kernels fan work out
// over a bounded worker pool.
package cpu

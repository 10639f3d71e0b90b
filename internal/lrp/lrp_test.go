package lrp_test

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/relprop-ml/relprop/internal/autodiff"
	"github.com/relprop-ml/relprop/internal/backend/cpu"
	"github.com/relprop-ml/relprop/internal/lrp"
	"github.com/relprop-ml/relprop/internal/tensor"
)

// newRef returns a backend for computing reference values in tests. The
// autodiff wrapper pins every argument, so reference math never mutates the
// tensors shared with the engine under test.
func newRef(b *cpu.CPUBackend) *autodiff.AutodiffBackend[*cpu.CPUBackend] {
	return autodiff.New(b)
}

func randn(shape tensor.Shape, rng *rand.Rand, b *cpu.CPUBackend) *tensor.RawTensor {
	return tensor.Randn[float32](shape, rng, b).Raw()
}

func randPos(shape tensor.Shape, rng *rand.Rand, b *cpu.CPUBackend) *tensor.RawTensor {
	return tensor.Rand[float32](shape, 0.5, 1.5, rng, b).Raw()
}

func asFloat64(r *tensor.RawTensor) []float64 {
	if r.DType() == tensor.Float64 {
		return r.AsFloat64()
	}
	data := r.AsFloat32()
	out := make([]float64, len(data))
	for i, v := range data {
		out[i] = float64(v)
	}
	return out
}

func requireAllClose(t *testing.T, want, got *tensor.RawTensor, atol float64) {
	t.Helper()
	w := asFloat64(want)
	g := asFloat64(got)
	require.Equal(t, len(w), len(g), "element count mismatch")
	for i := range w {
		require.InDelta(t, w[i], g[i], atol, "element %d", i)
	}
}

func sumOf(r *tensor.RawTensor) float64 {
	total := 0.0
	for _, v := range asFloat64(r) {
		total += v
	}
	return total
}

func TestSoftmaxRelevance(t *testing.T) {
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(1))

	x := randn(tensor.Shape{16, 10, 32}, rng, b)
	seed := randn(tensor.Shape{16, 10, 32}, rng, b)

	// R_x = x * (R - y * sum(R, -1))
	y := ref.Softmax(x, 2)
	gt := ref.Mul(x, ref.Sub(seed, ref.Mul(y, ref.SumDim(seed, 2, true))))

	t.Run("OutOfPlace", func(t *testing.T) {
		eng := lrp.New(b)
		out := eng.Softmax(x, -1, false)
		requireAllClose(t, y, out, 1e-6)

		rel := eng.Relevance(out, seed)
		requireAllClose(t, gt, rel[x], 1e-4)
	})

	t.Run("InPlace", func(t *testing.T) {
		xi := x.DeepClone()
		eng := lrp.New(b)
		out := eng.Softmax(xi, -1, true)

		// The result took over xi's storage.
		requireAllClose(t, y, xi, 1e-6)

		rel := eng.Relevance(out, seed)
		requireAllClose(t, gt, rel[xi], 1e-4)
	})
}

func TestMatMulRelevance(t *testing.T) {
	const eps = 1e-9
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(2))

	a := randn(tensor.Shape{2, 10, 32}, rng, b)
	bb := randn(tensor.Shape{2, 32, 5}, rng, b)
	seed := randn(tensor.Shape{2, 10, 5}, rng, b)

	// s = R / (2y + eps); R_a = a*(s @ b^T); R_b = b*(a^T @ s)
	y := ref.BatchMatMul(a, bb)
	s := ref.Div(seed, ref.AddScalar(ref.MulScalar(y, 2), eps))
	gtA := ref.Mul(a, ref.BatchMatMul(s, ref.Transpose(bb, 0, 2, 1)))
	gtB := ref.Mul(bb, ref.BatchMatMul(ref.Transpose(a, 0, 2, 1), s))

	for _, inplace := range []bool{false, true} {
		name := "OutOfPlace"
		if inplace {
			name = "InPlace"
		}
		t.Run(name, func(t *testing.T) {
			eng := lrp.New(b)
			out := eng.MatMul(a, bb, inplace, eps)
			requireAllClose(t, y, out, 1e-5)

			rel := eng.Relevance(out, seed)
			requireAllClose(t, gtA, rel[a], 1e-4)
			requireAllClose(t, gtB, rel[bb], 1e-4)
		})
	}
}

func TestMatMul2DRelevance(t *testing.T) {
	const eps = 1e-9
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(3))

	a := randn(tensor.Shape{10, 32}, rng, b)
	bb := randn(tensor.Shape{32, 5}, rng, b)
	seed := randn(tensor.Shape{10, 5}, rng, b)

	y := ref.MatMul(a, bb)
	s := ref.Div(seed, ref.AddScalar(ref.MulScalar(y, 2), eps))
	gtA := ref.Mul(a, ref.MatMul(s, ref.Transpose(bb)))
	gtB := ref.Mul(bb, ref.MatMul(ref.Transpose(a), s))

	eng := lrp.New(b)
	out := eng.MatMul(a, bb, false, eps)
	rel := eng.Relevance(out, seed)
	requireAllClose(t, gtA, rel[a], 1e-4)
	requireAllClose(t, gtB, rel[bb], 1e-4)
}

func TestLinearRelevance(t *testing.T) {
	const eps = 1e-9
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(4))

	x := randn(tensor.Shape{16, 10}, rng, b)
	weight := randn(tensor.Shape{5, 10}, rng, b)
	bias := randn(tensor.Shape{5}, rng, b)
	seed := randn(tensor.Shape{16, 5}, rng, b)

	// s = R / (y + eps); R_x = x * (s @ W)
	y := ref.Add(ref.MatMul(x, ref.Transpose(weight)), bias)
	s := ref.Div(seed, ref.AddScalar(y, eps))
	gt := ref.Mul(x, ref.MatMul(s, weight))

	eng := lrp.New(b)
	out := eng.Linear(x, weight, bias, eps)
	requireAllClose(t, y, out, 1e-5)

	rel := eng.Relevance(out, seed)
	requireAllClose(t, gt, rel[x], 1e-3)

	// Weight and bias are constants: no relevance entries.
	_, ok := rel[weight]
	require.False(t, ok)
	_, ok = rel[bias]
	require.False(t, ok)
}

func TestLinearBatchedInput(t *testing.T) {
	const eps = 1e-9
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(5))

	x := randn(tensor.Shape{2, 16, 10}, rng, b)
	weight := randn(tensor.Shape{5, 10}, rng, b)
	seed := randn(tensor.Shape{2, 16, 5}, rng, b)

	// Flatten to 2D, apply the rule, reshape back.
	x2 := ref.Reshape(x, tensor.Shape{32, 10})
	y2 := ref.MatMul(x2, ref.Transpose(weight))
	s := ref.Div(ref.Reshape(seed, tensor.Shape{32, 5}), ref.AddScalar(y2, eps))
	gt := ref.Reshape(ref.Mul(x2, ref.MatMul(s, weight)), tensor.Shape{2, 16, 10})

	eng := lrp.New(b)
	out := eng.Linear(x, weight, nil, eps)
	require.Equal(t, tensor.Shape{2, 16, 5}, out.Shape())

	rel := eng.Relevance(out, seed)
	requireAllClose(t, gt, rel[x], 1e-3)
}

func TestConv1DRelevance(t *testing.T) {
	const eps = 1e-9
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(6))

	x := randn(tensor.Shape{2, 4, 10}, rng, b)
	weight := randn(tensor.Shape{10, 5}, rng, b) // [in, out]
	bias := randn(tensor.Shape{5}, rng, b)
	seed := randn(tensor.Shape{2, 4, 5}, rng, b)

	x2 := ref.Reshape(x, tensor.Shape{8, 10})
	y2 := ref.Add(ref.MatMul(x2, weight), bias)
	s := ref.Div(ref.Reshape(seed, tensor.Shape{8, 5}), ref.AddScalar(y2, eps))
	gt := ref.Reshape(ref.Mul(x2, ref.MatMul(s, ref.Transpose(weight))), tensor.Shape{2, 4, 10})

	eng := lrp.New(b)
	out := eng.Conv1D(x, weight, bias, eps)
	require.Equal(t, tensor.Shape{2, 4, 5}, out.Shape())

	rel := eng.Relevance(out, seed)
	requireAllClose(t, gt, rel[x], 1e-3)
}

func TestAdd2Relevance(t *testing.T) {
	const eps = 1e-9
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(7))

	a := randn(tensor.Shape{16, 10, 32}, rng, b)
	c := randn(tensor.Shape{16, 10, 32}, rng, b)
	seed := randn(tensor.Shape{16, 10, 32}, rng, b)

	y := ref.Add(a, c)
	s := ref.Div(seed, ref.AddScalar(y, eps))
	gtA := ref.Mul(a, s)
	gtC := ref.Mul(c, s)

	t.Run("OutOfPlace", func(t *testing.T) {
		eng := lrp.New(b)
		out := eng.Add2(a, c, false, eps)
		rel := eng.Relevance(out, seed)
		requireAllClose(t, gtA, rel[a], 1e-4)
		requireAllClose(t, gtC, rel[c], 1e-4)
	})

	t.Run("InPlace", func(t *testing.T) {
		ai := a.DeepClone()
		eng := lrp.New(b)
		out := eng.Add2(ai, c, true, eps)
		requireAllClose(t, y, ai, 1e-6)

		rel := eng.Relevance(out, seed)
		requireAllClose(t, gtA, rel[ai], 1e-5)
		requireAllClose(t, gtC, rel[c], 1e-5)
	})
}

func TestMeanRelevance(t *testing.T) {
	const eps = 1e-9
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(8))

	a := randn(tensor.Shape{1, 8, 32}, rng, b)
	seed := randn(tensor.Shape{1, 8, 1}, rng, b)

	// R_a = a * R / (sum(a, -1) + eps)
	gt := ref.Mul(a, ref.Div(seed, ref.AddScalar(ref.SumDim(a, 2, true), eps)))

	t.Run("KeepDim", func(t *testing.T) {
		eng := lrp.New(b)
		out := eng.Mean(a, -1, true, eps)
		require.Equal(t, tensor.Shape{1, 8, 1}, out.Shape())

		rel := eng.Relevance(out, seed)
		requireAllClose(t, gt, rel[a], 1e-4)
	})

	t.Run("DropDim", func(t *testing.T) {
		eng := lrp.New(b)
		out := eng.Mean(a, -1, false, eps)
		require.Equal(t, tensor.Shape{1, 8}, out.Shape())

		rel := eng.Relevance(out, ref.Reshape(seed, tensor.Shape{1, 8}))
		requireAllClose(t, gt, rel[a], 1e-4)
	})
}

// The centered values feed both the variance and the numerator, so the
// forward pass must not let the squaring clobber them. Both layer norm
// variants share the forward path.
func TestLayerNormForward(t *testing.T) {
	const eps = 1e-5
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(21))

	x := randn(tensor.Shape{2, 6, 8}, rng, b)
	weight := randn(tensor.Shape{8}, rng, b)
	bias := randn(tensor.Shape{8}, rng, b)

	mu := ref.MeanDim(x, 2, true)
	d := ref.Sub(x, mu)
	sigma := ref.Sqrt(ref.AddScalar(ref.MeanDim(ref.Mul(d, d), 2, true), eps))
	want := ref.Add(ref.Mul(ref.Div(d, sigma), weight), bias)

	eng := lrp.New(b)
	requireAllClose(t, want, eng.LayerNorm(x, weight, bias, eps), 1e-6)
	requireAllClose(t, want, eng.LayerNormSlower(x, weight, bias, eps), 1e-6)
}

// LayerNormSlower propagates the exact gradient of the layer, so its output
// must match central finite differences of the forward pass.
func TestLayerNormSlowerMatchesFiniteDifferences(t *testing.T) {
	const (
		eps = 1e-5
		h   = 1e-6
	)
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(9))

	shape := tensor.Shape{1, 2, 8}
	x := tensor.Randn[float64](shape, rng, b).Raw()
	weight := tensor.Randn[float64](tensor.Shape{8}, rng, b).Raw()
	bias := tensor.Randn[float64](tensor.Shape{8}, rng, b).Raw()
	seed := tensor.Randn[float64](shape, rng, b).Raw()

	forward := func(xr *tensor.RawTensor) *tensor.RawTensor {
		mu := ref.MeanDim(xr, 2, true)
		d := ref.Sub(xr, mu)
		v := ref.MeanDim(ref.Mul(d, d), 2, true)
		sigma := ref.Sqrt(ref.AddScalar(v, eps))
		return ref.Add(ref.Mul(ref.Div(d, sigma), weight), bias)
	}
	loss := func(xr *tensor.RawTensor) float64 {
		return sumOf(ref.Mul(forward(xr), seed))
	}

	eng := lrp.New(b)
	y := eng.LayerNormSlower(x, weight, bias, eps)
	requireAllClose(t, forward(x), y, 1e-12)
	rel := eng.Relevance(y, seed)[x].AsFloat64()

	for i := range rel {
		xp := x.DeepClone()
		xp.AsFloat64()[i] += h
		xm := x.DeepClone()
		xm.AsFloat64()[i] -= h
		fd := (loss(xp) - loss(xm)) / (2 * h)
		require.InDelta(t, fd, rel[i], 1e-6, "element %d", i)
	}
}

func TestLayerNormRules(t *testing.T) {
	const eps = 1e-5
	b := cpu.New()
	rng := rand.New(rand.NewSource(23))

	// Wide rows: the correction term the detached rule drops shrinks with
	// the averaging width, so the two rules align in direction.
	x := randn(tensor.Shape{1, 2, 2048}, rng, b)
	weight := randn(tensor.Shape{2048}, rng, b)
	bias := randn(tensor.Shape{2048}, rng, b)
	seed := randn(tensor.Shape{1, 2, 2048}, rng, b)

	engFull := lrp.New(b)
	yFull := engFull.LayerNormSlower(x, weight, bias, eps)
	relFull := engFull.Relevance(yFull, seed)[x]

	engFast := lrp.New(b)
	yFast := engFast.LayerNorm(x, weight, bias, eps)
	relFast := engFast.Relevance(yFast, seed)[x]

	// Forward passes are identical; only propagation differs.
	requireAllClose(t, yFull, yFast, 1e-6)

	// Both rules assign zero net relevance per normalized row: the mean
	// subtraction cancels the weighted sum exactly.
	fu := asFloat64(relFull)
	fa := asFloat64(relFast)
	rowLen := 2048
	for row := 0; row < len(fu)/rowLen; row++ {
		var sumFull, sumFast, scale float64
		for i := row * rowLen; i < (row+1)*rowLen; i++ {
			sumFull += fu[i]
			sumFast += fa[i]
			scale += math.Abs(fa[i])
		}
		require.InDelta(t, 0, sumFull/scale, 1e-4)
		require.InDelta(t, 0, sumFast/scale, 1e-4)
	}

	// The detached rule keeps the direction of the exact gradient.
	var dot, nu, na float64
	for i := range fu {
		dot += fu[i] * fa[i]
		nu += fu[i] * fu[i]
		na += fa[i] * fa[i]
	}
	cos := dot / (math.Sqrt(nu) * math.Sqrt(na))
	require.Greater(t, cos, 0.99)
}

func TestNormalizationIdentity(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(10))

	x := randn(tensor.Shape{1, 4, 32}, rng, b)
	weight := randn(tensor.Shape{32}, rng, b)
	seed := randn(tensor.Shape{1, 4, 32}, rng, b)

	t.Run("RMSNorm", func(t *testing.T) {
		eng := lrp.New(b)
		out := eng.RMSNormIdentity(x, weight, 1e-9)
		rel := eng.Relevance(out, seed)
		requireAllClose(t, seed, rel[x], 1e-5)
	})

	t.Run("L2Normalize", func(t *testing.T) {
		eng := lrp.New(b)
		out := eng.NormalizeIdentity(x, 2, 1)
		rel := eng.Relevance(out, seed)
		requireAllClose(t, seed, rel[x], 1e-5)
	})

	t.Run("UnsupportedNorm", func(t *testing.T) {
		eng := lrp.New(b)
		require.Panics(t, func() {
			eng.NormalizeIdentity(x, 1, 1)
		})
	})
}

func TestBaddBmmRelevance(t *testing.T) {
	const (
		eps   = 1e-9
		alpha = 0.3
		beta  = 0.7
	)
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(11))

	a := randn(tensor.Shape{2, 10, 16}, rng, b)
	bb := randn(tensor.Shape{2, 16, 5}, rng, b)
	c := randn(tensor.Shape{2, 10, 5}, rng, b)
	seed := randn(tensor.Shape{2, 10, 5}, rng, b)

	y := ref.Add(ref.MulScalar(c, beta), ref.MulScalar(ref.BatchMatMul(a, bb), alpha))
	s := ref.Div(seed, ref.AddScalar(ref.MulScalar(y, 2), eps))
	gtA := ref.MulScalar(ref.Mul(a, ref.BatchMatMul(s, ref.Transpose(bb, 0, 2, 1))), alpha)
	gtB := ref.MulScalar(ref.Mul(bb, ref.BatchMatMul(ref.Transpose(a, 0, 2, 1), s)), alpha)
	gtC := ref.MulScalar(s, beta)

	t.Run("OutOfPlace", func(t *testing.T) {
		eng := lrp.New(b)
		out := eng.BaddBmm(c, a, bb, false, alpha, beta, eps)
		requireAllClose(t, y, out, 1e-5)

		rel := eng.Relevance(out, seed)
		requireAllClose(t, gtA, rel[a], 1e-4)
		requireAllClose(t, gtB, rel[bb], 1e-4)
		requireAllClose(t, gtC, rel[c], 1e-4)
	})

	t.Run("InPlace", func(t *testing.T) {
		ci := c.DeepClone()
		eng := lrp.New(b)
		out := eng.BaddBmm(ci, a, bb, true, alpha, beta, eps)
		requireAllClose(t, y, ci, 1e-6)

		rel := eng.Relevance(out, seed)
		requireAllClose(t, gtA, rel[a], 1e-4)
		requireAllClose(t, gtB, rel[bb], 1e-4)
		requireAllClose(t, gtC, rel[ci], 1e-4)
	})
}

// The fused BaddBmm forward must match the composed form built from
// MulScalar, MatMul and Add2. The bilinear factor relevances agree as well:
// with eps=0 the composed pass-through and add2 steps reduce to the same
// alpha*R/(2y) seed the fused rule uses.
func TestBaddBmmComposition(t *testing.T) {
	const (
		alpha = 0.3
		beta  = 0.7
	)
	b := cpu.New()
	rng := rand.New(rand.NewSource(12))

	// Positive operands keep every denominator bounded away from zero, so
	// the two propagation paths stay numerically comparable.
	a := randPos(tensor.Shape{2, 10, 16}, rng, b)
	bb := randPos(tensor.Shape{2, 16, 5}, rng, b)
	c := randPos(tensor.Shape{2, 10, 5}, rng, b)
	seed := randn(tensor.Shape{2, 10, 5}, rng, b)

	engFused := lrp.New(b)
	yFused := engFused.BaddBmm(c, a, bb, false, alpha, beta, 0)

	engComp := lrp.New(b)
	prod := engComp.MulScalar(engComp.MatMul(a, bb, false, 0), alpha)
	yComp := engComp.Add2(engComp.MulScalar(c, beta), prod, false, 0)

	requireAllClose(t, yFused, yComp, 1e-4)

	relFused := engFused.Relevance(yFused, seed)
	relComp := engComp.Relevance(yComp, seed)

	requireAllClose(t, relFused[a], relComp[a], 1e-4)
	requireAllClose(t, relFused[bb], relComp[bb], 1e-4)
}

func TestEpsilonRuleGeneric(t *testing.T) {
	const (
		eps   = 1e-9
		alpha = 0.3
		beta  = 0.7
	)
	b := cpu.New()
	ref := newRef(b)
	rng := rand.New(rand.NewSource(13))

	a := randPos(tensor.Shape{2, 10, 16}, rng, b)
	bb := randPos(tensor.Shape{2, 16, 5}, rng, b)
	c := randPos(tensor.Shape{2, 10, 5}, rng, b)
	seed := randn(tensor.Shape{2, 10, 5}, rng, b)

	rule := lrp.EpsilonRule{
		Eps: eps,
		Fn: func(backend tensor.Backend, inputs ...*tensor.RawTensor) *tensor.RawTensor {
			c, a, b := inputs[0], inputs[1], inputs[2]
			return backend.Add(
				backend.MulScalar(c, beta),
				backend.MulScalar(backend.BatchMatMul(a, b), alpha),
			)
		},
	}

	eng := lrp.New(b)
	out := eng.Apply(rule, c, a, bb)

	// Forward matches the fused op.
	y := ref.Add(ref.MulScalar(c, beta), ref.MulScalar(ref.BatchMatMul(a, bb), alpha))
	requireAllClose(t, y, out, 1e-4)

	// R_xi = xi * VJP_i(R/(y+eps)).
	s := ref.Div(seed, ref.AddScalar(y, eps))
	gtC := ref.Mul(c, ref.MulScalar(s, beta))
	gtA := ref.Mul(a, ref.MulScalar(ref.BatchMatMul(s, ref.Transpose(bb, 0, 2, 1)), alpha))
	gtB := ref.Mul(bb, ref.MulScalar(ref.BatchMatMul(ref.Transpose(a, 0, 2, 1), s), alpha))

	rel := eng.Relevance(out, seed)
	requireAllClose(t, gtC, rel[c], 1e-4)
	requireAllClose(t, gtA, rel[a], 1e-4)
	requireAllClose(t, gtB, rel[bb], 1e-4)
}

// For a function that is linear in its single input, the generic epsilon
// rule reduces to the closed-form affine rule.
func TestEpsilonRuleMatchesAffine(t *testing.T) {
	const eps = 1e-9
	b := cpu.New()
	rng := rand.New(rand.NewSource(14))

	x := randn(tensor.Shape{8, 10}, rng, b)
	weight := randn(tensor.Shape{10, 5}, rng, b)
	seed := randn(tensor.Shape{8, 5}, rng, b)

	engGen := lrp.New(b)
	outGen := engGen.Apply(lrp.EpsilonRule{
		Eps: eps,
		Fn: func(backend tensor.Backend, inputs ...*tensor.RawTensor) *tensor.RawTensor {
			return backend.MatMul(inputs[0], weight)
		},
	}, x)
	relGen := engGen.Relevance(outGen, seed)[x]

	engAff := lrp.New(b)
	outAff := engAff.Conv1D(x, weight, nil, eps)
	relAff := engAff.Relevance(outAff, seed)[x]

	requireAllClose(t, outGen, outAff, 1e-5)
	requireAllClose(t, relGen, relAff, 1e-5)
}

// Relevance is conserved through rules whose output absorbs every input
// contribution. Inputs are bounded away from zero so the epsilon shift
// stays negligible.
func TestConservation(t *testing.T) {
	const eps = 1e-9
	b := cpu.New()
	rng := rand.New(rand.NewSource(15))

	t.Run("Add2", func(t *testing.T) {
		a := randPos(tensor.Shape{4, 8}, rng, b)
		c := randPos(tensor.Shape{4, 8}, rng, b)
		seed := randPos(tensor.Shape{4, 8}, rng, b)

		eng := lrp.New(b)
		out := eng.Add2(a, c, false, eps)
		rel := eng.Relevance(out, seed)

		total := sumOf(rel[a]) + sumOf(rel[c])
		require.InDelta(t, sumOf(seed), total, 1e-2)
	})

	t.Run("MatMul", func(t *testing.T) {
		a := randPos(tensor.Shape{2, 6, 8}, rng, b)
		c := randPos(tensor.Shape{2, 8, 4}, rng, b)
		seed := randPos(tensor.Shape{2, 6, 4}, rng, b)

		eng := lrp.New(b)
		out := eng.MatMul(a, c, false, eps)
		rel := eng.Relevance(out, seed)

		total := sumOf(rel[a]) + sumOf(rel[c])
		require.InDelta(t, sumOf(seed), total, 1e-2)
	})

	t.Run("Mean", func(t *testing.T) {
		a := randPos(tensor.Shape{1, 8, 32}, rng, b)
		seed := randPos(tensor.Shape{1, 8, 1}, rng, b)

		eng := lrp.New(b)
		out := eng.Mean(a, -1, true, eps)
		rel := eng.Relevance(out, seed)

		require.InDelta(t, sumOf(seed), sumOf(rel[a]), 1e-2)
	})
}

func TestMulScalarPassthrough(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(16))

	a := randn(tensor.Shape{4, 8}, rng, b)
	seed := randn(tensor.Shape{4, 8}, rng, b)

	eng := lrp.New(b)
	out := eng.MulScalar(a, 3.5)
	rel := eng.Relevance(out, seed)
	requireAllClose(t, seed, rel[a], 0)
}

func TestChainedRules(t *testing.T) {
	const eps = 1e-9
	b := cpu.New()
	rng := rand.New(rand.NewSource(17))

	x := randn(tensor.Shape{4, 10}, rng, b)
	weight := randn(tensor.Shape{6, 10}, rng, b)
	seed := randn(tensor.Shape{4, 6}, rng, b)

	eng := lrp.New(b)
	h := eng.Linear(x, weight, nil, eps)
	out := eng.Softmax(h, -1, false)

	rel := eng.Relevance(out, seed)
	rx, ok := rel[x]
	require.True(t, ok)
	require.Equal(t, x.Shape(), rx.Shape())
	for _, v := range rx.AsFloat32() {
		require.False(t, math.IsNaN(float64(v)))
	}
}

func TestRelevanceSeedShapeMismatch(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(18))

	x := randn(tensor.Shape{4, 8}, rng, b)
	eng := lrp.New(b)
	out := eng.Softmax(x, -1, false)

	require.Panics(t, func() {
		eng.Relevance(out, randn(tensor.Shape{4, 9}, rng, b))
	})
}

func TestAdd2ShapeMismatch(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(19))

	eng := lrp.New(b)
	require.Panics(t, func() {
		eng.Add2(randn(tensor.Shape{4, 8}, rng, b), randn(tensor.Shape{4, 9}, rng, b), false, 1e-9)
	})
}

func TestDoubleBackwardPanics(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(20))

	x := randn(tensor.Shape{4, 8}, rng, b)
	seed := randn(tensor.Shape{4, 8}, rng, b)

	eng := lrp.New(b)
	out := eng.Softmax(x, -1, false)

	eng.Relevance(out, seed)
	require.Panics(t, func() {
		eng.Relevance(out, seed)
	})
}

// A retained input mutated between forward and propagation must fail the
// saved-context version check instead of producing silently wrong relevance.
func TestStaleSavedContextPanics(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(21))

	x := randn(tensor.Shape{4, 8}, rng, b)
	seed := randn(tensor.Shape{4, 8}, rng, b)

	eng := lrp.New(b)
	out := eng.Softmax(x, -1, false)

	x.StoreInplace(randn(tensor.Shape{4, 8}, rng, b))

	require.Panics(t, func() {
		eng.Relevance(out, seed)
	})
}

func TestEngineReset(t *testing.T) {
	b := cpu.New()
	rng := rand.New(rand.NewSource(22))

	x := randn(tensor.Shape{4, 8}, rng, b)
	seed := randn(tensor.Shape{4, 8}, rng, b)

	eng := lrp.New(b)
	eng.Softmax(x, -1, false)
	require.Equal(t, 1, eng.Tape().NumOps())

	eng.Reset()
	require.Equal(t, 0, eng.Tape().NumOps())

	out := eng.Softmax(x, -1, false)
	rel := eng.Relevance(out, seed)
	require.Contains(t, rel, x)
}

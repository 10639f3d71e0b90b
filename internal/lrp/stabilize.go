package lrp

import "github.com/relprop-ml/relprop/internal/tensor"

// stabilize returns y + eps. The epsilon term is purely additive; it shifts
// near-zero denominators away from zero without changing their sign
// structure, matching the AttnLRP epsilon rule.
func stabilize(y *tensor.RawTensor, eps float64, backend tensor.Backend) *tensor.RawTensor {
	if eps == 0 {
		return y
	}
	return backend.AddScalar(y, eps)
}

// safeDiv computes num / (den + eps).
func safeDiv(num, den *tensor.RawTensor, eps float64, backend tensor.Backend) *tensor.RawTensor {
	return backend.Div(num, stabilize(den, eps, backend))
}

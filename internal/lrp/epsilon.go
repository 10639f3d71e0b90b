package lrp

import (
	"github.com/relprop-ml/relprop/internal/autodiff"
	"github.com/relprop-ml/relprop/internal/tensor"
)

// Fn is a tensor function built from backend operations. The backend it
// receives records a gradient tape, so any composition of Backend calls is
// differentiable.
type Fn func(backend tensor.Backend, inputs ...*tensor.RawTensor) *tensor.RawTensor

// EpsilonRule applies the generic epsilon rule to an arbitrary
// differentiable function:
//
//	s    = R_y / (y + eps)
//	R_xi = xi * VJP_i(s)
//
// where VJP_i is the vector-Jacobian product of Fn with respect to input i.
// For linear functions this reduces to the closed-form epsilon rules; for
// nonlinear functions it is the Taylor approximation at the input point.
type EpsilonRule struct {
	Fn  Fn
	Eps float64
}

// Apply runs rule.Fn on a fresh recording backend and records the generic
// epsilon rule for its inputs.
func (e *Engine[B]) Apply(rule EpsilonRule, inputs ...*tensor.RawTensor) *tensor.RawTensor {
	for _, in := range inputs {
		defer in.ForceNonUnique()()
	}

	ad := autodiff.New(e.inner)
	ad.Tape().StartRecording()
	y := rule.Fn(ad, inputs...)
	ad.Tape().StopRecording()

	saved := make([]*savedTensor, 0, len(inputs)+1)
	for _, in := range inputs {
		saved = append(saved, retainTensor(in))
	}
	saved = append(saved, retainTensor(y))

	e.tape.Record(&epsilonRuleOp{
		ctx:    newRuleContext("epsilon_rule", saved...),
		inputs: append([]*tensor.RawTensor(nil), inputs...),
		output: y,
		eps:    rule.Eps,
		grad:   ad,
	})
	return y
}

// epsilonRuleOp holds the inner tape recorded during Apply and replays it
// backwards at propagation time.
type epsilonRuleOp struct {
	ctx    *ruleContext // [inputs..., y]
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	eps    float64
	grad   autodiff.BackwardCapable
}

func (r *epsilonRuleOp) Backward(outputRel *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	n := len(r.inputs)
	y := r.ctx.get(n)

	s := safeDiv(outputRel, y, r.eps, backend)
	grads := r.grad.GetTape().BackwardFrom(r.output, s, r.grad)

	rels := make([]*tensor.RawTensor, n)
	for i, in := range r.inputs {
		g, ok := grads[in]
		if !ok {
			continue
		}
		rels[i] = backend.Mul(r.ctx.get(i), g)
	}

	r.ctx.release()
	return rels
}

func (r *epsilonRuleOp) Inputs() []*tensor.RawTensor {
	return r.inputs
}

func (r *epsilonRuleOp) Output() *tensor.RawTensor {
	return r.output
}

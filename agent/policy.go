package agent

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// PolicyNetwork maps observations to a categorical distribution over
// admission actions via a softmax head.
type PolicyNetwork struct {
	net *MLP
}

// NewPolicyNetwork builds a policy network for the fixed observation
// and action widths.
func NewPolicyNetwork(cfg NetworkConfig, rng *rand.Rand) *PolicyNetwork {
	sizes := append([]int{ObservationDim}, cfg.HiddenSizes...)
	sizes = append(sizes, NumActions)
	return &PolicyNetwork{net: NewMLP(sizes, cfg.Dropout, rng)}
}

// Net exposes the underlying MLP for the optimizer and checkpointing.
func (p *PolicyNetwork) Net() *MLP { return p.net }

// Probs returns the action distribution for an observation using the
// pure inference path: deterministic, no dropout, concurrency-safe
// against frozen parameters.
func (p *PolicyNetwork) Probs(obs Observation) []float64 {
	return softmax(p.net.Infer(obs))
}

// ProbsTraining runs the caching training-mode forward pass and returns
// the distribution. Only the optimizer calls this.
func (p *PolicyNetwork) ProbsTraining(obs Observation) []float64 {
	return softmax(p.net.Forward(obs))
}

// Sample draws an action from the distribution (exploration during
// rollout collection) and returns its log-probability and the full
// distribution.
func (p *PolicyNetwork) Sample(obs Observation, rng *rand.Rand) (Action, float64, []float64) {
	probs := p.Probs(obs)
	u := rng.Float64()
	var cum float64
	action := Action(NumActions - 1)
	for i, pr := range probs {
		cum += pr
		if u < cum {
			action = Action(i)
			break
		}
	}
	return action, math.Log(probs[action] + 1e-12), probs
}

// Greedy returns the arg-max action and the full distribution.
func (p *PolicyNetwork) Greedy(obs Observation) (Action, []float64) {
	probs := p.Probs(obs)
	return Action(floats.MaxIdx(probs)), probs
}

// Clone returns an independent frozen copy in inference mode.
func (p *PolicyNetwork) Clone() *PolicyNetwork {
	return &PolicyNetwork{net: p.net.Clone()}
}

// ValueNetwork maps observations to a scalar state-value estimate.
type ValueNetwork struct {
	net *MLP
}

// NewValueNetwork builds a value network for the fixed observation width.
func NewValueNetwork(cfg NetworkConfig, rng *rand.Rand) *ValueNetwork {
	sizes := append([]int{ObservationDim}, cfg.HiddenSizes...)
	sizes = append(sizes, 1)
	return &ValueNetwork{net: NewMLP(sizes, cfg.Dropout, rng)}
}

// Net exposes the underlying MLP for the optimizer and checkpointing.
func (v *ValueNetwork) Net() *MLP { return v.net }

// Value returns the state-value estimate via the pure inference path.
func (v *ValueNetwork) Value(obs Observation) float64 {
	return v.net.Infer(obs)[0]
}

// ValueTraining runs the caching training-mode forward pass.
func (v *ValueNetwork) ValueTraining(obs Observation) float64 {
	return v.net.Forward(obs)[0]
}

// Clone returns an independent frozen copy in inference mode.
func (v *ValueNetwork) Clone() *ValueNetwork {
	return &ValueNetwork{net: v.net.Clone()}
}

// softmax converts logits to a probability simplex. Max-subtraction
// keeps the exponentials bounded.
func softmax(logits []float64) []float64 {
	probs := make([]float64, len(logits))
	maxLogit := floats.Max(logits)
	var sum float64
	for i, z := range logits {
		probs[i] = math.Exp(z - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// entropy returns the categorical entropy of a distribution.
func entropy(probs []float64) float64 {
	var h float64
	for _, p := range probs {
		if p > 0 {
			h -= p * math.Log(p)
		}
	}
	return h
}

package agent

import (
	"gonum.org/v1/gonum/stat"
)

// advantageEps floors the standard deviation during advantage
// normalization so a degenerate batch never divides by ~zero.
const advantageEps = 1e-8

// ComputeGAE converts a completed rollout into per-step advantage and
// return targets via generalized advantage estimation, scanning each
// episode in reverse time order:
//
//	delta_t     = r_t + gamma*V(s_{t+1})*(1-done_t) - V(s_t)
//	advantage_t = delta_t + gamma*lambda*advantage_{t+1}*(1-done_t)
//	return_t    = advantage_t + V(s_t)
//
// The done flag zeroes both bootstrap terms, so episodes sharing the
// buffer never leak value estimates into each other. For this domain's
// single-decision episodes every step is terminal and the advantage
// reduces exactly to r_t - V(s_t).
func ComputeGAE(r *Rollout, gamma, lambda float64) (advantages, returns []float64) {
	n := r.Len()
	advantages = make([]float64, n)
	returns = make([]float64, n)
	var nextValue, nextAdvantage float64
	for t := n - 1; t >= 0; t-- {
		nonterminal := 1.0
		if r.Dones[t] {
			nonterminal = 0
		}
		delta := r.Rewards[t] + gamma*nextValue*nonterminal - r.Values[t]
		advantages[t] = delta + gamma*lambda*nextAdvantage*nonterminal
		returns[t] = advantages[t] + r.Values[t]
		nextValue = r.Values[t]
		nextAdvantage = advantages[t]
	}
	return advantages, returns
}

// NormalizeAdvantages standardizes advantages to zero mean and unit
// variance across the batch, in place. The epsilon floor guards the
// division when the batch is (near-)constant.
func NormalizeAdvantages(advantages []float64) {
	if len(advantages) < 2 {
		return
	}
	mean := stat.Mean(advantages, nil)
	std := stat.StdDev(advantages, nil)
	for i := range advantages {
		advantages[i] = (advantages[i] - mean) / (std + advantageEps)
	}
}

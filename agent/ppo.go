package agent

import (
	"math"
	"math/rand"

	"github.com/sirupsen/logrus"
)

// PPOConfig groups the optimization hyperparameters.
type PPOConfig struct {
	Gamma         float64 `yaml:"gamma"`
	Lambda        float64 `yaml:"lambda"`
	ClipEpsilon   float64 `yaml:"clip_epsilon"`
	LearningRate  float64 `yaml:"learning_rate"`
	Epochs        int     `yaml:"epochs"`
	MinibatchSize int     `yaml:"minibatch_size"`
	ValueCoef     float64 `yaml:"value_coef"`
	EntropyCoef   float64 `yaml:"entropy_coef"`
	MaxGradNorm   float64 `yaml:"max_grad_norm"`
}

// DefaultPPOConfig returns the standard hyperparameters.
func DefaultPPOConfig() PPOConfig {
	return PPOConfig{
		Gamma:         0.99,
		Lambda:        0.95,
		ClipEpsilon:   0.2,
		LearningRate:  3e-4,
		Epochs:        4,
		MinibatchSize: 64,
		ValueCoef:     0.5,
		EntropyCoef:   0.01,
		MaxGradNorm:   0.5,
	}
}

// UpdateMetrics reports one PPO update so staleness or divergence can be
// detected externally.
type UpdateMetrics struct {
	PolicyLoss         float64 `json:"policy_loss"`
	ValueLoss          float64 `json:"value_loss"`
	Entropy            float64 `json:"entropy"`
	ClipFraction       float64 `json:"clip_fraction"`
	ApproxKL           float64 `json:"approx_kl"`
	SkippedMinibatches int     `json:"skipped_minibatches"`
	Minibatches        int     `json:"minibatches"`
}

// PPO runs clipped-surrogate policy optimization over one rollout. The
// policy and value networks each have their own Adam state; gradients
// are computed manually against the softmax head.
type PPO struct {
	policy *PolicyNetwork
	value  *ValueNetwork

	policyOpt *Adam
	valueOpt  *Adam

	cfg PPOConfig
	rng *rand.Rand // minibatch shuffling
}

// NewPPO creates the optimizer bound to the given networks.
func NewPPO(policy *PolicyNetwork, value *ValueNetwork, cfg PPOConfig, rng *rand.Rand) *PPO {
	return &PPO{
		policy:    policy,
		value:     value,
		policyOpt: NewAdam(policy.Net(), cfg.LearningRate),
		valueOpt:  NewAdam(value.Net(), cfg.LearningRate),
		cfg:       cfg,
		rng:       rng,
	}
}

// Update runs K epochs of minibatch gradient steps on the clipped
// surrogate objective plus value and entropy terms:
//
//	total = -L_clip + c1*valueLoss - c2*entropy
//
// The value loss is plain (unclipped) MSE against the return targets.
// A minibatch whose loss or gradients go non-finite is skipped and
// logged rather than applied: corrupting parameters is worse than one
// missed update.
func (o *PPO) Update(r *Rollout, advantages, returns []float64) UpdateMetrics {
	n := r.Len()
	metrics := UpdateMetrics{}
	if n == 0 {
		return metrics
	}

	o.policy.Net().SetTraining(true)
	o.value.Net().SetTraining(true)
	defer o.policy.Net().SetTraining(false)
	defer o.value.Net().SetTraining(false)

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}

	batchSize := o.cfg.MinibatchSize
	if batchSize <= 0 || batchSize > n {
		batchSize = n
	}

	var sampleCount int
	var clipped int
	for epoch := 0; epoch < o.cfg.Epochs; epoch++ {
		o.rng.Shuffle(n, func(i, j int) { indices[i], indices[j] = indices[j], indices[i] })
		for start := 0; start < n; start += batchSize {
			end := start + batchSize
			if end > n {
				end = n
			}
			batch := indices[start:end]
			stats, ok := o.minibatchStep(r, advantages, returns, batch)
			metrics.Minibatches++
			if !ok {
				metrics.SkippedMinibatches++
				logrus.WithFields(logrus.Fields{
					"epoch":     epoch,
					"minibatch": metrics.Minibatches,
				}).Warn("numerical instability: skipping minibatch update")
				continue
			}
			metrics.PolicyLoss += stats.policyLoss
			metrics.ValueLoss += stats.valueLoss
			metrics.Entropy += stats.entropy
			metrics.ApproxKL += stats.approxKL
			clipped += stats.clipped
			sampleCount += len(batch)
		}
	}

	applied := metrics.Minibatches - metrics.SkippedMinibatches
	if applied > 0 {
		metrics.PolicyLoss /= float64(applied)
		metrics.ValueLoss /= float64(applied)
		metrics.Entropy /= float64(applied)
		metrics.ApproxKL /= float64(applied)
	}
	if sampleCount > 0 {
		metrics.ClipFraction = float64(clipped) / float64(sampleCount)
	}
	return metrics
}

type minibatchStats struct {
	policyLoss float64
	valueLoss  float64
	entropy    float64
	approxKL   float64
	clipped    int
}

// minibatchStep accumulates gradients for one minibatch and applies the
// Adam updates. Returns ok=false (without stepping) when any loss term
// or gradient is non-finite.
func (o *PPO) minibatchStep(r *Rollout, advantages, returns []float64, batch []int) (minibatchStats, bool) {
	var stats minibatchStats
	o.policy.Net().ZeroGrad()
	o.value.Net().ZeroGrad()

	eps := o.cfg.ClipEpsilon
	scale := 1.0 / float64(len(batch))

	for _, i := range batch {
		obs := r.Observations[i]
		action := int(r.Actions[i])
		adv := advantages[i]

		probs := o.policy.ProbsTraining(obs)
		newLogProb := math.Log(probs[action] + 1e-12)
		ratio := math.Exp(newLogProb - r.LogProbs[i])

		surr1 := ratio * adv
		surr2 := clampFloat(ratio, 1-eps, 1+eps) * adv
		objective := math.Min(surr1, surr2)
		h := entropy(probs)

		stats.policyLoss += (-objective - o.cfg.EntropyCoef*h) * scale
		stats.entropy += h * scale
		stats.approxKL += (r.LogProbs[i] - newLogProb) * scale
		if math.Abs(ratio-1) > eps {
			stats.clipped++
		}

		// d(objective)/d(newLogProb): the clipped branch is flat, so the
		// gradient flows only while the unclipped surrogate is active.
		var dObj float64
		if surr1 <= surr2 {
			dObj = ratio * adv
		}

		dlogits := make([]float64, NumActions)
		for j := range dlogits {
			indicator := 0.0
			if j == action {
				indicator = 1.0
			}
			dLogProb := indicator - probs[j]
			dEntropy := -probs[j] * (math.Log(probs[j]+1e-12) + h)
			dlogits[j] = -dObj*dLogProb - o.cfg.EntropyCoef*dEntropy
		}
		o.policy.Net().Backward(dlogits, scale)

		v := o.value.ValueTraining(obs)
		diff := v - returns[i]
		stats.valueLoss += diff * diff * scale
		o.value.Net().Backward([]float64{o.cfg.ValueCoef * 2 * diff}, scale)
	}

	if !isFinite(stats.policyLoss) || !isFinite(stats.valueLoss) ||
		!o.policy.Net().GradsFinite() || !o.value.Net().GradsFinite() {
		return stats, false
	}

	o.policy.Net().ClipGradNorm(o.cfg.MaxGradNorm)
	o.value.Net().ClipGradNorm(o.cfg.MaxGradNorm)
	o.policyOpt.Step()
	o.valueOpt.Step()
	return stats, true
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

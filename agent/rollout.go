package agent

import (
	"context"
	"math/rand"
	"sync"
)

// Rollout holds the on-policy trajectories for one training iteration:
// per step the observation, sampled action, its log-probability under
// the collecting policy, the value estimate at collection time, the
// reward, and the terminal flag. The buffer is rebuilt every outer
// iteration and never reused once parameters change.
type Rollout struct {
	Observations []Observation
	Actions      []Action
	LogProbs     []float64
	Values       []float64
	Rewards      []float64
	Dones        []bool
}

// Len returns the number of recorded steps.
func (r *Rollout) Len() int { return len(r.Actions) }

func (r *Rollout) record(obs Observation, action Action, logProb, value, reward float64, done bool) {
	r.Observations = append(r.Observations, obs)
	r.Actions = append(r.Actions, action)
	r.LogProbs = append(r.LogProbs, logProb)
	r.Values = append(r.Values, value)
	r.Rewards = append(r.Rewards, reward)
	r.Dones = append(r.Dones, done)
}

func (r *Rollout) merge(other *Rollout) {
	r.Observations = append(r.Observations, other.Observations...)
	r.Actions = append(r.Actions, other.Actions...)
	r.LogProbs = append(r.LogProbs, other.LogProbs...)
	r.Values = append(r.Values, other.Values...)
	r.Rewards = append(r.Rewards, other.Rewards...)
	r.Dones = append(r.Dones, other.Dones...)
}

// CollectStats summarizes one collection pass.
type CollectStats struct {
	Episodes       int
	MeanReward     float64
	OptimalMatches int // decisions matching the risk-derived optimal action
	PatientsSeen   int
}

// Accuracy returns the fraction of decisions matching the risk-derived
// optimal action.
func (s CollectStats) Accuracy() float64 {
	if s.PatientsSeen == 0 {
		return 0
	}
	return float64(s.OptimalMatches) / float64(s.PatientsSeen)
}

// Collector gathers rollouts across parallel environment instances.
// Each worker owns an independent environment and RNG streams; results
// merge behind a barrier before advantage estimation. The policy and
// value networks are read through their pure inference path, so their
// parameters stay frozen for the whole pass. That frozen snapshot is
// the "old policy" of the PPO ratio.
type Collector struct {
	norm    *Normalizer
	envCfg  EnvConfig
	sampler PatientSampler
	rng     *PartitionedRNG
	workers int
}

// NewCollector creates a Collector with the given parallelism. A nil
// sampler falls back to synthetic patients.
func NewCollector(norm *Normalizer, envCfg EnvConfig, sampler PatientSampler, rng *PartitionedRNG, workers int) *Collector {
	if workers < 1 {
		workers = 1
	}
	return &Collector{norm: norm, envCfg: envCfg, sampler: sampler, rng: rng, workers: workers}
}

// Collect runs nEpisodes single-decision episodes and returns the merged
// rollout. Cancellation is honored between episodes; a partially
// collected rollout is returned with ctx.Err.
func (c *Collector) Collect(ctx context.Context, policy *PolicyNetwork, value *ValueNetwork, nEpisodes int) (*Rollout, CollectStats, error) {
	workers := c.workers
	if workers > nEpisodes {
		workers = nEpisodes
	}

	type result struct {
		rollout *Rollout
		stats   CollectStats
	}
	results := make([]result, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		share := nEpisodes / workers
		if w < nEpisodes%workers {
			share++
		}
		// Derive the stream here: ForWorker writes the shared stream map,
		// which is not safe from inside the goroutines.
		workerRNG := c.rng.ForWorker(w)
		wg.Add(1)
		go func(w, share int, workerRNG *rand.Rand) {
			defer wg.Done()
			env := NewEnvironment(c.norm, c.envCfg, c.sampler, workerRNG)
			local := &Rollout{}
			stats := CollectStats{}
			for ep := 0; ep < share; ep++ {
				if ctx.Err() != nil {
					break
				}
				obs := env.ResetSampled()
				action, logProb, _ := policy.Sample(obs, workerRNG)
				v := value.Value(obs)
				reward, done, info := env.Step(action)
				local.record(obs, action, logProb, v, reward, done)
				stats.Episodes++
				stats.PatientsSeen++
				stats.MeanReward += reward
				if info.Action == info.OptimalAction {
					stats.OptimalMatches++
				}
			}
			results[w] = result{rollout: local, stats: stats}
		}(w, share, workerRNG)
	}
	wg.Wait()

	merged := &Rollout{}
	total := CollectStats{}
	for _, r := range results {
		merged.merge(r.rollout)
		total.Episodes += r.stats.Episodes
		total.PatientsSeen += r.stats.PatientsSeen
		total.OptimalMatches += r.stats.OptimalMatches
		total.MeanReward += r.stats.MeanReward
	}
	if total.Episodes > 0 {
		total.MeanReward /= float64(total.Episodes)
	}
	return merged, total, ctx.Err()
}

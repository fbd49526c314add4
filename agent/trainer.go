package agent

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrTrainingInProgress is returned when Run is called while another
// training run is active on the same trainer.
var ErrTrainingInProgress = errors.New("training already in progress")

// rollingDecay weights the exponential rolling averages of reward and
// accuracy exposed by Status.
const rollingDecay = 0.9

// TrainingStatus is a read-only snapshot of training progress for the
// metrics endpoint.
type TrainingStatus struct {
	Iteration         int           `json:"iteration"`
	Training          bool          `json:"training"`
	MeanReward        float64       `json:"mean_reward"`
	RollingReward     float64       `json:"rolling_mean_reward"`
	RollingAccuracy   float64       `json:"rolling_accuracy"`
	PatientsProcessed int           `json:"patients_processed"`
	BestReward        float64       `json:"best_reward"`
	LastUpdate        UpdateMetrics `json:"last_update"`
}

// TrainResult reports a completed (or cancelled) training run.
type TrainResult struct {
	IterationsCompleted int     `json:"epochs_completed"`
	FinalReward         float64 `json:"final_reward"`
}

// Trainer owns the sequential training loop: collect rollout, compute
// advantages, run the PPO update, checkpoint, repeat. It is an
// explicitly constructed object passed by reference; all mutable
// training state lives here, none of it package-global.
type Trainer struct {
	cfg       Config
	rng       *PartitionedRNG
	norm      *Normalizer
	policy    *PolicyNetwork
	value     *ValueNetwork
	ppo       *PPO
	collector *Collector
	store     *CheckpointStore
	predictor *Predictor

	mu         sync.Mutex
	status     TrainingStatus
	bestReward float64
	running    bool
}

// NewTrainer constructs a trainer with freshly initialized networks.
// store may be nil (no persistence) and predictor may be nil (no
// serving handoff); both are optional collaborators.
func NewTrainer(cfg Config, store *CheckpointStore, predictor *Predictor, sampler PatientSampler) *Trainer {
	rng := NewPartitionedRNG(cfg.Seed)
	norm := NewNormalizer(DefaultNormalizationParams())
	policy := NewPolicyNetwork(cfg.Network, rng.ForSubsystem(SubsystemInit))
	value := NewValueNetwork(cfg.Network, rng.ForSubsystem(SubsystemInit))
	// dropout masks draw from their own stream so exploration sampling
	// stays reproducible regardless of dropout configuration
	policy.Net().rng = rng.ForSubsystem(SubsystemDropout)
	value.Net().rng = rng.ForSubsystem(SubsystemDropout)

	return &Trainer{
		cfg:        cfg,
		rng:        rng,
		norm:       norm,
		policy:     policy,
		value:      value,
		ppo:        NewPPO(policy, value, cfg.PPO, rng.ForSubsystem(SubsystemShuffle)),
		collector:  NewCollector(norm, cfg.Env, sampler, rng, cfg.Training.Workers),
		store:      store,
		predictor:  predictor,
		bestReward: math.Inf(-1),
	}
}

// Run executes the given number of outer training iterations. It is
// cancellable between iterations: on cancellation the last saved
// checkpoint is intact and the partial result is returned along with
// the context error.
func (t *Trainer) Run(ctx context.Context, iterations int) (TrainResult, error) {
	t.mu.Lock()
	if t.running {
		t.mu.Unlock()
		return TrainResult{}, ErrTrainingInProgress
	}
	t.running = true
	t.status.Training = true
	startIteration := t.status.Iteration
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.running = false
		t.status.Training = false
		t.mu.Unlock()
	}()

	// initial checkpoint so a load is possible before the first
	// iteration completes
	if t.store != nil && startIteration == 0 && !t.store.Exists(TagLatest) {
		if _, err := t.saveCheckpoint(TagLatest); err != nil {
			return TrainResult{}, err
		}
	}

	var result TrainResult
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		rollout, stats, err := t.collector.Collect(ctx, t.policy, t.value, t.cfg.Training.EpisodesPerIteration)
		if err != nil {
			return result, err
		}

		advantages, returns := ComputeGAE(rollout, t.cfg.PPO.Gamma, t.cfg.PPO.Lambda)
		NormalizeAdvantages(advantages)
		update := t.ppo.Update(rollout, advantages, returns)

		t.mu.Lock()
		t.status.Iteration++
		iteration := t.status.Iteration
		t.status.MeanReward = stats.MeanReward
		if iteration == 1 {
			t.status.RollingReward = stats.MeanReward
			t.status.RollingAccuracy = stats.Accuracy()
		} else {
			t.status.RollingReward = rollingDecay*t.status.RollingReward + (1-rollingDecay)*stats.MeanReward
			t.status.RollingAccuracy = rollingDecay*t.status.RollingAccuracy + (1-rollingDecay)*stats.Accuracy()
		}
		t.status.PatientsProcessed += stats.PatientsSeen
		t.status.LastUpdate = update
		improved := stats.MeanReward > t.bestReward
		if improved {
			t.bestReward = stats.MeanReward
			t.status.BestReward = t.bestReward
		}
		t.mu.Unlock()

		logrus.WithFields(logrus.Fields{
			"iteration":     iteration,
			"mean_reward":   stats.MeanReward,
			"accuracy":      stats.Accuracy(),
			"entropy":       update.Entropy,
			"clip_fraction": update.ClipFraction,
			"approx_kl":     update.ApproxKL,
			"skipped":       update.SkippedMinibatches,
		}).Info("training iteration complete")

		result.IterationsCompleted = i + 1
		result.FinalReward = stats.MeanReward

		if t.store != nil {
			if improved {
				if _, err := t.saveCheckpoint(TagBest); err != nil {
					return result, err
				}
			}
			if t.cfg.Training.SaveInterval > 0 && iteration%t.cfg.Training.SaveInterval == 0 {
				if _, err := t.saveCheckpoint(TagLatest); err != nil {
					return result, err
				}
				// periodic history snapshot, never overwritten
				if _, err := t.saveCheckpoint(TagIteration(iteration)); err != nil {
					return result, err
				}
			}
		}
	}

	var checkpointID string
	if t.store != nil {
		id, err := t.saveCheckpoint(TagLatest)
		if err != nil {
			return result, err
		}
		checkpointID = id
	}
	if t.predictor != nil {
		t.predictor.Publish(t.policy, t.value, t.norm, t.statusIteration(), checkpointID)
	}
	return result, nil
}

// Status returns a consistent snapshot of training progress.
func (t *Trainer) Status() TrainingStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Policy exposes the live policy network (tests and evaluation only;
// serving goes through the predictor's frozen snapshots).
func (t *Trainer) Policy() *PolicyNetwork { return t.policy }

// Normalizer returns the trainer's normalization parameters holder.
func (t *Trainer) Normalizer() *Normalizer { return t.norm }

func (t *Trainer) statusIteration() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status.Iteration
}

func (t *Trainer) saveCheckpoint(tag string) (string, error) {
	t.mu.Lock()
	cp := &Checkpoint{
		TrainStep:     t.status.Iteration,
		BestReward:    t.status.BestReward,
		Normalization: t.norm.Params,
		Policy:        t.policy.Net().Params(),
		Value:         t.value.Net().Params(),
	}
	t.mu.Unlock()
	return t.store.Save(cp, tag)
}

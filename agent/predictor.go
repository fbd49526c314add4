package agent

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Prediction is the full serving payload for one patient: the greedy
// action, the complete probability vector so the caller can assess
// confidence, the state-value estimate, and deterministic reasoning
// text derived from the same risk decomposition the reward uses.
type Prediction struct {
	Action        int                `json:"action"`
	ActionName    string             `json:"action_name"`
	Probabilities map[string]float64 `json:"action_probabilities"`
	Confidence    float64            `json:"confidence"`
	StateValue    float64            `json:"state_value"`
	RiskScore     float64            `json:"risk_score"`
	Reasoning     string             `json:"reasoning"`
}

// modelSnapshot is one consistent, immutable parameter set. Predictions
// read whichever snapshot was current when they started; a reload swaps
// the pointer so in-flight requests never see half-updated weights.
type modelSnapshot struct {
	policy       *PolicyNetwork
	value        *ValueNetwork
	norm         *Normalizer
	trainStep    int
	checkpointID string
}

// Predictor answers single-observation prediction requests against a
// loaded checkpoint. The read path is lock-free: concurrent predictions
// share one immutable snapshot.
type Predictor struct {
	current atomic.Pointer[modelSnapshot]
}

// NewPredictor creates an empty predictor; predictions fail with
// *ModelNotLoadedError until a checkpoint is loaded or published.
func NewPredictor() *Predictor {
	return &Predictor{}
}

// LoadCheckpoint builds networks from the checkpoint and atomically
// swaps them in, together with the exact normalization parameters the
// checkpoint was trained with.
func (p *Predictor) LoadCheckpoint(cp *Checkpoint, cfg NetworkConfig, rng *PartitionedRNG) error {
	policy, value, err := RestoreNetworks(cp, cfg, rng)
	if err != nil {
		return err
	}
	p.current.Store(&modelSnapshot{
		policy:       policy,
		value:        value,
		norm:         NewNormalizer(cp.Normalization),
		trainStep:    cp.TrainStep,
		checkpointID: cp.ID,
	})
	logrus.WithFields(logrus.Fields{"checkpoint": cp.ID, "step": cp.TrainStep}).Info("model loaded")
	return nil
}

// Publish swaps in cloned copies of live training networks, so serving
// continues against a consistent frozen snapshot while training mutates
// the originals.
func (p *Predictor) Publish(policy *PolicyNetwork, value *ValueNetwork, norm *Normalizer, trainStep int, checkpointID string) {
	p.current.Store(&modelSnapshot{
		policy:       policy.Clone(),
		value:        value.Clone(),
		norm:         norm,
		trainStep:    trainStep,
		checkpointID: checkpointID,
	})
}

// Loaded reports whether a model is available.
func (p *Predictor) Loaded() bool { return p.current.Load() != nil }

// TrainStep returns the loaded snapshot's training step, or -1 when no
// model is loaded.
func (p *Predictor) TrainStep() int {
	snap := p.current.Load()
	if snap == nil {
		return -1
	}
	return snap.trainStep
}

// Predict normalizes the record and runs the deterministic inference
// path: greedy arg-max action, full probability map, confidence as the
// chosen action's mass, and reasoning from the risk decomposition.
// Fails with *ModelNotLoadedError when no checkpoint is loaded and
// propagates *InvalidRecordError from the normalizer rather than
// producing a silent default prediction.
func (p *Predictor) Predict(rec PatientRecord) (*Prediction, error) {
	snap := p.current.Load()
	if snap == nil {
		return nil, &ModelNotLoadedError{}
	}
	obs, err := snap.norm.Observe(rec)
	if err != nil {
		return nil, err
	}

	action, probs := snap.policy.Greedy(obs)
	stateValue := snap.value.Value(obs)
	risk := AssessRisk(rec)

	probMap := make(map[string]float64, NumActions)
	for i, name := range ActionNames() {
		probMap[name] = probs[i]
	}
	return &Prediction{
		Action:        int(action),
		ActionName:    action.Name(),
		Probabilities: probMap,
		Confidence:    probs[action],
		StateValue:    stateValue,
		RiskScore:     risk.Total,
		Reasoning:     risk.Reasoning(action),
	}, nil
}

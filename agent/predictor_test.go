package agent

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoadedPredictor(t *testing.T) *Predictor {
	t.Helper()
	rng := NewPartitionedRNG(31)
	cfg := DefaultNetworkConfig()
	policy := NewPolicyNetwork(cfg, rng.ForSubsystem(SubsystemInit))
	value := NewValueNetwork(cfg, rng.ForSubsystem(SubsystemInit))
	p := NewPredictor()
	p.Publish(policy, value, NewNormalizer(DefaultNormalizationParams()), 3, "test-checkpoint")
	return p
}

func TestPredictor_NotLoaded(t *testing.T) {
	p := NewPredictor()
	assert.False(t, p.Loaded())
	assert.Equal(t, -1, p.TrainStep())

	_, err := p.Predict(PatientRecord{Age: 40})
	var notLoaded *ModelNotLoadedError
	require.ErrorAs(t, err, &notLoaded)
}

func TestPredictor_PredictReturnsCompletePayload(t *testing.T) {
	p := newLoadedPredictor(t)
	pred, err := p.Predict(PatientRecord{
		Age: 80, HeartRate: 112, SysBP: 139, SpO2: 96.5,
		AdmissionType: AdmissionEmergency, Gender: GenderMale,
	})
	require.NoError(t, err)

	assert.Contains(t, ActionNames(), pred.ActionName)
	assert.Equal(t, pred.ActionName, Action(pred.Action).Name())
	require.Len(t, pred.Probabilities, NumActions)
	var sum float64
	for _, v := range pred.Probabilities {
		assert.GreaterOrEqual(t, v, 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)
	assert.InDelta(t, pred.Probabilities[pred.ActionName], pred.Confidence, 1e-12)
	assert.Equal(t, 4.0, pred.RiskScore)
	assert.NotEmpty(t, pred.Reasoning)
}

func TestPredictor_PredictIsDeterministic(t *testing.T) {
	p := newLoadedPredictor(t)
	rec := PatientRecord{Age: 55, HeartRate: 95, SysBP: 135, SpO2: 97, AdmissionType: AdmissionUrgent, Gender: GenderFemale}

	a, err := p.Predict(rec)
	require.NoError(t, err)
	b, err := p.Predict(rec)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same checkpoint + same input must be bit-identical")
}

func TestPredictor_MissingGenderStillServes(t *testing.T) {
	p := newLoadedPredictor(t)
	pred, err := p.Predict(PatientRecord{Age: 45, HeartRate: 85, AdmissionType: AdmissionElective})
	require.NoError(t, err)
	assert.NotEmpty(t, pred.ActionName)
}

func TestPredictor_InvalidRecordPropagates(t *testing.T) {
	p := newLoadedPredictor(t)
	_, err := p.Predict(PatientRecord{Gender: "unknown"})
	var invalid *InvalidRecordError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "gender", invalid.Field)
}

func TestPredictor_ConcurrentPredictionsShareOneSnapshot(t *testing.T) {
	p := newLoadedPredictor(t)
	rec := PatientRecord{Age: 62, HeartRate: 101, SysBP: 148, SpO2: 94, AdmissionType: AdmissionEmergency}

	want, err := p.Predict(rec)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Prediction, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got, err := p.Predict(rec)
			if err == nil {
				results[i] = got
			}
		}(i)
	}
	wg.Wait()
	for i, got := range results {
		require.NotNil(t, got, "goroutine %d failed", i)
		assert.Equal(t, want, got)
	}
}

func TestPredictor_LoadCheckpointRejectsShapeMismatch(t *testing.T) {
	cp, _, _ := newTestCheckpoint(t, NetworkConfig{HiddenSizes: []int{64, 64}, Dropout: 0.1})
	p := NewPredictor()
	err := p.LoadCheckpoint(cp, NetworkConfig{HiddenSizes: []int{8}, Dropout: 0}, NewPartitionedRNG(1))

	var corrupt *CheckpointCorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.False(t, p.Loaded(), "failed load must not partially install a model")
}

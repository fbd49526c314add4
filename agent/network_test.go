package agent

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomObservation(rng *rand.Rand) Observation {
	obs := make(Observation, ObservationDim)
	for i := range obs {
		obs[i] = rng.Float64()
	}
	return obs
}

func TestPolicyNetwork_ProbsFormValidDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	policy := NewPolicyNetwork(DefaultNetworkConfig(), rng)

	for i := 0; i < 100; i++ {
		probs := policy.Probs(randomObservation(rng))
		require.Len(t, probs, NumActions)
		var sum float64
		for _, p := range probs {
			assert.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-6)
	}
}

func TestPolicyNetwork_InferenceIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	policy := NewPolicyNetwork(DefaultNetworkConfig(), rng)
	obs := randomObservation(rng)

	a := policy.Probs(obs)
	b := policy.Probs(obs)
	assert.Equal(t, a, b, "inference path must have no active stochastic layers")
}

func TestMLP_DropoutOnlyInTrainingMode(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	net := NewMLP([]int{ObservationDim, 64, 64, NumActions}, 0.5, rng)
	obs := randomObservation(rng)

	// Training-mode forward passes differ because of dropout masks.
	net.SetTraining(true)
	a := net.Forward(obs)
	b := net.Forward(obs)
	assert.NotEqual(t, a, b, "dropout should perturb training-mode passes")

	// Inference stays bit-identical.
	net.SetTraining(false)
	x := net.Infer(obs)
	y := net.Infer(obs)
	assert.Equal(t, x, y)
}

func TestMLP_SetParams_RejectsShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	src := NewMLP([]int{ObservationDim, 64, 64, NumActions}, 0, rng)
	dst := NewMLP([]int{ObservationDim, 32, 32, NumActions}, 0, rng)

	err := dst.SetParams(src.Params())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape mismatch")
}

func TestMLP_ParamsRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	src := NewMLP([]int{ObservationDim, 16, 16, NumActions}, 0, rng)
	dst := NewMLP([]int{ObservationDim, 16, 16, NumActions}, 0, rng)
	require.NoError(t, dst.SetParams(src.Params()))

	obs := randomObservation(rng)
	assert.Equal(t, src.Infer(obs), dst.Infer(obs))
}

func TestMLP_CloneIsIndependent(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	net := NewMLP([]int{ObservationDim, 16, NumActions}, 0, rng)
	clone := net.Clone()
	obs := randomObservation(rng)
	before := clone.Infer(obs)

	// Mutate the original through a gradient step.
	net.Forward(obs)
	net.Backward([]float64{1, -1, 1, -1}, 1)
	NewAdam(net, 0.1).Step()

	assert.Equal(t, before, clone.Infer(obs), "clone must not share parameters")
	assert.NotEqual(t, before, net.Infer(obs), "original should have moved")
}

func TestValueNetwork_GradientDescentReducesError(t *testing.T) {
	// Regression smoke test for the manual backprop: fit a single
	// observation toward a fixed target.
	rng := rand.New(rand.NewSource(7))
	value := NewValueNetwork(NetworkConfig{HiddenSizes: []int{16, 16}, Dropout: 0}, rng)
	opt := NewAdam(value.Net(), 1e-2)
	obs := randomObservation(rng)
	target := 10.0

	initial := math.Abs(value.Value(obs) - target)
	for i := 0; i < 200; i++ {
		v := value.ValueTraining(obs)
		value.Net().ZeroGrad()
		value.Net().Backward([]float64{2 * (v - target)}, 1)
		opt.Step()
	}
	final := math.Abs(value.Value(obs) - target)
	assert.Less(t, final, initial/10, "200 Adam steps should shrink the error by >10x")
}

func TestPolicyNetwork_SampleRespectsDistribution(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	policy := NewPolicyNetwork(DefaultNetworkConfig(), rng)
	obs := randomObservation(rng)
	probs := policy.Probs(obs)

	counts := make([]int, NumActions)
	const draws = 20000
	for i := 0; i < draws; i++ {
		action, logProb, _ := policy.Sample(obs, rng)
		require.True(t, action.Valid())
		assert.InDelta(t, math.Log(probs[action]), logProb, 1e-6)
		counts[action]++
	}
	for i, p := range probs {
		assert.InDelta(t, p, float64(counts[i])/draws, 0.02, "action %d frequency", i)
	}
}

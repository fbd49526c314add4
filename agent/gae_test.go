package agent

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gonum.org/v1/gonum/stat"
)

func TestComputeGAE_SingleStepEpisodesReduceToRewardMinusValue(t *testing.T) {
	// Five single-step episodes sharing one buffer: the advantage must
	// be exactly reward - value with no bootstrap term leaking between
	// episodes.
	r := &Rollout{
		Rewards: []float64{10, -5, 20, 0, -18},
		Values:  []float64{2, 1, -3, 0.5, -2},
		Dones:   []bool{true, true, true, true, true},
	}
	r.Actions = make([]Action, 5)
	r.Observations = make([]Observation, 5)
	r.LogProbs = make([]float64, 5)

	adv, ret := ComputeGAE(r, 0.99, 0.95)

	wantAdv := []float64{8, -6, 23, -0.5, -16}
	wantRet := []float64{10, -5, 20, 0, -18}
	for i := range wantAdv {
		assert.Equal(t, wantAdv[i], adv[i], "advantage[%d]", i)
		assert.Equal(t, wantRet[i], ret[i], "return[%d]", i)
	}
}

func TestComputeGAE_MultiStepEpisodeHandComputed(t *testing.T) {
	// One three-step episode, gamma=0.5, lambda=0.5 for easy arithmetic.
	r := &Rollout{
		Rewards: []float64{1, 1, 1},
		Values:  []float64{0.5, 0.5, 0.5},
		Dones:   []bool{false, false, true},
	}
	r.Actions = make([]Action, 3)
	r.Observations = make([]Observation, 3)
	r.LogProbs = make([]float64, 3)

	adv, ret := ComputeGAE(r, 0.5, 0.5)

	// t=2: delta = 1 - 0.5 = 0.5; adv = 0.5
	// t=1: delta = 1 + 0.5*0.5 - 0.5 = 0.75; adv = 0.75 + 0.25*0.5 = 0.875
	// t=0: delta = 0.75; adv = 0.75 + 0.25*0.875 = 0.96875
	require.InDelta(t, 0.5, adv[2], 1e-12)
	require.InDelta(t, 0.875, adv[1], 1e-12)
	require.InDelta(t, 0.96875, adv[0], 1e-12)
	for i := range ret {
		assert.InDelta(t, adv[i]+r.Values[i], ret[i], 1e-12)
	}
}

func TestNormalizeAdvantages_ZeroMeanUnitVariance(t *testing.T) {
	adv := []float64{4, -2, 7, 1, -9, 3}
	NormalizeAdvantages(adv)
	assert.InDelta(t, 0, stat.Mean(adv, nil), 1e-9)
	assert.InDelta(t, 1, stat.StdDev(adv, nil), 1e-6)
}

func TestNormalizeAdvantages_ConstantBatchDoesNotBlowUp(t *testing.T) {
	adv := []float64{3, 3, 3, 3}
	NormalizeAdvantages(adv)
	for _, a := range adv {
		require.False(t, math.IsNaN(a) || math.IsInf(a, 0), "normalization must guard near-zero stddev")
	}
}

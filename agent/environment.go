package agent

import (
	"math/rand"

	"github.com/sirupsen/logrus"
)

// Reward constants. Components combine additively per decision and the
// total is clipped to [RewardMin, RewardMax] to keep value targets
// numerically stable.
const (
	rewardExactMatch         = 10.0
	rewardEfficientICU       = 5.0
	rewardHighRiskICU        = 5.0
	rewardEmergencyHandled   = 2.0
	penaltyMismatch          = -10.0
	penaltyUnnecessaryICU    = -5.0
	penaltyICUOverCapacity   = -5.0
	penaltyNonEmergencyDelay = -3.0

	RewardMin = -20.0
	RewardMax = 20.0
)

// HospitalState tracks live bed occupancy. Ward and ICU admissions
// consume beds; occupancy drifts between episodes to simulate churn.
type HospitalState struct {
	ICUCapacity  int `json:"icu_capacity" yaml:"icu_capacity"`
	ICUOccupied  int `json:"icu_occupied" yaml:"icu_occupied"`
	WardCapacity int `json:"ward_capacity" yaml:"ward_capacity"`
	WardOccupied int `json:"ward_occupied" yaml:"ward_occupied"`
}

// ICUUtilization returns the ICU occupancy ratio.
func (h HospitalState) ICUUtilization() float64 {
	if h.ICUCapacity <= 0 {
		return 1
	}
	return float64(h.ICUOccupied) / float64(h.ICUCapacity)
}

// WardUtilization returns the ward occupancy ratio.
func (h HospitalState) WardUtilization() float64 {
	if h.WardCapacity <= 0 {
		return 1
	}
	return float64(h.WardOccupied) / float64(h.WardCapacity)
}

// ICUFull reports whether the ICU is at or above capacity.
func (h HospitalState) ICUFull() bool {
	return h.ICUOccupied >= h.ICUCapacity
}

// DefaultHospitalState returns the baseline occupancy used when no
// telemetry is supplied.
func DefaultHospitalState() HospitalState {
	return HospitalState{ICUCapacity: 20, ICUOccupied: 15, WardCapacity: 50, WardOccupied: 38}
}

// RewardComponent is one additive term of a step's reward, kept for
// logging and tests.
type RewardComponent struct {
	Name  string  `json:"name"`
	Delta float64 `json:"delta"`
}

// StepInfo carries the diagnostic detail of one environment step.
type StepInfo struct {
	Action         Action            `json:"action"`
	OptimalAction  Action            `json:"optimal_action"`
	Risk           RiskAssessment    `json:"risk"`
	HighRisk       bool              `json:"high_risk"`
	ICUUtilization float64           `json:"icu_utilization"`
	Components     []RewardComponent `json:"components"`
}

type episodePhase int

const (
	phaseIdle episodePhase = iota
	phaseActive
	phaseTerminal
)

// Environment is the single-decision admission MDP: Reset presents a
// patient observation, Step accepts an action, computes a deterministic
// reward, and terminates the episode. One decision per episode is a
// deliberate simplification of the longer-horizon stay trajectory; value
// targets therefore equal the immediate reward.
type Environment struct {
	norm     *Normalizer
	sampler  PatientSampler
	rng      *rand.Rand
	hospital HospitalState

	highRiskThreshold float64

	current PatientRecord
	phase   episodePhase
}

// EnvConfig groups environment construction parameters.
type EnvConfig struct {
	Hospital          HospitalState `yaml:"hospital"`
	HighRiskThreshold float64       `yaml:"high_risk_threshold"`
}

// DefaultEnvConfig returns the baseline environment configuration.
func DefaultEnvConfig() EnvConfig {
	return EnvConfig{Hospital: DefaultHospitalState(), HighRiskThreshold: 7}
}

// NewEnvironment creates an admission environment. rng drives patient
// sampling and occupancy drift only; the reward itself is deterministic
// given the patient and hospital state.
func NewEnvironment(norm *Normalizer, cfg EnvConfig, sampler PatientSampler, rng *rand.Rand) *Environment {
	if sampler == nil {
		sampler = SampleSyntheticPatient
	}
	hospital := cfg.Hospital
	if hospital.ICUCapacity <= 0 {
		hospital = DefaultHospitalState()
	}
	threshold := cfg.HighRiskThreshold
	if threshold <= 0 {
		threshold = 7
	}
	return &Environment{
		norm:              norm,
		sampler:           sampler,
		rng:               rng,
		hospital:          hospital,
		highRiskThreshold: threshold,
	}
}

// Reset starts a new episode with the given patient and returns its
// observation. Occupancy drifts slightly between episodes.
func (e *Environment) Reset(rec PatientRecord) (Observation, error) {
	e.driftOccupancy()
	if rec.ICUCapacity > 0 {
		e.hospital.ICUCapacity = rec.ICUCapacity
		e.hospital.ICUOccupied = clampInt(rec.ICUOccupied, 0, rec.ICUCapacity)
	}
	obs, err := e.norm.ObserveWithHospital(rec, e.hospital.ICUUtilization(), e.hospital.WardUtilization())
	if err != nil {
		return nil, err
	}
	e.current = rec.withDefaults()
	e.phase = phaseActive
	return obs, nil
}

// ResetSampled starts a new episode with a sampled patient. Sampled
// records always normalize, so no error path exists.
func (e *Environment) ResetSampled() Observation {
	for {
		obs, err := e.Reset(e.sampler(e.rng))
		if err == nil {
			return obs
		}
		// A sampler returning out-of-domain categoricals is a
		// programming error; log and resample.
		logrus.Warnf("patient sampler produced invalid record: %v", err)
	}
}

// Step applies the chosen action, returning the clipped reward, the
// terminal flag (always true), and diagnostic info. The reward is total
// over the observation space: every branch has a default path. Calling
// Step outside an active episode is a programming error and panics.
func (e *Environment) Step(action Action) (float64, bool, StepInfo) {
	if e.phase != phaseActive {
		panic("agent: Step called outside an active episode")
	}
	if !action.Valid() {
		panic("agent: Step called with action outside the enumerated space")
	}

	risk := AssessRisk(e.current)
	optimal := OptimalAction(e.current, risk, e.highRiskThreshold)
	highRisk := risk.HighRisk(e.highRiskThreshold)
	icuFull := e.hospital.ICUFull()

	info := StepInfo{
		Action:         action,
		OptimalAction:  optimal,
		Risk:           risk,
		HighRisk:       highRisk,
		ICUUtilization: e.hospital.ICUUtilization(),
	}
	add := func(name string, delta float64) {
		info.Components = append(info.Components, RewardComponent{Name: name, Delta: delta})
	}

	var reward float64
	if action == optimal {
		reward += rewardExactMatch
		add("exact_match", rewardExactMatch)
	} else {
		reward += penaltyMismatch
		add("mismatch", penaltyMismatch)
	}

	if action == ActionICU {
		if highRisk {
			reward += rewardHighRiskICU
			add("high_risk_icu", rewardHighRiskICU)
			if !icuFull {
				reward += rewardEfficientICU
				add("efficient_icu", rewardEfficientICU)
			}
		} else {
			reward += penaltyUnnecessaryICU
			add("unnecessary_icu", penaltyUnnecessaryICU)
		}
		if icuFull {
			reward += penaltyICUOverCapacity
			add("icu_over_capacity", penaltyICUOverCapacity)
		}
	}

	if e.current.IsEmergency() {
		if action != ActionDischarge {
			reward += rewardEmergencyHandled
			add("emergency_handled", rewardEmergencyHandled)
		}
	} else if action > optimal {
		// Escalating a non-emergency patient beyond the indicated level
		// of care delays them and ties up capacity.
		reward += penaltyNonEmergencyDelay
		add("non_emergency_delay", penaltyNonEmergencyDelay)
	}

	if reward > RewardMax {
		reward = RewardMax
	}
	if reward < RewardMin {
		reward = RewardMin
	}

	e.admit(action)
	e.phase = phaseTerminal
	return reward, true, info
}

// admit updates bed occupancy after the decision.
func (e *Environment) admit(action Action) {
	switch action {
	case ActionWard:
		if e.hospital.WardOccupied < e.hospital.WardCapacity {
			e.hospital.WardOccupied++
		}
	case ActionICU:
		if e.hospital.ICUOccupied < e.hospital.ICUCapacity {
			e.hospital.ICUOccupied++
		}
	}
}

// driftOccupancy simulates discharges and arrivals between episodes.
func (e *Environment) driftOccupancy() {
	if e.rng == nil {
		return
	}
	e.hospital.ICUOccupied = clampInt(e.hospital.ICUOccupied+e.rng.Intn(3)-1, 0, e.hospital.ICUCapacity)
	e.hospital.WardOccupied = clampInt(e.hospital.WardOccupied+e.rng.Intn(5)-2, 0, e.hospital.WardCapacity)
}

// Hospital returns the current occupancy snapshot.
func (e *Environment) Hospital() HospitalState { return e.hospital }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package agent

// Observation index layout. Order is part of the checkpoint contract:
// the networks are trained against exactly this layout.
const (
	obsAge = iota
	obsDiastolicBP
	obsHeartRate
	obsMeanBP
	obsRespRate
	obsSpO2
	obsSysBP
	obsTemperature
	obsGender
	obsAdmissionType
	obsICUUtilization
	obsWardUtilization

	// ObservationDim is the fixed observation vector length and the
	// networks' input width.
	ObservationDim = 12
)

// Observation is a fixed-length vector of normalized features, every
// component in [0, 1].
type Observation []float64

// FieldBounds holds the min/max used to scale one raw vital into [0, 1].
type FieldBounds struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

func (b FieldBounds) scale(v float64) float64 {
	n := (v - b.Min) / (b.Max - b.Min)
	return clamp01(n)
}

// NormalizationParams are the per-field scaling bounds fixed at training
// time. They are persisted inside every checkpoint and must be reused
// unchanged at inference time: a silent mismatch corrupts predictions,
// so loads verify the version string.
type NormalizationParams struct {
	Version     string      `json:"version" yaml:"version"`
	AgeMax      float64     `json:"age_max" yaml:"age_max"`
	DiastolicBP FieldBounds `json:"diastolic_bp" yaml:"diastolic_bp"`
	HeartRate   FieldBounds `json:"heart_rate" yaml:"heart_rate"`
	MeanBP      FieldBounds `json:"mean_bp" yaml:"mean_bp"`
	RespRate    FieldBounds `json:"resp_rate" yaml:"resp_rate"`
	SpO2        FieldBounds `json:"spo2" yaml:"spo2"`
	SysBP       FieldBounds `json:"sys_bp" yaml:"sys_bp"`
	Temperature FieldBounds `json:"temperature" yaml:"temperature"`

	// Assumed utilization ratios when the record carries no hospital
	// occupancy fields.
	AssumedICUUtilization  float64 `json:"assumed_icu_utilization" yaml:"assumed_icu_utilization"`
	AssumedWardUtilization float64 `json:"assumed_ward_utilization" yaml:"assumed_ward_utilization"`
}

// DefaultNormalizationParams returns the v1 bounds, matching the typical
// clinical ranges the original dataset was scaled with.
func DefaultNormalizationParams() NormalizationParams {
	return NormalizationParams{
		Version:                "v1",
		AgeMax:                 100,
		DiastolicBP:            FieldBounds{Min: 40, Max: 120},
		HeartRate:              FieldBounds{Min: 40, Max: 150},
		MeanBP:                 FieldBounds{Min: 50, Max: 120},
		RespRate:               FieldBounds{Min: 8, Max: 40},
		SpO2:                   FieldBounds{Min: 70, Max: 100},
		SysBP:                  FieldBounds{Min: 70, Max: 200},
		Temperature:            FieldBounds{Min: 95, Max: 105},
		AssumedICUUtilization:  0.75,
		AssumedWardUtilization: 0.76,
	}
}

// Normalizer maps raw patient records to observation vectors. Pure and
// deterministic given fixed params; the only failure mode is an unknown
// categorical value.
type Normalizer struct {
	Params NormalizationParams
}

// NewNormalizer creates a Normalizer with the given params.
func NewNormalizer(params NormalizationParams) *Normalizer {
	return &Normalizer{Params: params}
}

// Observe converts a raw record into a normalized observation. Missing
// fields take documented defaults, out-of-range numerics are clamped,
// and only an out-of-domain categorical value yields an error
// (*InvalidRecordError).
func (n *Normalizer) Observe(rec PatientRecord) (Observation, error) {
	rec = rec.withDefaults()
	if err := rec.validate(); err != nil {
		return nil, err
	}

	obs := make(Observation, ObservationDim)
	p := n.Params
	obs[obsAge] = clamp01(rec.Age / p.AgeMax)
	obs[obsDiastolicBP] = p.DiastolicBP.scale(rec.DiastolicBP)
	obs[obsHeartRate] = p.HeartRate.scale(rec.HeartRate)
	obs[obsMeanBP] = p.MeanBP.scale(rec.MeanBP)
	obs[obsRespRate] = p.RespRate.scale(rec.RespRate)
	obs[obsSpO2] = p.SpO2.scale(rec.SpO2)
	obs[obsSysBP] = p.SysBP.scale(rec.SysBP)
	obs[obsTemperature] = p.Temperature.scale(rec.Temperature)

	if rec.Gender == GenderFemale {
		obs[obsGender] = 1.0
	}
	switch rec.AdmissionType {
	case AdmissionEmergency:
		obs[obsAdmissionType] = 1.0
	case AdmissionUrgent:
		obs[obsAdmissionType] = 0.5
	}

	icuUtil := p.AssumedICUUtilization
	if rec.ICUCapacity > 0 {
		icuUtil = float64(rec.ICUOccupied) / float64(rec.ICUCapacity)
	}
	obs[obsICUUtilization] = clamp01(icuUtil)
	obs[obsWardUtilization] = clamp01(p.AssumedWardUtilization)

	return obs, nil
}

// ObserveWithHospital is Observe with explicit utilization ratios,
// used by the environment which tracks live occupancy itself.
func (n *Normalizer) ObserveWithHospital(rec PatientRecord, icuUtil, wardUtil float64) (Observation, error) {
	obs, err := n.Observe(rec)
	if err != nil {
		return nil, err
	}
	obs[obsICUUtilization] = clamp01(icuUtil)
	obs[obsWardUtilization] = clamp01(wardUtil)
	return obs, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package agent

import (
	"fmt"
	"math/rand"
)

// PatientRecord is the raw serving-boundary input: vital signs,
// demographics, and optional hospital occupancy overrides. Field names
// follow the upstream dataset's column naming.
type PatientRecord struct {
	Age         float64 `json:"age"`
	DiastolicBP float64 `json:"DiastolicBP"`
	HeartRate   float64 `json:"HeartRate"`
	MeanBP      float64 `json:"MeanBP"`
	RespRate    float64 `json:"RespRate"`
	SpO2        float64 `json:"SpO2"`
	SysBP       float64 `json:"SysBP"`
	Temperature float64 `json:"Temperature"`

	// Gender is "M" or "F". Empty means missing and falls back to the
	// documented default ("M"); any other value is rejected.
	Gender string `json:"gender"`

	// AdmissionType is one of EMERGENCY, URGENT, ELECTIVE. Empty means
	// missing and defaults to ELECTIVE; unrecognized values are rejected
	// rather than mapped to an unknown bucket.
	AdmissionType string `json:"admission_type"`

	// Optional hospital-state overrides. Zero capacity means "not
	// provided"; the normalizer then assumes a fixed occupancy ratio.
	ICUCapacity int `json:"icu_capacity,omitempty"`
	ICUOccupied int `json:"icu_occupied,omitempty"`
}

// Known categorical domains.
const (
	GenderMale   = "M"
	GenderFemale = "F"

	AdmissionEmergency = "EMERGENCY"
	AdmissionUrgent    = "URGENT"
	AdmissionElective  = "ELECTIVE"
)

// Default vitals substituted for absent (zero-valued) numeric fields.
// Taken from the upstream processor's per-field fallbacks.
const (
	defaultAge         = 50
	defaultDiastolicBP = 80
	defaultHeartRate   = 80
	defaultMeanBP      = 90
	defaultRespRate    = 16
	defaultSpO2        = 98
	defaultSysBP       = 120
	defaultTemperature = 98.6
)

// withDefaults returns a copy with absent numeric fields replaced by the
// documented defaults. A zero vital reading is treated as missing; true
// zero measurements do not occur in live patients.
func (r PatientRecord) withDefaults() PatientRecord {
	if r.Age == 0 {
		r.Age = defaultAge
	}
	if r.DiastolicBP == 0 {
		r.DiastolicBP = defaultDiastolicBP
	}
	if r.HeartRate == 0 {
		r.HeartRate = defaultHeartRate
	}
	if r.MeanBP == 0 {
		r.MeanBP = defaultMeanBP
	}
	if r.RespRate == 0 {
		r.RespRate = defaultRespRate
	}
	if r.SpO2 == 0 {
		r.SpO2 = defaultSpO2
	}
	if r.SysBP == 0 {
		r.SysBP = defaultSysBP
	}
	if r.Temperature == 0 {
		r.Temperature = defaultTemperature
	}
	if r.Gender == "" {
		r.Gender = GenderMale
	}
	if r.AdmissionType == "" {
		r.AdmissionType = AdmissionElective
	}
	return r
}

// validate checks the categorical fields against their known domains.
// Numeric out-of-range values are clamped later, never rejected, so the
// environment and policy always receive a valid observation.
func (r PatientRecord) validate() error {
	switch r.Gender {
	case GenderMale, GenderFemale:
	default:
		return &InvalidRecordError{Field: "gender", Reason: fmt.Sprintf("unknown value %q, want M or F", r.Gender)}
	}
	switch r.AdmissionType {
	case AdmissionEmergency, AdmissionUrgent, AdmissionElective:
	default:
		return &InvalidRecordError{Field: "admission_type", Reason: fmt.Sprintf("unknown value %q", r.AdmissionType)}
	}
	return nil
}

// IsEmergency reports whether the record is an emergency admission.
func (r PatientRecord) IsEmergency() bool {
	return r.AdmissionType == AdmissionEmergency
}

// PatientSampler produces patient records for training episodes.
type PatientSampler func(rng *rand.Rand) PatientRecord

// SampleSyntheticPatient draws a synthetic patient from gaussian vital
// distributions. Abnormally high heart rates pull blood pressure up and
// SpO2 down so vitals stay loosely correlated.
func SampleSyntheticPatient(rng *rand.Rand) PatientRecord {
	rec := PatientRecord{
		Age:         float64(18 + rng.Intn(73)),
		DiastolicBP: rng.NormFloat64()*15 + 80,
		HeartRate:   rng.NormFloat64()*20 + 75,
		MeanBP:      rng.NormFloat64()*15 + 85,
		RespRate:    rng.NormFloat64()*5 + 16,
		SpO2:        rng.NormFloat64()*3 + 97,
		SysBP:       rng.NormFloat64()*20 + 125,
		Temperature: rng.NormFloat64()*2 + 98.6,
	}
	if rng.Intn(2) == 0 {
		rec.Gender = GenderFemale
	} else {
		rec.Gender = GenderMale
	}
	switch rng.Intn(3) {
	case 0:
		rec.AdmissionType = AdmissionEmergency
	case 1:
		rec.AdmissionType = AdmissionUrgent
	default:
		rec.AdmissionType = AdmissionElective
	}
	if rec.HeartRate > 115 {
		rec.SysBP = max(rec.SysBP, 145)
		rec.SpO2 = min(rec.SpO2, 94)
	}
	if rec.SpO2 > 100 {
		rec.SpO2 = 100
	}
	return rec
}

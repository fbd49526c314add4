package agent

import (
	"fmt"
	"strings"
)

// RiskFactor is one contribution to the patient risk score, kept so the
// serving layer can explain a recommendation from the same decomposition
// the reward function uses.
type RiskFactor struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Points float64 `json:"points"`
	Detail string  `json:"detail"`
}

// RiskAssessment is the deterministic 0-10 risk score plus its
// per-factor breakdown.
type RiskAssessment struct {
	Total   float64      `json:"total"`
	Factors []RiskFactor `json:"factors"`
}

// maxRiskScore caps the additive risk scale.
const maxRiskScore = 10

// AssessRisk scores a patient on a 0-10 scale from age, vitals, and
// admission type. The thresholds mirror standard early-warning bands:
// each out-of-normal-range vital contributes points proportional to how
// far outside the band it sits.
func AssessRisk(rec PatientRecord) RiskAssessment {
	rec = rec.withDefaults()
	var a RiskAssessment

	add := func(name string, value, points float64, detail string) {
		if points == 0 {
			return
		}
		a.Factors = append(a.Factors, RiskFactor{Name: name, Value: value, Points: points, Detail: detail})
		a.Total += points
	}

	switch {
	case rec.Age > 80:
		add("age", rec.Age, 3, "advanced age (>80)")
	case rec.Age > 65:
		add("age", rec.Age, 2, "elderly (>65)")
	case rec.Age > 50:
		add("age", rec.Age, 1, "age above 50")
	}

	switch {
	case rec.HeartRate > 120 || rec.HeartRate < 50:
		add("heart_rate", rec.HeartRate, 2, "heart rate critically out of range")
	case rec.HeartRate > 100:
		add("heart_rate", rec.HeartRate, 1, "elevated heart rate")
	}

	switch {
	case rec.SysBP > 180 || rec.SysBP < 90:
		add("sys_bp", rec.SysBP, 2, "systolic blood pressure critically out of range")
	case rec.SysBP > 140:
		add("sys_bp", rec.SysBP, 1, "elevated systolic blood pressure")
	}

	switch {
	case rec.SpO2 < 90:
		add("spo2", rec.SpO2, 3, "severe hypoxemia (SpO2 <90%)")
	case rec.SpO2 < 95:
		add("spo2", rec.SpO2, 2, "low oxygen saturation (SpO2 <95%)")
	}

	switch {
	case rec.RespRate > 25 || rec.RespRate < 10:
		add("resp_rate", rec.RespRate, 2, "respiratory rate critically out of range")
	case rec.RespRate > 20:
		add("resp_rate", rec.RespRate, 1, "elevated respiratory rate")
	}

	switch {
	case rec.Temperature > 102 || rec.Temperature < 96:
		add("temperature", rec.Temperature, 2, "temperature critically out of range")
	case rec.Temperature > 100:
		add("temperature", rec.Temperature, 1, "fever")
	}

	if rec.IsEmergency() {
		add("admission_type", 1, 1, "emergency admission")
	}

	if a.Total > maxRiskScore {
		a.Total = maxRiskScore
	}
	return a
}

// HighRisk reports whether the score crosses the given ICU-routing
// threshold.
func (a RiskAssessment) HighRisk(threshold float64) bool {
	return a.Total >= threshold
}

// NeedsSpecialist reports whether the patient profile calls for a
// specialist consult rather than standard routing: complex elderly
// cases below the ICU band.
func NeedsSpecialist(rec PatientRecord, a RiskAssessment) bool {
	rec = rec.withDefaults()
	return rec.Age > 75 && a.Total > 5
}

// OptimalAction maps a risk assessment to the heuristically optimal
// admission action. This rule is the reward function's ground truth and
// the accuracy metric's reference. ICU routing takes precedence over a
// specialist consult: an unstable patient needs intensive care first.
func OptimalAction(rec PatientRecord, a RiskAssessment, highRiskThreshold float64) Action {
	if a.HighRisk(highRiskThreshold) {
		return ActionICU
	}
	if NeedsSpecialist(rec, a) {
		return ActionSpecialist
	}
	if a.Total >= 3 {
		return ActionWard
	}
	return ActionDischarge
}

// Reasoning renders the risk decomposition as explanation text for a
// recommendation. Deterministic: built only from the factor list, never
// free-form generation.
func (a RiskAssessment) Reasoning(recommended Action) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recommendation: %s. Risk score %.0f/%d.", recommended.Name(), a.Total, maxRiskScore)
	if len(a.Factors) == 0 {
		b.WriteString(" All vital signs within normal range.")
		return b.String()
	}
	b.WriteString(" Contributing factors:")
	for _, f := range a.Factors {
		fmt.Fprintf(&b, " %s (%.1f, +%.0f);", f.Detail, f.Value, f.Points)
	}
	return strings.TrimSuffix(b.String(), ";") + "."
}

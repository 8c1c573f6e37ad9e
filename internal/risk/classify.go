package risk

import (
	"fmt"

	"github.com/ppiankov/pulseguard/internal/model"
)

// Thresholds are the heart-rate boundaries used by Classify.
type Thresholds struct {
	Emergency   float64 `yaml:"emergency_threshold" json:"emergency_threshold"`
	Warning     float64 `yaml:"warning_threshold" json:"warning_threshold"`
	Bradycardia float64 `yaml:"bradycardia_threshold" json:"bradycardia_threshold"`
}

// DefaultThresholds returns 120 / 100 / 50 BPM.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Emergency:   120,
		Warning:     100,
		Bradycardia: 50,
	}
}

// Validate rejects threshold sets that would make the warning band empty or inverted.
func (t Thresholds) Validate() error {
	if t.Warning <= 0 || t.Emergency <= 0 {
		return fmt.Errorf("thresholds must be positive (warning=%v, emergency=%v)", t.Warning, t.Emergency)
	}
	if t.Warning >= t.Emergency {
		return fmt.Errorf("warning threshold %v must be below emergency threshold %v", t.Warning, t.Emergency)
	}
	if t.Bradycardia >= t.Warning {
		return fmt.Errorf("bradycardia threshold %v must be below warning threshold %v", t.Bradycardia, t.Warning)
	}
	return nil
}

// Classify maps a sample to a verdict. Pure and total: every float,
// including NaN, lands in exactly one branch (NaN compares false
// everywhere and is reported as normal).
//
// Order matters: high rates are checked before the bradycardia path so a
// misconfigured bradycardia threshold can never mask a tachycardia emergency.
func Classify(s model.Sample, t Thresholds) model.Verdict {
	hr := s.HeartRate
	v := model.Verdict{
		HeartRate: hr,
		Status:    s.Status,
	}

	switch {
	case hr >= t.Emergency:
		v.Risk = model.Emergency
		v.Message = "heart rate too high: " + model.FormatBPM(hr)
		v.Action = model.ImmediateIntervention
	case hr < t.Bradycardia:
		v.Risk = model.Emergency
		v.Message = "heart rate too low: " + model.FormatBPM(hr)
		v.Action = model.ImmediateIntervention
	case hr >= t.Warning:
		v.Risk = model.Warning
		v.Message = "heart rate elevated: " + model.FormatBPM(hr)
		v.Action = model.GentleIntervention
	default:
		v.Risk = model.Normal
		v.Message = "heart rate normal: " + model.FormatBPM(hr)
		v.Action = model.ContinueMonitoring
	}
	return v
}

package history

import (
	"math"
	"time"

	"github.com/ppiankov/pulseguard/internal/model"
)

// Trend labels.
const (
	TrendInsufficient = "insufficient_data"
	TrendStable       = "stable"
	TrendRising       = "rising"
	TrendFalling      = "falling"
)

// trendDelta is the mean shift (BPM) between the older and newer half of a
// window that counts as a directional trend.
const trendDelta = 5.0

// TrendSummary aggregates heart rates over a time window.
type TrendSummary struct {
	Trend      string        `json:"trend"`
	Window     time.Duration `json:"window_ns"`
	AverageHR  float64       `json:"average_hr"`
	MaxHR      float64       `json:"max_hr"`
	MinHR      float64       `json:"min_hr"`
	DataPoints int           `json:"data_points"`
}

// Trend summarizes records received within window before now.
func (s *Store) Trend(now time.Time, window time.Duration) TrendSummary {
	return Summarize(s.Since(now.Add(-window)), window)
}

// Summarize computes a TrendSummary over records ordered oldest first.
func Summarize(records []model.Record, window time.Duration) TrendSummary {
	if len(records) == 0 {
		return TrendSummary{Trend: TrendInsufficient, Window: window}
	}

	sum := 0.0
	maxHR := math.Inf(-1)
	minHR := math.Inf(1)
	for _, r := range records {
		hr := r.Sample.HeartRate
		sum += hr
		maxHR = math.Max(maxHR, hr)
		minHR = math.Min(minHR, hr)
	}

	return TrendSummary{
		Trend:      direction(records),
		Window:     window,
		AverageHR:  sum / float64(len(records)),
		MaxHR:      maxHR,
		MinHR:      minHR,
		DataPoints: len(records),
	}
}

func direction(records []model.Record) string {
	if len(records) < 2 {
		return TrendStable
	}
	half := len(records) / 2
	older := mean(records[:half])
	newer := mean(records[half:])
	switch {
	case newer-older >= trendDelta:
		return TrendRising
	case older-newer >= trendDelta:
		return TrendFalling
	default:
		return TrendStable
	}
}

func mean(records []model.Record) float64 {
	sum := 0.0
	for _, r := range records {
		sum += r.Sample.HeartRate
	}
	return sum / float64(len(records))
}

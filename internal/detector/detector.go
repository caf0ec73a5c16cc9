// Package detector flags anomalously low sales days against a robust
// median/MAD baseline. One rule, one definition of "anomalous"; severity
// ranking and the reported top-N are deterministic.
package detector

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/balidash/detective-cli/internal/model"
)

// ErrInsufficientData reports a period shorter than the minimum window.
// No partial baseline is fabricated below the minimum.
var ErrInsufficientData = eris.New("detector: insufficient data")

// madScale makes the MAD consistent with the standard deviation under a
// normal distribution.
const madScale = 1.4826

// relativeFallback is the fixed relative drop threshold used when the MAD
// degenerates to zero (identical sales every day).
const relativeFallback = 0.5

// Config tunes the detector. Zero values take defaults.
type Config struct {
	MADMultiplier float64 // k in: anomalous if sales < median - k*MAD
	MinDays       int
	TopN          int // 0 reports all anomalies
}

// Detector applies the baseline rule to a period's days.
type Detector struct {
	cfg Config
}

// New creates a detector with defaults applied.
func New(cfg Config) *Detector {
	if cfg.MADMultiplier == 0 {
		cfg.MADMultiplier = 1.5
	}
	if cfg.MinDays == 0 {
		cfg.MinDays = 7
	}
	return &Detector{cfg: cfg}
}

// Baseline computes the period's median and normal-consistent MAD of
// fraud-adjusted daily sales.
func (d *Detector) Baseline(days []model.RestaurantDay) (model.Baseline, error) {
	if len(days) < d.cfg.MinDays {
		return model.Baseline{}, eris.Wrapf(ErrInsufficientData,
			"%d days, need %d", len(days), d.cfg.MinDays)
	}

	sales := make([]float64, len(days))
	for i := range days {
		sales[i] = days[i].ActualSales
	}
	med := median(sales)

	devs := make([]float64, len(sales))
	for i, s := range sales {
		devs[i] = math.Abs(s - med)
	}
	mad := median(devs) * madScale

	return model.Baseline{Median: med, MAD: mad, Days: len(days)}, nil
}

// Detect returns the anomalous days ranked by severity descending, earlier
// date first on ties. When TopN > 0 the list is truncated after ranking.
func (d *Detector) Detect(days []model.RestaurantDay, baseline model.Baseline) []model.AnomalyDay {
	if baseline.Median <= 0 {
		return nil
	}

	threshold := baseline.Median - d.cfg.MADMultiplier*baseline.MAD
	if baseline.MAD == 0 {
		threshold = relativeFallback * baseline.Median
	}

	var anomalies []model.AnomalyDay
	for i := range days {
		day := &days[i]
		if day.ActualSales >= threshold {
			continue
		}
		anomalies = append(anomalies, model.AnomalyDay{
			Day:      day,
			Date:     day.Date,
			Actual:   day.ActualSales,
			Expected: baseline.Median,
			Severity: (baseline.Median - day.ActualSales) / baseline.Median,
		})
	}

	sort.SliceStable(anomalies, func(i, j int) bool {
		if anomalies[i].Severity != anomalies[j].Severity {
			return anomalies[i].Severity > anomalies[j].Severity
		}
		return anomalies[i].Date.Before(anomalies[j].Date)
	})

	if d.cfg.TopN > 0 && len(anomalies) > d.cfg.TopN {
		anomalies = anomalies[:d.cfg.TopN]
	}
	return anomalies
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// Package detective runs fixed threshold checks against raw per-platform
// fields, independent of the attribution model. Rules carry deterministic
// wording templates and severity tiers from an embedded lookup table, so the
// same inputs always produce the same factors.
package detective

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/balidash/detective-cli/internal/model"
)

//go:embed rules.yaml
var rulesYAML []byte

type thresholds struct {
	Offline struct {
		PeriodAvgMultiple float64 `yaml:"period_avg_multiple"`
		MinRatioPct       float64 `yaml:"min_ratio_pct"`
	} `yaml:"offline"`
	Weather struct {
		RainWarningMM float64 `yaml:"rain_warning_mm"`
		RainInfoMM    float64 `yaml:"rain_info_mm"`
	} `yaml:"weather"`
	Marketing struct {
		ROASLow     float64 `yaml:"roas_low"`
		ROASHealthy float64 `yaml:"roas_healthy"`
	} `yaml:"marketing"`
	Cancellations struct {
		RateWarning float64 `yaml:"rate_warning"`
	} `yaml:"cancellations"`
	Operations struct {
		PrepWarningMinutes     float64 `yaml:"prep_warning_minutes"`
		DeliveryWarningMinutes float64 `yaml:"delivery_warning_minutes"`
	} `yaml:"operations"`
}

var rules = func() thresholds {
	var t thresholds
	if err := yaml.Unmarshal(rulesYAML, &t); err != nil {
		panic(fmt.Sprintf("detective: embedded rules.yaml invalid: %v", err))
	}
	return t
}()

// PeriodContext carries period-level references the rules compare against.
type PeriodContext struct {
	// OfflineAvg is the period's average offline ratio per platform.
	OfflineAvg map[model.Platform]float64
}

// NewPeriodContext computes the reference averages from the period's days.
func NewPeriodContext(days []model.RestaurantDay) PeriodContext {
	sums := make(map[model.Platform]float64)
	counts := make(map[model.Platform]int)
	for i := range days {
		for _, rec := range days[i].Records {
			sums[rec.Platform] += rec.OfflineRatio
			counts[rec.Platform]++
		}
	}
	avg := make(map[model.Platform]float64, len(sums))
	for p, sum := range sums {
		avg[p] = sum / float64(counts[p])
	}
	return PeriodContext{OfflineAvg: avg}
}

// platformLabels gives the customer-facing platform names used in wording.
var platformLabels = map[model.Platform]string{
	model.PlatformGrab:  "Grab",
	model.PlatformGojek: "Gojek",
}

var offlineCategories = map[model.Platform]model.FactorCategory{
	model.PlatformGrab:  model.CategoryGrabOffline,
	model.PlatformGojek: model.CategoryGojekOffline,
}

// Evaluate runs every rule against one day and returns factor candidates in
// a fixed rule order. Impact amounts are left to the merger: rules identify
// causes, the model quantifies them.
func Evaluate(day *model.RestaurantDay, pctx PeriodContext) []model.Factor {
	var factors []model.Factor

	for _, p := range model.Platforms() {
		rec := day.Record(p)
		if rec == nil {
			continue
		}
		avg := pctx.OfflineAvg[p]
		if rec.OfflineRatio >= rules.Offline.MinRatioPct &&
			rec.OfflineRatio > rules.Offline.PeriodAvgMultiple*avg {
			factors = append(factors, model.Factor{
				Label: fmt.Sprintf("Store was offline on %s for %.0f%% of scheduled time (period average %.0f%%)",
					platformLabels[p], rec.OfflineRatio, avg),
				Category:   offlineCategories[p],
				Severity:   model.SeverityCritical,
				Actionable: true,
				Source:     model.SourceRule,
			})
		}
	}

	if day.Weather != nil {
		switch {
		case day.Weather.PrecipMM >= rules.Weather.RainWarningMM:
			factors = append(factors, model.Factor{
				Label:      fmt.Sprintf("Heavy rain (%.1fmm)", day.Weather.PrecipMM),
				Category:   model.CategoryWeather,
				Severity:   model.SeverityWarning,
				Actionable: false,
				Source:     model.SourceRule,
			})
		case day.Weather.PrecipMM >= rules.Weather.RainInfoMM:
			factors = append(factors, model.Factor{
				Label:      fmt.Sprintf("Moderate rain (%.1fmm)", day.Weather.PrecipMM),
				Category:   model.CategoryWeather,
				Severity:   model.SeverityInfo,
				Actionable: false,
				Source:     model.SourceRule,
			})
		}
	}

	if day.Holiday != nil {
		factors = append(factors, model.Factor{
			Label:      fmt.Sprintf("%s (%s holiday)", day.Holiday.Name, day.Holiday.Category),
			Category:   model.CategoryHoliday,
			Severity:   model.SeverityInfo,
			Actionable: false,
			Source:     model.SourceRule,
		})
	}

	if spend := day.TotalAdsSpend(); spend > 0 {
		roas := day.TotalAdsSales() / spend
		switch {
		case roas < rules.Marketing.ROASLow:
			factors = append(factors, model.Factor{
				Label:      fmt.Sprintf("Low return on ad spend (ROAS %.1f)", roas),
				Category:   model.CategoryMarketing,
				Severity:   model.SeverityWarning,
				Actionable: true,
				Source:     model.SourceRule,
			})
		case roas >= rules.Marketing.ROASHealthy:
			factors = append(factors, model.Factor{
				Label:      fmt.Sprintf("Ads performing well (ROAS %.1f)", roas),
				Category:   model.CategoryMarketing,
				Severity:   model.SeverityInfo,
				Actionable: true,
				Positive:   true,
				Source:     model.SourceRule,
			})
		}
	}

	if f, ok := cancellationFactor(day); ok {
		factors = append(factors, f)
	}
	if f, ok := operationsFactor(day); ok {
		factors = append(factors, f)
	}

	if day.Fraud.Orders > 0 {
		factors = append(factors, model.Factor{
			Label: fmt.Sprintf("%d fraudulent orders (%.0f IDR) removed before analysis",
				day.Fraud.Orders, day.Fraud.Amount),
			Category:   model.CategoryDataQuality,
			Severity:   model.SeverityInfo,
			Actionable: true,
			Source:     model.SourceRule,
		})
	}

	return factors
}

// cancellationFactor reports the worst platform above the cancellation
// threshold. One factor per category, so the worst offender names the day.
func cancellationFactor(day *model.RestaurantDay) (model.Factor, bool) {
	var worst model.Platform
	var worstRate float64
	for _, p := range model.Platforms() {
		rec := day.Record(p)
		if rec == nil || rec.Orders == 0 {
			continue
		}
		rate := float64(rec.Cancelled) / float64(rec.Orders)
		if rate > rules.Cancellations.RateWarning && rate > worstRate {
			worst = p
			worstRate = rate
		}
	}
	if worst == "" {
		return model.Factor{}, false
	}
	return model.Factor{
		Label: fmt.Sprintf("High cancellation rate on %s (%.0f%% of orders)",
			platformLabels[worst], worstRate*100),
		Category:   model.CategoryCancellations,
		Severity:   model.SeverityWarning,
		Actionable: true,
		Source:     model.SourceRule,
	}, true
}

// operationsFactor folds slow preparation and slow delivery into a single
// operations factor; the merger deduplicates per category, so two separate
// timing factors would shadow each other.
func operationsFactor(day *model.RestaurantDay) (model.Factor, bool) {
	prep := meanTiming(day, func(r *model.DailyPlatformRecord) float64 { return r.PrepMinutes })
	delivery := meanTiming(day, func(r *model.DailyPlatformRecord) float64 { return r.DeliveryMinutes })

	var parts []string
	if prep > rules.Operations.PrepWarningMinutes {
		parts = append(parts, fmt.Sprintf("preparation averaged %.0f minutes", prep))
	}
	if delivery > rules.Operations.DeliveryWarningMinutes {
		parts = append(parts, fmt.Sprintf("delivery averaged %.0f minutes", delivery))
	}
	if len(parts) == 0 {
		return model.Factor{}, false
	}
	return model.Factor{
		Label:      "Slow operations: " + strings.Join(parts, ", "),
		Category:   model.CategoryOperations,
		Severity:   model.SeverityWarning,
		Actionable: true,
		Source:     model.SourceRule,
	}, true
}

func meanTiming(day *model.RestaurantDay, get func(*model.DailyPlatformRecord) float64) float64 {
	var sum float64
	var n int
	for i := range day.Records {
		if v := get(&day.Records[i]); v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

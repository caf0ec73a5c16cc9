// Package merger combines ML attribution and rule-detective factors into
// one ranked explanation per anomalous day. Two factors in the same
// category are the same underlying cause: the rule's wording survives (it
// reads better) and the model's impact figure survives (it is quantified).
package merger

import (
	"fmt"
	"math"
	"sort"

	"github.com/balidash/detective-cli/internal/feature"
	"github.com/balidash/detective-cli/internal/model"
)

// featureCategories maps every schema feature to its factor category.
var featureCategories = map[string]model.FactorCategory{
	feature.GrabOffline:  model.CategoryGrabOffline,
	feature.GojekOffline: model.CategoryGojekOffline,

	feature.PrecipMM:       model.CategoryWeather,
	feature.TempC:          model.CategoryWeather,
	feature.WindKPH:        model.CategoryWeather,
	feature.WeatherMissing: model.CategoryWeather,

	feature.IsHoliday:        model.CategoryHoliday,
	feature.HolidayReligious: model.CategoryHoliday,

	feature.DayOfWeek: model.CategoryCalendar,
	feature.IsWeekend: model.CategoryCalendar,

	feature.TouristSeason: model.CategorySeason,

	feature.AdsSpend: model.CategoryMarketing,
	feature.AdsSales: model.CategoryMarketing,
	feature.ROAS:     model.CategoryMarketing,
	feature.AdsOff:   model.CategoryMarketing,

	feature.GrabCancelRate:  model.CategoryCancellations,
	feature.GojekCancelRate: model.CategoryCancellations,

	feature.PrepDeviation:       model.CategoryOperations,
	feature.DeliveryDeviation:   model.CategoryOperations,
	feature.DriverWaitDeviation: model.CategoryOperations,

	feature.FraudOrders: model.CategoryDataQuality,
	feature.FraudAmount: model.CategoryDataQuality,
}

// mlLabels gives the fallback wording for categories the detective did not
// flag. Rule wording always wins when both sides produced a factor.
var mlLabels = map[model.FactorCategory]string{
	model.CategoryGrabOffline:   "Reduced availability on Grab",
	model.CategoryGojekOffline:  "Reduced availability on Gojek",
	model.CategoryWeather:       "Weather conditions",
	model.CategoryHoliday:       "Holiday effect",
	model.CategoryCalendar:      "Day-of-week effect",
	model.CategorySeason:        "Tourist season effect",
	model.CategoryMarketing:     "Advertising performance",
	model.CategoryCancellations: "Order cancellations",
	model.CategoryOperations:    "Operational timing",
	model.CategoryDataQuality:   "Data quality adjustments",
}

// nonActionable lists the categories a restaurant operator cannot influence.
var nonActionable = map[model.FactorCategory]bool{
	model.CategoryWeather:  true,
	model.CategoryHoliday:  true,
	model.CategoryCalendar: true,
	model.CategorySeason:   true,
}

// severityRank orders tiers for deterministic sorting; lower is worse.
var severityRank = map[model.Severity]int{
	model.SeverityCritical: 0,
	model.SeverityWarning:  1,
	model.SeverityInfo:     2,
}

// FromAttribution groups material attribution entries by factor category
// and emits one ML factor per category. predictedSales scales the impact
// percentage.
func FromAttribution(entries []model.AttributionEntry, predictedSales float64) []model.Factor {
	impacts := make(map[model.FactorCategory]float64)
	for _, e := range entries {
		cat, ok := featureCategories[e.Feature]
		if !ok {
			continue
		}
		impacts[cat] += e.Contribution
	}

	factors := make([]model.Factor, 0, len(impacts))
	for cat, impact := range impacts {
		pct := 0.0
		if predictedSales != 0 {
			pct = impact / predictedSales * 100
		}
		factors = append(factors, model.Factor{
			Label:         mlLabels[cat],
			Category:      cat,
			Severity:      severityFromImpact(pct),
			ImpactAmount:  impact,
			ImpactPercent: pct,
			Actionable:    !nonActionable[cat],
			Source:        model.SourceML,
		})
	}
	sort.Slice(factors, func(i, j int) bool { return factors[i].Category < factors[j].Category })
	return factors
}

// severityFromImpact is the fixed tier lookup for ML-only factors.
func severityFromImpact(pct float64) model.Severity {
	switch mag := math.Abs(pct); {
	case mag >= 30:
		return model.SeverityCritical
	case mag >= 10:
		return model.SeverityWarning
	default:
		return model.SeverityInfo
	}
}

// Merge deduplicates by category and ranks the result. Ordering: impact
// magnitude descending; zero-impact factors after quantified ones, ordered
// by severity tier then category for determinism.
func Merge(mlFactors, ruleFactors []model.Factor) []model.Factor {
	byCategory := make(map[model.FactorCategory]model.Factor)

	for _, f := range mlFactors {
		byCategory[f.Category] = f
	}
	for _, rule := range ruleFactors {
		if ml, ok := byCategory[rule.Category]; ok {
			merged := rule
			merged.ImpactAmount = ml.ImpactAmount
			merged.ImpactPercent = ml.ImpactPercent
			if severityRank[ml.Severity] < severityRank[rule.Severity] {
				merged.Severity = ml.Severity
			}
			merged.Source = model.SourceBoth
			byCategory[rule.Category] = merged
			continue
		}
		byCategory[rule.Category] = rule
	}

	out := make([]model.Factor, 0, len(byCategory))
	for cat, f := range byCategory {
		f.Actionable = !nonActionable[cat]
		out = append(out, f)
	}

	sort.Slice(out, func(i, j int) bool {
		mi, mj := math.Abs(out[i].ImpactAmount), math.Abs(out[j].ImpactAmount)
		if mi != mj {
			return mi > mj
		}
		if severityRank[out[i].Severity] != severityRank[out[j].Severity] {
			return severityRank[out[i].Severity] < severityRank[out[j].Severity]
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// PotentialUplift sums the recoverable sales across all reported days: the
// magnitude of negative impacts on actionable, non-positive factors.
func PotentialUplift(days []model.AnomalyReport) float64 {
	var uplift float64
	for _, day := range days {
		for _, f := range day.Factors {
			if f.Actionable && !f.Positive && f.ImpactAmount < 0 {
				uplift += -f.ImpactAmount
			}
		}
	}
	return uplift
}

// Describe renders a one-line recommendation for a factor. Deterministic
// wording keyed by category; quantified when an impact is known.
func Describe(f model.Factor) string {
	if f.ImpactAmount != 0 {
		return fmt.Sprintf("%s: impact %.0f IDR (%.1f%% of expected sales)",
			f.Label, f.ImpactAmount, f.ImpactPercent)
	}
	return f.Label
}

package model

import "time"

// Baseline is the robust per-period sales baseline: median total sales and
// normal-consistent MAD. Computed once per (restaurant, period) and reused
// for every day's anomaly test.
type Baseline struct {
	Median float64 `json:"median"`
	MAD    float64 `json:"mad"` // scaled by 1.4826
	Days   int     `json:"days"`
}

// AnomalyDay is a RestaurantDay flagged as anomalously low by the detector.
type AnomalyDay struct {
	Day      *RestaurantDay `json:"-"`
	Date     time.Time      `json:"date"`
	Actual   float64        `json:"actual_sales"`
	Expected float64        `json:"baseline_sales"`
	Severity float64        `json:"severity"` // (baseline - actual) / baseline
}

// AttributionEntry is one feature's share of a day's prediction gap.
// Contributions across all entries plus the residual sum to
// actual_sales - predicted_sales.
type AttributionEntry struct {
	Feature         string  `json:"feature"`
	Contribution    float64 `json:"contribution"`
	ContributionPct float64 `json:"contribution_pct"` // relative to predicted sales
}

// Severity tiers for merged factors. Fixed lookup, never learned.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// FactorSource records which side of the engine produced a factor.
type FactorSource string

const (
	SourceML   FactorSource = "ml"
	SourceRule FactorSource = "rule"
	SourceBoth FactorSource = "both"
)

// FactorCategory keys deduplication: two factors with the same category are
// the same underlying cause and must be merged.
type FactorCategory string

const (
	CategoryGrabOffline   FactorCategory = "grab_offline"
	CategoryGojekOffline  FactorCategory = "gojek_offline"
	CategoryWeather       FactorCategory = "weather"
	CategoryHoliday       FactorCategory = "holiday"
	CategoryCalendar      FactorCategory = "calendar"
	CategorySeason        FactorCategory = "season"
	CategoryMarketing     FactorCategory = "marketing"
	CategoryCancellations FactorCategory = "cancellations"
	CategoryOperations    FactorCategory = "operations"
	CategoryDataQuality   FactorCategory = "data_quality"
)

// Factor is the merged, human-facing explanation unit.
type Factor struct {
	Label         string         `json:"label"`
	Category      FactorCategory `json:"category"`
	Severity      Severity       `json:"severity"`
	ImpactAmount  float64        `json:"impact_amount"`  // currency, negative = lost sales
	ImpactPercent float64        `json:"impact_percent"` // relative to the day's expected sales
	Actionable    bool           `json:"actionable"`
	Positive      bool           `json:"positive,omitempty"` // informational upside, e.g. healthy ROAS
	Source        FactorSource   `json:"source"`
}

// AnomalyReport is one explained anomalous day.
type AnomalyReport struct {
	Date           time.Time `json:"date"`
	ActualSales    float64   `json:"actual_sales"`
	PredictedSales float64   `json:"predicted_sales"` // 0 in degraded mode
	BaselineSales  float64   `json:"baseline_sales"`
	Severity       float64   `json:"severity"`
	DegradedMode   bool      `json:"degraded_mode"`
	Factors        []Factor  `json:"factors"`

	Attribution []AttributionEntry `json:"attribution,omitempty"`
	Residual    float64            `json:"residual,omitempty"`
}

// PeriodSummary describes the analyzed window.
type PeriodSummary struct {
	RestaurantID   string    `json:"restaurant_id"`
	RestaurantName string    `json:"restaurant_name"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	Days           int       `json:"days"`
	Baseline       Baseline  `json:"baseline"`
	TotalSales     float64   `json:"total_sales"`
	FraudRemoved   float64   `json:"fraud_removed"`
	AnomalyCount   int       `json:"anomaly_count"`
}

// AnalysisReport is the full output of one analyze call. Consumers must
// preserve ordering and numeric values unmodified.
type AnalysisReport struct {
	RunID                    string          `json:"run_id"`
	Period                   PeriodSummary   `json:"period"`
	AnomalyDays              []AnomalyReport `json:"anomaly_days"`
	AggregatePotentialUplift float64         `json:"aggregate_potential_uplift"`
	Narrative                string          `json:"narrative,omitempty"`
}

// AnalysisRun is the stored record of an analyze call.
type AnalysisRun struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurant_id"`
	Start        time.Time       `json:"start"`
	End          time.Time       `json:"end"`
	Status       string          `json:"status"`
	Report       *AnalysisReport `json:"report,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

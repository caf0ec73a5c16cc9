package detective

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balidash/detective-cli/internal/model"
)

func quietDay(d int) model.RestaurantDay {
	return model.RestaurantDay{
		RestaurantID: "resto-1",
		Date:         time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC),
		Records: []model.DailyPlatformRecord{
			{Platform: model.PlatformGrab, Sales: 2500000, Orders: 100, OfflineRatio: 5},
			{Platform: model.PlatformGojek, Sales: 1800000, Orders: 80, OfflineRatio: 5},
		},
	}
}

func findCategory(factors []model.Factor, cat model.FactorCategory) *model.Factor {
	for i := range factors {
		if factors[i].Category == cat {
			return &factors[i]
		}
	}
	return nil
}

func TestEvaluate_QuietDayNoFactors(t *testing.T) {
	day := quietDay(14)
	pctx := NewPeriodContext([]model.RestaurantDay{day})
	assert.Empty(t, Evaluate(&day, pctx))
}

func TestEvaluate_OfflineCritical(t *testing.T) {
	days := []model.RestaurantDay{quietDay(12), quietDay(13), quietDay(14)}
	days[2].Records[0].OfflineRatio = 300 // Grab outage

	pctx := NewPeriodContext(days)
	factors := Evaluate(&days[2], pctx)

	f := findCategory(factors, model.CategoryGrabOffline)
	require.NotNil(t, f)
	assert.Equal(t, model.SeverityCritical, f.Severity)
	assert.True(t, f.Actionable)
	assert.Equal(t, model.SourceRule, f.Source)
	assert.Contains(t, f.Label, "offline on Grab for 300%")

	assert.Nil(t, findCategory(factors, model.CategoryGojekOffline))
}

func TestEvaluate_OfflineBelowFloorIgnored(t *testing.T) {
	// 15% offline is above 1.5x a 5% average but below the absolute floor.
	days := []model.RestaurantDay{quietDay(12), quietDay(13), quietDay(14)}
	days[2].Records[0].OfflineRatio = 15

	pctx := NewPeriodContext(days)
	assert.Nil(t, findCategory(Evaluate(&days[2], pctx), model.CategoryGrabOffline))
}

func TestEvaluate_Rain(t *testing.T) {
	day := quietDay(14)
	day.Weather = &model.Weather{PrecipMM: 10.0}
	pctx := NewPeriodContext([]model.RestaurantDay{day})

	f := findCategory(Evaluate(&day, pctx), model.CategoryWeather)
	require.NotNil(t, f)
	assert.Equal(t, model.SeverityWarning, f.Severity)
	assert.False(t, f.Actionable)
	assert.Equal(t, "Heavy rain (10.0mm)", f.Label)

	day.Weather.PrecipMM = 4.9
	assert.Nil(t, findCategory(Evaluate(&day, pctx), model.CategoryWeather))
}

func TestEvaluate_ModerateRainInfo(t *testing.T) {
	day := quietDay(14)
	day.Weather = &model.Weather{PrecipMM: 7}
	pctx := NewPeriodContext([]model.RestaurantDay{day})

	f := findCategory(Evaluate(&day, pctx), model.CategoryWeather)
	require.NotNil(t, f)
	assert.Equal(t, model.SeverityInfo, f.Severity)
	assert.False(t, f.Actionable)
	assert.Equal(t, "Moderate rain (7.0mm)", f.Label)

	// The bands do not overlap: 9.9mm is still info, 10mm tips to warning.
	day.Weather.PrecipMM = 9.9
	f = findCategory(Evaluate(&day, pctx), model.CategoryWeather)
	require.NotNil(t, f)
	assert.Equal(t, model.SeverityInfo, f.Severity)
}

func TestEvaluate_Holiday(t *testing.T) {
	day := quietDay(14)
	day.Holiday = &model.Holiday{Name: "Hari Suci Nyepi", Category: "religious"}
	pctx := NewPeriodContext([]model.RestaurantDay{day})

	f := findCategory(Evaluate(&day, pctx), model.CategoryHoliday)
	require.NotNil(t, f)
	assert.Equal(t, model.SeverityInfo, f.Severity)
	assert.False(t, f.Actionable)
	assert.Equal(t, "Hari Suci Nyepi (religious holiday)", f.Label)
}

func TestEvaluate_ROAS(t *testing.T) {
	day := quietDay(14)
	day.Records[0].AdsSpend = 100000
	day.Records[0].AdsSales = 150000 // ROAS 1.5
	pctx := NewPeriodContext([]model.RestaurantDay{day})

	f := findCategory(Evaluate(&day, pctx), model.CategoryMarketing)
	require.NotNil(t, f)
	assert.Equal(t, model.SeverityWarning, f.Severity)
	assert.False(t, f.Positive)
	assert.Contains(t, f.Label, "ROAS 1.5")

	day.Records[0].AdsSales = 1200000 // ROAS 12
	f = findCategory(Evaluate(&day, pctx), model.CategoryMarketing)
	require.NotNil(t, f)
	assert.Equal(t, model.SeverityInfo, f.Severity)
	assert.True(t, f.Positive)

	day.Records[0].AdsSales = 450000 // ROAS 4.5, healthy middle ground
	assert.Nil(t, findCategory(Evaluate(&day, pctx), model.CategoryMarketing))
}

func TestEvaluate_Cancellations_WorstPlatform(t *testing.T) {
	day := quietDay(14)
	day.Records[0].Cancelled = 20 // Grab 20%
	day.Records[1].Cancelled = 24 // Gojek 30%
	pctx := NewPeriodContext([]model.RestaurantDay{day})

	f := findCategory(Evaluate(&day, pctx), model.CategoryCancellations)
	require.NotNil(t, f)
	assert.Contains(t, f.Label, "Gojek (30% of orders)")
}

func TestEvaluate_Operations_Combined(t *testing.T) {
	day := quietDay(14)
	day.Records[0].PrepMinutes = 40
	day.Records[1].PrepMinutes = 40
	day.Records[0].DeliveryMinutes = 50
	day.Records[1].DeliveryMinutes = 50
	pctx := NewPeriodContext([]model.RestaurantDay{day})

	factors := Evaluate(&day, pctx)
	f := findCategory(factors, model.CategoryOperations)
	require.NotNil(t, f)
	assert.Contains(t, f.Label, "preparation averaged 40 minutes")
	assert.Contains(t, f.Label, "delivery averaged 50 minutes")

	// A single merged factor per category, never two.
	count := 0
	for _, x := range factors {
		if x.Category == model.CategoryOperations {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestEvaluate_FraudInfo(t *testing.T) {
	day := quietDay(14)
	day.Fraud = model.FraudAdjustment{Orders: 10, Amount: 200000}
	pctx := NewPeriodContext([]model.RestaurantDay{day})

	f := findCategory(Evaluate(&day, pctx), model.CategoryDataQuality)
	require.NotNil(t, f)
	assert.Equal(t, model.SeverityInfo, f.Severity)
	assert.Equal(t, "10 fraudulent orders (200000 IDR) removed before analysis", f.Label)
}

func TestEvaluate_Deterministic(t *testing.T) {
	day := quietDay(14)
	day.Records[0].OfflineRatio = 300
	day.Weather = &model.Weather{PrecipMM: 12.4}
	day.Holiday = &model.Holiday{Name: "Nyepi", Category: "religious"}
	pctx := NewPeriodContext([]model.RestaurantDay{day})

	a := Evaluate(&day, pctx)
	b := Evaluate(&day, pctx)
	assert.Equal(t, a, b)
}

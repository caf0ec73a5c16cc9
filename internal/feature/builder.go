// Package feature converts RestaurantDays into fixed-schema numeric vectors
// for the attribution model. The schema is versioned and ordered; ad-hoc
// per-day field sets are not allowed.
package feature

import (
	"time"

	"github.com/balidash/detective-cli/internal/model"
	"github.com/balidash/detective-cli/pkg/tourist"
)

// weatherSentinel marks a weather value whose fetch failed. Paired with the
// weather_missing flag so the model can discount it instead of reading an
// imputed zero as a dry, windless day.
const weatherSentinel = -1

// Builder turns days into vectors. Operational timing is encoded as percent
// deviation from the period mean, so vectors compare across restaurants
// with different absolute prep and delivery baselines.
type Builder struct {
	season *tourist.Season

	prepMean       float64
	deliveryMean   float64
	driverWaitMean float64
}

// NewBuilder computes the period's timing means from days and returns a
// builder scoped to that period. A nil season falls back to the compiled-in
// arrival table.
func NewBuilder(days []model.RestaurantDay, season *tourist.Season) *Builder {
	if season == nil {
		season = tourist.Default()
	}
	b := &Builder{season: season}
	b.prepMean = timingMean(days, func(r *model.DailyPlatformRecord) float64 { return r.PrepMinutes })
	b.deliveryMean = timingMean(days, func(r *model.DailyPlatformRecord) float64 { return r.DeliveryMinutes })
	b.driverWaitMean = timingMean(days, func(r *model.DailyPlatformRecord) float64 { return r.DriverWaitMinutes })
	return b
}

// Build emits the day's feature vector in schema order.
func (b *Builder) Build(day *model.RestaurantDay) Vector {
	v := make(Vector, Count())

	v[Index(DayOfWeek)] = float64(ordinalWeekday(day.Date))
	if wd := day.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
		v[Index(IsWeekend)] = 1
	}
	if day.Holiday != nil {
		v[Index(IsHoliday)] = 1
		if day.Holiday.Category == "religious" {
			v[Index(HolidayReligious)] = 1
		}
	}

	if day.Weather != nil {
		v[Index(PrecipMM)] = day.Weather.PrecipMM
		v[Index(TempC)] = day.Weather.TempC
		v[Index(WindKPH)] = day.Weather.WindKPH
	} else {
		v[Index(PrecipMM)] = weatherSentinel
		v[Index(TempC)] = weatherSentinel
		v[Index(WindKPH)] = weatherSentinel
		v[Index(WeatherMissing)] = 1
	}

	if rec := day.Record(model.PlatformGrab); rec != nil {
		v[Index(GrabOffline)] = rec.OfflineRatio
		v[Index(GrabCancelRate)] = cancelRate(rec)
	}
	if rec := day.Record(model.PlatformGojek); rec != nil {
		v[Index(GojekOffline)] = rec.OfflineRatio
		v[Index(GojekCancelRate)] = cancelRate(rec)
	}

	spend := day.TotalAdsSpend()
	v[Index(AdsSpend)] = spend
	v[Index(AdsSales)] = day.TotalAdsSales()
	if spend > 0 {
		v[Index(ROAS)] = day.TotalAdsSales() / spend
	} else {
		// ROAS is undefined without spend; 0 plus the flag, never NaN.
		v[Index(AdsOff)] = 1
	}

	v[Index(PrepDeviation)] = deviationPct(avgTiming(day, func(r *model.DailyPlatformRecord) float64 { return r.PrepMinutes }), b.prepMean)
	v[Index(DeliveryDeviation)] = deviationPct(avgTiming(day, func(r *model.DailyPlatformRecord) float64 { return r.DeliveryMinutes }), b.deliveryMean)
	v[Index(DriverWaitDeviation)] = deviationPct(avgTiming(day, func(r *model.DailyPlatformRecord) float64 { return r.DriverWaitMinutes }), b.driverWaitMean)

	v[Index(FraudOrders)] = float64(day.Fraud.Orders)
	v[Index(FraudAmount)] = day.Fraud.Amount

	v[Index(TouristSeason)] = b.season.Coefficient(int(day.Date.Month()))

	return v
}

// Matrix builds vectors for a slice of days, row-aligned with the input.
func (b *Builder) Matrix(days []model.RestaurantDay) [][]float64 {
	out := make([][]float64, len(days))
	for i := range days {
		out[i] = b.Build(&days[i])
	}
	return out
}

// ordinalWeekday maps Monday to 0 through Sunday to 6.
func ordinalWeekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func cancelRate(rec *model.DailyPlatformRecord) float64 {
	if rec.Orders == 0 {
		return 0
	}
	return float64(rec.Cancelled) / float64(rec.Orders)
}

// avgTiming averages a timing field across the day's platforms, ignoring
// platforms that report zero (absent measurement, not an instant delivery).
func avgTiming(day *model.RestaurantDay, get func(*model.DailyPlatformRecord) float64) float64 {
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

func timingMean(days []model.RestaurantDay, get func(*model.DailyPlatformRecord) float64) float64 {
	var sum float64
	var n int
	for i := range days {
		if v := avgTiming(&days[i], get); v > 0 {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func deviationPct(value, mean float64) float64 {
	if mean == 0 || value == 0 {
		return 0
	}
	return (value - mean) / mean * 100
}

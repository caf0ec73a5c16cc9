package feature

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balidash/detective-cli/internal/model"
)

func restaurantDay(date time.Time, grab, gojek *model.DailyPlatformRecord) model.RestaurantDay {
	d := model.RestaurantDay{RestaurantID: "resto-1", Date: date}
	if grab != nil {
		grab.Platform = model.PlatformGrab
		d.Records = append(d.Records, *grab)
	}
	if gojek != nil {
		gojek.Platform = model.PlatformGojek
		d.Records = append(d.Records, *gojek)
	}
	return d
}

func TestSchema_NoCircularFeatures(t *testing.T) {
	for _, forbidden := range []string{"total_sales", "total_orders", "average_order_value", "avg_order_value"} {
		assert.Equal(t, -1, Index(forbidden), "schema must not contain %s", forbidden)
	}
}

func TestSchema_StableOrder(t *testing.T) {
	names := Names()
	assert.Equal(t, Count(), len(names))
	assert.Equal(t, DayOfWeek, names[0])
	assert.Equal(t, TouristSeason, names[len(names)-1])
	for i, name := range names {
		assert.Equal(t, i, Index(name))
	}
}

func TestBuild_Calendar(t *testing.T) {
	// 2025-03-14 is a Friday, 2025-03-15 a Saturday.
	friday := restaurantDay(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), &model.DailyPlatformRecord{Sales: 100}, nil)
	saturday := restaurantDay(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), &model.DailyPlatformRecord{Sales: 100}, nil)
	saturday.Holiday = &model.Holiday{Name: "Nyepi", Category: "religious"}

	b := NewBuilder([]model.RestaurantDay{friday, saturday}, nil)

	fv := b.Build(&friday)
	assert.Equal(t, 4.0, fv.Get(DayOfWeek))
	assert.Equal(t, 0.0, fv.Get(IsWeekend))
	assert.Equal(t, 0.0, fv.Get(IsHoliday))

	sv := b.Build(&saturday)
	assert.Equal(t, 5.0, sv.Get(DayOfWeek))
	assert.Equal(t, 1.0, sv.Get(IsWeekend))
	assert.Equal(t, 1.0, sv.Get(IsHoliday))
	assert.Equal(t, 1.0, sv.Get(HolidayReligious))
}

func TestBuild_WeatherMissingSentinel(t *testing.T) {
	withWeather := restaurantDay(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), &model.DailyPlatformRecord{Sales: 100}, nil)
	withWeather.Weather = &model.Weather{PrecipMM: 12.4, TempC: 26.5, WindKPH: 22.3}
	without := restaurantDay(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), &model.DailyPlatformRecord{Sales: 100}, nil)

	b := NewBuilder([]model.RestaurantDay{withWeather, without}, nil)

	wv := b.Build(&withWeather)
	assert.InDelta(t, 12.4, wv.Get(PrecipMM), 1e-9)
	assert.Equal(t, 0.0, wv.Get(WeatherMissing))

	mv := b.Build(&without)
	assert.Equal(t, -1.0, mv.Get(PrecipMM))
	assert.Equal(t, -1.0, mv.Get(TempC))
	assert.Equal(t, -1.0, mv.Get(WindKPH))
	assert.Equal(t, 1.0, mv.Get(WeatherMissing))
}

func TestBuild_PlatformHealth(t *testing.T) {
	d := restaurantDay(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		&model.DailyPlatformRecord{Sales: 100, Orders: 100, Cancelled: 20, OfflineRatio: 300},
		&model.DailyPlatformRecord{Sales: 100, Orders: 50, Cancelled: 5, OfflineRatio: 10},
	)
	b := NewBuilder([]model.RestaurantDay{d}, nil)

	v := b.Build(&d)
	assert.InDelta(t, 300.0, v.Get(GrabOffline), 1e-9)
	assert.InDelta(t, 0.2, v.Get(GrabCancelRate), 1e-9)
	assert.InDelta(t, 10.0, v.Get(GojekOffline), 1e-9)
	assert.InDelta(t, 0.1, v.Get(GojekCancelRate), 1e-9)
}

func TestBuild_ROASAndAdsOff(t *testing.T) {
	withAds := restaurantDay(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		&model.DailyPlatformRecord{Sales: 100, AdsSpend: 100000, AdsSales: 450000}, nil)
	noAds := restaurantDay(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
		&model.DailyPlatformRecord{Sales: 100}, nil)

	b := NewBuilder([]model.RestaurantDay{withAds, noAds}, nil)

	av := b.Build(&withAds)
	assert.InDelta(t, 4.5, av.Get(ROAS), 1e-9)
	assert.Equal(t, 0.0, av.Get(AdsOff))

	nv := b.Build(&noAds)
	assert.Equal(t, 0.0, nv.Get(ROAS))
	assert.Equal(t, 1.0, nv.Get(AdsOff))
}

func TestBuild_TimingDeviationFromPeriodMean(t *testing.T) {
	days := []model.RestaurantDay{
		restaurantDay(time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), &model.DailyPlatformRecord{Sales: 100, PrepMinutes: 20}, nil),
		restaurantDay(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), &model.DailyPlatformRecord{Sales: 100, PrepMinutes: 20}, nil),
		restaurantDay(time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC), &model.DailyPlatformRecord{Sales: 100, PrepMinutes: 32}, nil),
	}
	b := NewBuilder(days, nil)

	// Mean is 24; 32 is +33.3%, 20 is -16.7%. Absolute minutes never appear.
	slow := b.Build(&days[2])
	assert.InDelta(t, 33.33, slow.Get(PrepDeviation), 0.01)
	normal := b.Build(&days[0])
	assert.InDelta(t, -16.67, normal.Get(PrepDeviation), 0.01)
}

func TestBuild_FraudFeatures(t *testing.T) {
	d := restaurantDay(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), &model.DailyPlatformRecord{Sales: 100}, nil)
	d.Fraud = model.FraudAdjustment{Orders: 10, Amount: 200000}

	b := NewBuilder([]model.RestaurantDay{d}, nil)
	v := b.Build(&d)
	assert.Equal(t, 10.0, v.Get(FraudOrders))
	assert.InDelta(t, 200000.0, v.Get(FraudAmount), 1e-9)
}

func TestMatrix_RowAligned(t *testing.T) {
	days := []model.RestaurantDay{
		restaurantDay(time.Date(2025, 3, 13, 0, 0, 0, 0, time.UTC), &model.DailyPlatformRecord{Sales: 100, OfflineRatio: 5}, nil),
		restaurantDay(time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), &model.DailyPlatformRecord{Sales: 100, OfflineRatio: 300}, nil),
	}
	b := NewBuilder(days, nil)
	m := b.Matrix(days)

	require.Len(t, m, 2)
	assert.Len(t, m[0], Count())
	assert.InDelta(t, 5.0, Vector(m[0]).Get(GrabOffline), 1e-9)
	assert.InDelta(t, 300.0, Vector(m[1]).Get(GrabOffline), 1e-9)
}

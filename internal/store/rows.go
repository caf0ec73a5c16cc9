package store

import (
	"time"

	"github.com/balidash/detective-cli/internal/model"
)

// platformRow is a raw per-platform stats row before normalization. Each
// platform export carries its own column shape (Grab reports an offline_rate
// percentage, Gojek reports closed minutes); Normalize folds both into the
// common DailyPlatformRecord at the store boundary.
type platformRow interface {
	Normalize(restaurantID string, date time.Time) model.DailyPlatformRecord
}

// grabRow mirrors one grab_stats row.
type grabRow struct {
	Sales           float64
	Orders          int
	AdsSpend        float64
	AdsSales        float64
	Rating          float64
	Cancelled       int
	OfflineRate     float64 // percent, can exceed 100 on cascading outages
	DriverWaitSecs  float64
	PrepMinutes     float64
	DeliveryMinutes float64
}

func (r grabRow) Normalize(restaurantID string, date time.Time) model.DailyPlatformRecord {
	return model.DailyPlatformRecord{
		RestaurantID:      restaurantID,
		Platform:          model.PlatformGrab,
		Date:              date,
		Sales:             r.Sales,
		Orders:            r.Orders,
		AdsSpend:          r.AdsSpend,
		AdsSales:          r.AdsSales,
		Rating:            r.Rating,
		Cancelled:         r.Cancelled,
		OfflineRatio:      r.OfflineRate,
		PrepMinutes:       r.PrepMinutes,
		DeliveryMinutes:   r.DeliveryMinutes,
		DriverWaitMinutes: r.DriverWaitSecs / 60,
	}
}

// gojekRow mirrors one gojek_stats row.
type gojekRow struct {
	Sales          float64
	Orders         int
	AdsSpend       float64
	AdsSales       float64
	Rating         float64
	Cancelled      int
	Lost           int
	ClosedMinutes  float64
	DriverWaitMins float64
	PrepMinutes    float64
	DeliveryMins   float64
}

// gojekOpenMinutes is the nominal daily open window used to express closed
// time as a ratio comparable with Grab's offline_rate.
const gojekOpenMinutes = 14 * 60

func (r gojekRow) Normalize(restaurantID string, date time.Time) model.DailyPlatformRecord {
	return model.DailyPlatformRecord{
		RestaurantID:      restaurantID,
		Platform:          model.PlatformGojek,
		Date:              date,
		Sales:             r.Sales,
		Orders:            r.Orders,
		AdsSpend:          r.AdsSpend,
		AdsSales:          r.AdsSales,
		Rating:            r.Rating,
		Cancelled:         r.Cancelled + r.Lost,
		OfflineRatio:      r.ClosedMinutes / gojekOpenMinutes * 100,
		PrepMinutes:       r.PrepMinutes,
		DeliveryMinutes:   r.DeliveryMins,
		DriverWaitMinutes: r.DriverWaitMins,
	}
}

package model

import "time"

// Platform identifies a delivery platform.
type Platform string

const (
	PlatformGrab  Platform = "grab"
	PlatformGojek Platform = "gojek"
)

// Platforms lists every platform in a fixed, deterministic order.
func Platforms() []Platform {
	return []Platform{PlatformGrab, PlatformGojek}
}

// DailyPlatformRecord is one (restaurant, platform, date) row as delivered by
// the platform export. Records are immutable once ingested; the engine treats
// them as read-only input.
type DailyPlatformRecord struct {
	RestaurantID string    `json:"restaurant_id"`
	Platform     Platform  `json:"platform"`
	Date         time.Time `json:"date"`

	Sales        float64 `json:"sales"`
	Orders       int     `json:"orders"`
	AdsSpend     float64 `json:"ads_spend"`
	AdsSales     float64 `json:"ads_sales"`
	Rating       float64 `json:"rating"`
	Cancelled    int     `json:"cancelled"`
	OfflineRatio float64 `json:"offline_ratio"` // percent of scheduled time unavailable; can exceed 100 on cascading outages

	PrepMinutes       float64 `json:"prep_minutes"`
	DeliveryMinutes   float64 `json:"delivery_minutes"`
	DriverWaitMinutes float64 `json:"driver_wait_minutes"`
}

// Restaurant is the subject of an analysis call.
type Restaurant struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Area      string  `json:"area,omitempty"`
}

// Weather is one day's observed conditions at the restaurant's location.
type Weather struct {
	PrecipMM float64 `json:"precip_mm"`
	TempC    float64 `json:"temp_c"`
	WindKPH  float64 `json:"wind_kph"`
}

// Holiday tags a calendar date.
type Holiday struct {
	Name     string `json:"name"`
	Category string `json:"category"` // "national", "religious", "local"
}

// FraudAdjustment records orders removed from a day before any analysis.
type FraudAdjustment struct {
	Orders int     `json:"orders"`
	Amount float64 `json:"amount"`
}

// RestaurantDay merges all platforms' records for one date with external
// context. It is derived per analysis run and never persisted. ActualSales
// and ActualOrders are already fraud-adjusted; RawSales keeps the unadjusted
// figure for audit only.
type RestaurantDay struct {
	RestaurantID string                `json:"restaurant_id"`
	Date         time.Time             `json:"date"`
	Records      []DailyPlatformRecord `json:"records"`

	RawSales     float64 `json:"raw_sales"`
	ActualSales  float64 `json:"actual_sales"`
	ActualOrders int     `json:"actual_orders"`

	Weather *Weather        `json:"weather,omitempty"` // nil when the fetch failed or timed out
	Holiday *Holiday        `json:"holiday,omitempty"`
	Fraud   FraudAdjustment `json:"fraud"`
}

// Record returns the day's record for the given platform, or nil.
func (d *RestaurantDay) Record(p Platform) *DailyPlatformRecord {
	for i := range d.Records {
		if d.Records[i].Platform == p {
			return &d.Records[i]
		}
	}
	return nil
}

// TotalAdsSpend sums ad spend across platforms.
func (d *RestaurantDay) TotalAdsSpend() float64 {
	var sum float64
	for i := range d.Records {
		sum += d.Records[i].AdsSpend
	}
	return sum
}

// TotalAdsSales sums ad-attributed sales across platforms.
func (d *RestaurantDay) TotalAdsSales() float64 {
	var sum float64
	for i := range d.Records {
		sum += d.Records[i].AdsSales
	}
	return sum
}

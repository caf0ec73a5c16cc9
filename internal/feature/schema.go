package feature

// SchemaVersion identifies the feature layout. Bump whenever a field is
// added, removed, or reordered; model artifacts and reports built against
// different versions must never be mixed.
const SchemaVersion = "v1"

// Feature names, in schema order.
const (
	DayOfWeek        = "day_of_week"
	IsWeekend        = "is_weekend"
	IsHoliday        = "is_holiday"
	HolidayReligious = "holiday_religious"

	PrecipMM       = "precip_mm"
	TempC          = "temp_c"
	WindKPH        = "wind_kph"
	WeatherMissing = "weather_missing"

	GrabOffline     = "grab_offline_ratio"
	GojekOffline    = "gojek_offline_ratio"
	GrabCancelRate  = "grab_cancel_rate"
	GojekCancelRate = "gojek_cancel_rate"

	AdsSpend = "ads_spend"
	AdsSales = "ads_sales"
	ROAS     = "roas"
	AdsOff   = "ads_off"

	PrepDeviation       = "prep_deviation_pct"
	DeliveryDeviation   = "delivery_deviation_pct"
	DriverWaitDeviation = "driver_wait_deviation_pct"

	FraudOrders = "fraud_orders"
	FraudAmount = "fraud_amount"

	TouristSeason = "tourist_season_coeff"
)

// schema is the fixed, ordered field list. The target (total sales) and its
// algebraic components (total orders, average order value) are deliberately
// absent: a vector containing them would let the model predict sales from
// sales, and every attribution downstream would be meaningless.
var schema = []string{
	DayOfWeek,
	IsWeekend,
	IsHoliday,
	HolidayReligious,
	PrecipMM,
	TempC,
	WindKPH,
	WeatherMissing,
	GrabOffline,
	GojekOffline,
	GrabCancelRate,
	GojekCancelRate,
	AdsSpend,
	AdsSales,
	ROAS,
	AdsOff,
	PrepDeviation,
	DeliveryDeviation,
	DriverWaitDeviation,
	FraudOrders,
	FraudAmount,
	TouristSeason,
}

// index maps feature name to its position in the vector.
var index = func() map[string]int {
	m := make(map[string]int, len(schema))
	for i, name := range schema {
		m[name] = i
	}
	return m
}()

// Names returns the schema field names in vector order. Callers must not
// mutate the returned slice.
func Names() []string { return schema }

// Count returns the vector length.
func Count() int { return len(schema) }

// Index returns a feature's position, or -1 for an unknown name.
func Index(name string) int {
	if i, ok := index[name]; ok {
		return i
	}
	return -1
}

// Vector is one day's features in schema order.
type Vector []float64

// Get returns the value of a named feature.
func (v Vector) Get(name string) float64 {
	i := Index(name)
	if i < 0 || i >= len(v) {
		return 0
	}
	return v[i]
}

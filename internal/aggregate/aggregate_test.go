package aggregate

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/balidash/detective-cli/internal/model"
	"github.com/balidash/detective-cli/pkg/fraud"
)

func day(d int) time.Time {
	return time.Date(2025, 3, d, 0, 0, 0, 0, time.UTC)
}

func TestDays_MergesPlatformsByDate(t *testing.T) {
	days := Days(Inputs{
		RestaurantID: "resto-1",
		Records: []model.DailyPlatformRecord{
			{RestaurantID: "resto-1", Platform: model.PlatformGojek, Date: day(14), Sales: 1800000, Orders: 90},
			{RestaurantID: "resto-1", Platform: model.PlatformGrab, Date: day(14), Sales: 2500000, Orders: 120},
			{RestaurantID: "resto-1", Platform: model.PlatformGrab, Date: day(15), Sales: 2600000, Orders: 118},
		},
	})

	require.Len(t, days, 2)
	assert.Equal(t, day(14), days[0].Date)
	assert.Equal(t, day(15), days[1].Date)

	merged := days[0]
	assert.InDelta(t, 4300000.0, merged.ActualSales, 1e-9)
	assert.Equal(t, 210, merged.ActualOrders)
	require.Len(t, merged.Records, 2)
	// Platforms sort deterministically within a day.
	assert.Equal(t, model.PlatformGojek, merged.Records[0].Platform)
	assert.Equal(t, model.PlatformGrab, merged.Records[1].Platform)
}

func TestDays_FraudSubtractedOnce(t *testing.T) {
	reg, err := fraud.Parse(strings.NewReader(
		"restaurant_id,date,platform,orders,amount\nresto-1,2025-03-14,grab,10,200000\n"))
	require.NoError(t, err)

	days := Days(Inputs{
		RestaurantID: "resto-1",
		Records: []model.DailyPlatformRecord{
			{RestaurantID: "resto-1", Platform: model.PlatformGrab, Date: day(14), Sales: 1200000, Orders: 60},
		},
		Fraud: reg,
	})

	require.Len(t, days, 1)
	assert.InDelta(t, 1200000.0, days[0].RawSales, 1e-9)
	assert.InDelta(t, 1000000.0, days[0].ActualSales, 1e-9)
	assert.Equal(t, 50, days[0].ActualOrders)
	assert.InDelta(t, 200000.0, days[0].Fraud.Amount, 1e-9)
}

func TestDays_FraudNeverNegative(t *testing.T) {
	reg, err := fraud.Parse(strings.NewReader(
		"restaurant_id,date,platform,orders,amount\nresto-1,2025-03-14,grab,99,9000000\n"))
	require.NoError(t, err)

	days := Days(Inputs{
		RestaurantID: "resto-1",
		Records: []model.DailyPlatformRecord{
			{RestaurantID: "resto-1", Platform: model.PlatformGrab, Date: day(14), Sales: 500000, Orders: 20},
		},
		Fraud: reg,
	})

	require.Len(t, days, 1)
	assert.Zero(t, days[0].ActualSales)
	assert.Zero(t, days[0].ActualOrders)
}

func TestDays_AttachesContext(t *testing.T) {
	days := Days(Inputs{
		RestaurantID: "resto-1",
		Records: []model.DailyPlatformRecord{
			{RestaurantID: "resto-1", Platform: model.PlatformGrab, Date: day(14), Sales: 100},
			{RestaurantID: "resto-1", Platform: model.PlatformGrab, Date: day(15), Sales: 100},
		},
		Weather:  map[string]model.Weather{"2025-03-14": {PrecipMM: 12.4}},
		Holidays: map[string]model.Holiday{"2025-03-15": {Name: "Nyepi", Category: "religious"}},
	})

	require.Len(t, days, 2)
	require.NotNil(t, days[0].Weather)
	assert.InDelta(t, 12.4, days[0].Weather.PrecipMM, 1e-9)
	assert.Nil(t, days[0].Holiday)

	assert.Nil(t, days[1].Weather) // missing weather stays nil, no imputed zero
	require.NotNil(t, days[1].Holiday)
	assert.Equal(t, "Nyepi", days[1].Holiday.Name)
}

// Package aggregate merges per-platform daily records with external context
// into per-date RestaurantDay values. Fraud adjustments are applied here,
// once, so every downstream consumer (detector, feature builder, model)
// works from the same fraud-adjusted sales figure.
package aggregate

import (
	"sort"
	"time"

	"github.com/balidash/detective-cli/internal/model"
	"github.com/balidash/detective-cli/pkg/fraud"
)

const dateLayout = "2006-01-02"

// Inputs carries everything needed to assemble one period's days.
type Inputs struct {
	RestaurantID string
	Records      []model.DailyPlatformRecord

	// Weather and Holidays are keyed by date (2006-01-02). A nil Weather map
	// means the fetch failed for the whole period; individual missing dates
	// are equally fine. Either way the day carries a nil Weather pointer and
	// the feature builder encodes the missing sentinel.
	Weather  map[string]model.Weather
	Holidays map[string]model.Holiday

	Fraud *fraud.Registry
}

// Days groups records by date and returns RestaurantDays in ascending date
// order. Dates with no platform records at all do not appear; a gap in the
// export is absence of evidence, not a zero-sales day.
func Days(in Inputs) []model.RestaurantDay {
	byDate := make(map[string]*model.RestaurantDay)

	for _, rec := range in.Records {
		k := rec.Date.Format(dateLayout)
		day, ok := byDate[k]
		if !ok {
			day = &model.RestaurantDay{
				RestaurantID: in.RestaurantID,
				Date:         truncate(rec.Date),
			}
			byDate[k] = day
		}
		day.Records = append(day.Records, rec)
		day.RawSales += rec.Sales
		day.ActualOrders += rec.Orders
	}

	out := make([]model.RestaurantDay, 0, len(byDate))
	for k, day := range byDate {
		// Deterministic platform order inside the day.
		sort.Slice(day.Records, func(i, j int) bool {
			return day.Records[i].Platform < day.Records[j].Platform
		})

		if in.Fraud != nil {
			day.Fraud = in.Fraud.DayTotal(in.RestaurantID, day.Date)
		}
		day.ActualSales = day.RawSales - day.Fraud.Amount
		if day.ActualSales < 0 {
			day.ActualSales = 0
		}
		day.ActualOrders -= day.Fraud.Orders
		if day.ActualOrders < 0 {
			day.ActualOrders = 0
		}

		if w, ok := in.Weather[k]; ok {
			wc := w
			day.Weather = &wc
		}
		if h, ok := in.Holidays[k]; ok {
			hc := h
			day.Holiday = &hc
		}

		out = append(out, *day)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

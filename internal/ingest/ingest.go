// Package ingest parses daily platform export CSVs into normalized records.
// One row per (restaurant, platform, date); headers are matched by name so
// column order in the export does not matter.
package ingest

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/balidash/detective-cli/internal/model"
)

const dateLayout = "2006-01-02"

var requiredColumns = []string{"restaurant_id", "platform", "date", "sales", "orders"}

// optional numeric columns, zero when absent
var optionalColumns = []string{
	"ads_spend", "ads_sales", "rating", "cancelled", "offline_ratio",
	"prep_minutes", "delivery_minutes", "driver_wait_minutes",
}

// ParseCSV reads a platform export. Rows with an unknown platform or an
// unparseable date are skipped with a warning; a malformed numeric cell
// fails the whole file.
func ParseCSV(reader io.Reader) ([]model.DailyPlatformRecord, error) {
	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: read header")
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			return nil, eris.Errorf("ingest: missing column %q", name)
		}
	}

	var records []model.DailyPlatformRecord
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: line %d", line)
		}

		platform := model.Platform(strings.ToLower(row[cols["platform"]]))
		if platform != model.PlatformGrab && platform != model.PlatformGojek {
			zap.L().Warn("skipping row with unknown platform",
				zap.Int("line", line),
				zap.String("platform", string(platform)),
			)
			continue
		}

		date, err := time.Parse(dateLayout, row[cols["date"]])
		if err != nil {
			zap.L().Warn("skipping row with bad date",
				zap.Int("line", line),
				zap.String("date", row[cols["date"]]),
			)
			continue
		}

		rec := model.DailyPlatformRecord{
			RestaurantID: row[cols["restaurant_id"]],
			Platform:     platform,
			Date:         date.UTC(),
		}

		get := func(name string) (float64, error) {
			idx, ok := cols[name]
			if !ok || row[idx] == "" {
				return 0, nil
			}
			v, err := strconv.ParseFloat(row[idx], 64)
			if err != nil {
				return 0, eris.Wrapf(err, "ingest: line %d column %s", line, name)
			}
			return v, nil
		}

		if rec.Sales, err = get("sales"); err != nil {
			return nil, err
		}
		orders, err := get("orders")
		if err != nil {
			return nil, err
		}
		rec.Orders = int(orders)

		for _, name := range optionalColumns {
			v, err := get(name)
			if err != nil {
				return nil, err
			}
			switch name {
			case "ads_spend":
				rec.AdsSpend = v
			case "ads_sales":
				rec.AdsSales = v
			case "rating":
				rec.Rating = v
			case "cancelled":
				rec.Cancelled = int(v)
			case "offline_ratio":
				rec.OfflineRatio = v
			case "prep_minutes":
				rec.PrepMinutes = v
			case "delivery_minutes":
				rec.DeliveryMinutes = v
			case "driver_wait_minutes":
				rec.DriverWaitMinutes = v
			}
		}

		records = append(records, rec)
	}

	return records, nil
}

// Package tourist derives a monthly seasonality coefficient from foreign
// tourist arrival statistics. The coefficient feeds the feature schema so
// the attribution model can separate seasonal demand drift from operational
// problems.
package tourist

import (
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Season maps month (1-12) to a demand coefficient normalized around 1.0:
// values above 1 mean stronger-than-average tourist demand.
type Season struct {
	coeff [13]float64
}

// Coefficient returns the demand coefficient for a month. Out-of-range
// months return the neutral coefficient 1.0.
func (s *Season) Coefficient(month int) float64 {
	if month < 1 || month > 12 {
		return 1.0
	}
	return s.coeff[month]
}

// baliArrivals2024 holds monthly foreign arrivals to Bali (thousands) for
// 2024, the compiled-in fallback when no workbook is configured.
var baliArrivals2024 = [12]float64{
	430, 446, 493, 502, 544, 521, 625, 571, 540, 524, 459, 513,
}

// Default returns the season built from the compiled-in arrival table.
func Default() *Season {
	return fromArrivals(baliArrivals2024[:])
}

// LoadWorkbook reads monthly arrivals from an XLSX statistics workbook.
// Expected layout: one row per month with the month number in the first
// column and the arrival count in the second, after a single header row.
func LoadWorkbook(path, sheetName string) (*Season, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "tourist: open workbook")
	}

	var sheet *xlsx.Sheet
	if sheetName != "" {
		var ok bool
		sheet, ok = f.Sheet[sheetName]
		if !ok {
			return nil, eris.Errorf("tourist: sheet %q not found", sheetName)
		}
	} else {
		if len(f.Sheets) == 0 {
			return nil, eris.New("tourist: workbook has no sheets")
		}
		sheet = f.Sheets[0]
	}

	arrivals := make([]float64, 12)
	seen := 0
	for i, row := range sheet.Rows {
		if i == 0 || len(row.Cells) < 2 {
			continue
		}
		month, err := strconv.Atoi(strings.TrimSpace(row.Cells[0].String()))
		if err != nil || month < 1 || month > 12 {
			continue
		}
		count, err := strconv.ParseFloat(strings.TrimSpace(row.Cells[1].String()), 64)
		if err != nil || count <= 0 {
			continue
		}
		arrivals[month-1] = count
		seen++
	}
	if seen < 12 {
		return nil, eris.Errorf("tourist: workbook covered %d of 12 months", seen)
	}
	return fromArrivals(arrivals), nil
}

func fromArrivals(arrivals []float64) *Season {
	var sum float64
	for _, a := range arrivals {
		sum += a
	}
	mean := sum / float64(len(arrivals))

	s := &Season{}
	for m := 1; m <= 12; m++ {
		s.coeff[m] = arrivals[m-1] / mean
	}
	return s
}

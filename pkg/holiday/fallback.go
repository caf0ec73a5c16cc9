package holiday

import (
	"fmt"

	"github.com/balidash/detective-cli/internal/model"
)

// fixedHoliday is a holiday that falls on the same Gregorian date every year.
type fixedHoliday struct {
	month    int
	day      int
	name     string
	category string
}

// fixedCalendar lists the Indonesian holidays with fixed Gregorian dates.
// Movable observances (Nyepi, Idul Fitri, Waisak) shift every year and are
// only available through the API; the fallback deliberately omits them
// rather than guessing dates.
var fixedCalendar = []fixedHoliday{
	{1, 1, "Tahun Baru Masehi", "national"},
	{5, 1, "Hari Buruh Internasional", "national"},
	{6, 1, "Hari Lahir Pancasila", "national"},
	{8, 17, "Hari Kemerdekaan", "national"},
	{12, 25, "Hari Raya Natal", "religious"},
}

func fallbackCalendar(year int) map[string]model.Holiday {
	out := make(map[string]model.Holiday, len(fixedCalendar))
	for _, h := range fixedCalendar {
		date := fmt.Sprintf("%04d-%02d-%02d", year, h.month, h.day)
		out[date] = model.Holiday{Name: h.name, Category: h.category}
	}
	return out
}

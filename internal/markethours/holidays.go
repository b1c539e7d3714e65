package markethours

import (
	"fmt"
	"time"
)

// NSE trading holidays per year, as MM-DD strings (IST dates).
// Source: NSE India official holiday circulars. Extend per year; dates for a
// year not listed here are treated as regular trading days, so the table must
// be refreshed before each new year.
var nseHolidays = map[int][]string{
	2026: {
		"01-26", // Republic Day
		"02-17", // Mahashivratri (tentative)
		"03-14", // Holi
		"03-31", // Id-ul-Fitr (Eid) (tentative)
		"04-02", // Ram Navami (tentative)
		"04-06", // Mahavir Jayanti
		"04-10", // Good Friday
		"04-14", // Dr. Ambedkar Jayanti
		"05-01", // Maharashtra Day
		"06-07", // Bakrid / Eid ul-Adha (tentative)
		"07-06", // Muharram (tentative)
		"08-15", // Independence Day
		"08-16", // Janmashtami (tentative)
		"09-05", // Milad-un-Nabi (tentative)
		"10-02", // Mahatma Gandhi Jayanti
		"10-20", // Dussehra
		"10-21", // Dussehra (tentative)
		"11-05", // Diwali / Lakshmi Puja (tentative)
		"11-06", // Diwali Balipratipada (tentative)
		"11-07", // Bhai Dooj (tentative)
		"11-19", // Guru Nanak Jayanti
		"12-25", // Christmas
	},
}

// pre-computed "YYYY-MM-DD" → true
var holidaySet = func() map[string]bool {
	set := make(map[string]bool)
	for year, days := range nseHolidays {
		for _, md := range days {
			set[fmt.Sprintf("%d-%s", year, md)] = true
		}
	}
	return set
}()

// IsHoliday returns true if the date (in IST) is an NSE holiday.
func IsHoliday(t time.Time) bool {
	return holidaySet[TradingDate(t)]
}

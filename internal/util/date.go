package util

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	reWatsonDate = regexp.MustCompile(`^(\d{1,2})-([A-Za-z]{3,9})-(\d{2,4})$`)
	reMDYDate    = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	reSerialDate = regexp.MustCompile(`^\d{4,5}(?:\.\d+)?$`)

	months = map[string]time.Month{
		"jan": time.January, "january": time.January,
		"feb": time.February, "february": time.February,
		"mar": time.March, "march": time.March,
		"apr": time.April, "april": time.April,
		"may": time.May,
		"jun": time.June, "june": time.June,
		"jul": time.July, "july": time.July,
		"aug": time.August, "august": time.August,
		"sep": time.September, "sept": time.September, "september": time.September,
		"oct": time.October, "october": time.October,
		"nov": time.November, "november": time.November,
		"dec": time.December, "december": time.December,
	}

	isoLayouts = []string{
		"2006-01-02T15:04:05",
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}

	excelEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)
)

// DateOnly drops the clock and zone so calendar dates compare directly.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate understands the formats found in Watson invoices and price lists:
// "06-JAN-0026" (two digit year padded to four), "1/6/2026" (M/D/YYYY),
// ISO timestamps and Excel serial numbers.
func ParseDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}

	if m := reWatsonDate.FindStringSubmatch(s); m != nil {
		month, ok := months[strings.ToLower(m[2])]
		if ok {
			day, _ := strconv.Atoi(m[1])
			year, _ := strconv.Atoi(m[3])
			if year < 100 {
				year += 2000
			}
			return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), true
		}
	}

	if m := reMDYDate.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month >= 1 && month <= 12 {
			return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
		}
	}

	if reSerialDate.MatchString(s) {
		serial, err := strconv.ParseFloat(s, 64)
		if err == nil {
			return ExcelSerialDate(serial), true
		}
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOnly(t), true
		}
	}
	return time.Time{}, false
}

func ExcelSerialDate(serial float64) time.Time {
	days := int(serial)
	return excelEpoch.AddDate(0, 0, days)
}

func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

package tabular

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Metadata exports carry dates in whatever convention the submitting lab
// used. Numeric day/month order is ambiguous for values like 03/04/2011, so
// it is inferred per column: one value with a first component above 12
// commits the whole column to day-first.

var (
	numericDateRe = regexp.MustCompile(`^(\d{1,2})[/\-.](\d{1,2})[/\-.](\d{2,4})`)
	yearOnlyRe    = regexp.MustCompile(`^\d{4}$`)
	intervalRe    = regexp.MustCompile(`^(\d{4})\s*-\s*\d{4}$`)
)

var isoLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-01",
	"Jan 2 2006",
	"January 2 2006",
	"2 Jan 2006",
	"Jan 2006",
	"January 2006",
}

// InferDayFirst scans a column of raw date strings and reports whether the
// numeric values must be read day-first. Absent contrary evidence the
// month-first reading is kept.
func InferDayFirst(values []string) bool {
	for _, v := range values {
		m := numericDateRe.FindStringSubmatch(strings.TrimSpace(v))
		if m == nil {
			continue
		}
		if atoi(m[1]) > 12 {
			return true
		}
	}
	return false
}

// ParseDate parses one date string under the column's inferred day order.
// Year intervals ("2005-2010") resolve to the start of the interval, the
// convention used by anonymized collection dates. It returns an error when
// no supported form matches.
func ParseDate(raw string, dayFirst bool) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if m := intervalRe.FindStringSubmatch(s); m != nil {
		return time.Date(atoi(m[1]), 1, 1, 0, 0, 0, 0, time.UTC), nil
	}
	if yearOnlyRe.MatchString(s) {
		return time.Date(atoi(s), 1, 1, 0, 0, 0, 0, time.UTC), nil
	}
	if m := numericDateRe.FindStringSubmatch(s); m != nil {
		a, b, year := atoi(m[1]), atoi(m[2]), atoi(m[3])
		if year < 100 {
			year = windowYear(year)
		}
		day, month := b, a
		if dayFirst {
			day, month = a, b
		}
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, fmt.Errorf("numeric date out of range: %q", raw)
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date: %q", raw)
}

// windowYear expands a two-digit year. Subject birth dates dominate the
// two-digit inputs, so years after the current one wrap into the previous
// century instead of the future.
func windowYear(yy int) int {
	year := 2000 + yy
	if year > time.Now().UTC().Year() {
		year -= 100
	}
	return year
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

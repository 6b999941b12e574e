package bot

import (
	"fmt"
	"regexp"
	"time"
)

var (
	dateRe = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})`)
	timeRe = regexp.MustCompile(`(\d{1,2})[:.](\d{2})|\b(\d{1,2})\s*Uhr`)
	plzRe  = regexp.MustCompile(`\b(\d{5})\b`)
)

// parseEventDate extracts a day.month from free text and resolves the
// year: dates already past relative to now roll over to next year.
// Invalid calendar dates (e.g. 31.02) return an error distinct from an
// unrecognized format.
func parseEventDate(text string, now time.Time) (time.Time, error) {
	m := dateRe.FindStringSubmatch(text)
	if m == nil {
		return time.Time{}, errDateUnrecognized
	}
	var day, month int
	fmt.Sscanf(m[1], "%d", &day)
	fmt.Sscanf(m[2], "%d", &month)

	year := now.Year()
	d, ok := makeDate(year, month, day, now.Location())
	if !ok {
		return time.Time{}, errDateInvalid
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if d.Before(today) {
		d, ok = makeDate(year+1, month, day, now.Location())
		if !ok {
			return time.Time{}, errDateInvalid
		}
	}
	return d, nil
}

// makeDate builds a date and rejects values time.Date would silently
// normalize (31.02 becoming 02.03 or 03.03).
func makeDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if d.Year() != year || int(d.Month()) != month || d.Day() != day {
		return time.Time{}, false
	}
	return d, true
}

var (
	errDateUnrecognized = fmt.Errorf("date not recognized")
	errDateInvalid      = fmt.Errorf("invalid calendar date")
)

// parseEventTime extracts HH:MM or "H Uhr" from free text, defaulting to
// 19:00 when nothing parses.
func parseEventTime(text string) string {
	m := timeRe.FindStringSubmatch(text)
	if m == nil {
		return "19:00"
	}
	var h, mi int
	if m[1] != "" {
		fmt.Sscanf(m[1], "%d", &h)
		fmt.Sscanf(m[2], "%d", &mi)
	} else {
		fmt.Sscanf(m[3], "%d", &h)
	}
	return fmt.Sprintf("%02d:%02d", h, mi)
}

// parsePLZ extracts a 5-digit postal code, or "" when none is present.
func parsePLZ(text string) string {
	m := plzRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

package scraper

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var monthNames = map[string]time.Month{
	"jan": time.January, "januar": time.January, "january": time.January,
	"feb": time.February, "februar": time.February, "february": time.February,
	"mar": time.March, "mrt": time.March, "marts": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"maj": time.May, "may": time.May,
	"jun": time.June, "juni": time.June, "june": time.June,
	"jul": time.July, "juli": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"okt": time.October, "oct": time.October, "oktober": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

var (
	daysAgoRe  = regexp.MustCompile(`(\d+)\s*(?:dage|dag|days|day)\s*(?:siden|ago)`)
	isoDateRe  = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	dayMonthRe = regexp.MustCompile(`(\d{1,2})\.?\s*([a-zæøå]+)\.?(?:\s*(\d{4}))?`)
)

// ParsePublicationDate turns a coarse listing date ("i dag", "for 3 dage
// siden", "10. aug") into a calendar date relative to now. Dates without a
// year that would land after today are taken from the previous year.
// The returned date is midnight UTC of the calendar day.
func ParsePublicationDate(raw string, now time.Time) (time.Time, bool) {
	s := strings.ToLower(normalizeSpace(raw))
	if s == "" {
		return time.Time{}, false
	}
	today := calendarDay(now)

	switch {
	case strings.Contains(s, "i dag"), strings.Contains(s, "idag"), strings.Contains(s, "today"):
		return today, true
	case strings.Contains(s, "i går"), strings.Contains(s, "igår"), strings.Contains(s, "i gaar"), strings.Contains(s, "yesterday"):
		return today.AddDate(0, 0, -1), true
	}

	if m := daysAgoRe.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n >= 0 && n < 3650 {
			return today.AddDate(0, 0, -n), true
		}
	}

	if m := isoDateRe.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		d, _ := strconv.Atoi(m[3])
		if t, ok := makeDate(y, time.Month(mo), d); ok {
			return t, true
		}
	}

	for _, m := range dayMonthRe.FindAllStringSubmatch(s, -1) {
		month, ok := monthNames[m[2]]
		if !ok {
			continue
		}
		d, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if m[3] != "" {
			y, _ := strconv.Atoi(m[3])
			if t, ok := makeDate(y, month, d); ok {
				return t, true
			}
			continue
		}
		t, ok := makeDate(today.Year(), month, d)
		if !ok {
			continue
		}
		if t.After(today) {
			t, ok = makeDate(today.Year()-1, month, d)
			if !ok {
				continue
			}
		}
		return t, true
	}

	return time.Time{}, false
}

func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// makeDate rejects out-of-range days instead of letting time.Date normalize them.
func makeDate(y int, m time.Month, d int) (time.Time, bool) {
	if m < time.January || m > time.December || d < 1 || d > 31 {
		return time.Time{}, false
	}
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	if t.Day() != d || t.Month() != m {
		return time.Time{}, false
	}
	return t, true
}

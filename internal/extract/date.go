package extract

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// dateLayouts covers the formats pages commonly print. Coarser layouts
// resolve to the first instant of their period.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"January 2006",
	"Jan 2006",
	"2006-01",
	"2006",
}

var relativeRe = regexp.MustCompile(`(?i)^(?:about\s+)?(\d+|a|an)\s+(day|week|month|year)s?\s+ago$`)

// parseDate interprets a publish-date string as written on a page.
// Relative dates ("3 months ago") resolve against now. Returns false
// when the string carries no usable date.
func parseDate(s string, now time.Time) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	if m := relativeRe.FindStringSubmatch(s); m != nil {
		n := 1
		if q := strings.ToLower(m[1]); q != "a" && q != "an" {
			n, _ = strconv.Atoi(q)
		}
		switch strings.ToLower(m[2]) {
		case "day":
			return now.AddDate(0, 0, -n), true
		case "week":
			return now.AddDate(0, 0, -7*n), true
		case "month":
			return now.AddDate(0, -n, 0), true
		case "year":
			return now.AddDate(-n, 0, 0), true
		}
	}

	return time.Time{}, false
}

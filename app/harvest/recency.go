package harvest

import (
	"strconv"
	"strings"
	"time"

	"github.com/flathound/flathound/app/parser"
)

// ParseRelativeAge interprets a human relative-time label ("just now",
// "45m ago", "2 hours ago") as an elapsed duration. The second return
// value reports whether the label was understood.
func ParseRelativeAge(label string) (time.Duration, bool) {
	s := strings.ToLower(strings.TrimSpace(label))
	if s == "" {
		return 0, false
	}
	if s == "just now" || s == "now" {
		return 0, true
	}

	s = strings.TrimSuffix(s, " ago")

	var numStr, unit string
	fields := strings.Fields(s)
	switch len(fields) {
	case 1:
		// Compact form like "45m" or "2h"
		f := fields[0]
		i := 0
		for i < len(f) && f[i] >= '0' && f[i] <= '9' {
			i++
		}
		if i == 0 || i == len(f) {
			return 0, false
		}
		numStr, unit = f[:i], f[i:]
	case 2:
		numStr, unit = fields[0], fields[1]
	default:
		return 0, false
	}

	n, err := strconv.Atoi(numStr)
	if err != nil || n < 0 {
		return 0, false
	}

	switch {
	case unit == "m" || strings.HasPrefix(unit, "min"):
		return time.Duration(n) * time.Minute, true
	case unit == "h" || strings.HasPrefix(unit, "hr") || strings.HasPrefix(unit, "hour"):
		return time.Duration(n) * time.Hour, true
	case unit == "d" || strings.HasPrefix(unit, "day"):
		return time.Duration(n) * 24 * time.Hour, true
	}
	return 0, false
}

// WithinWindow reports whether a raw listing was posted inside the
// recency window, boundary inclusive. Listings whose age cannot be
// determined are excluded rather than passed through.
func WithinWindow(raw parser.RawListing, now time.Time, recencyMinutes int) bool {
	window := time.Duration(recencyMinutes) * time.Minute

	if raw.PostedAt != nil {
		age := now.Sub(*raw.PostedAt)
		if age < 0 {
			age = 0
		}
		return age <= window
	}

	if raw.PostedLabel != "" {
		age, ok := ParseRelativeAge(raw.PostedLabel)
		if !ok {
			return false
		}
		return age <= window
	}

	return false
}

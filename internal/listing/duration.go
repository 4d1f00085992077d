package listing

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// PublishedAtLayout is the detail page's publication timestamp format,
// e.g. "14.08.2025. u 16:40".
const PublishedAtLayout = "02.01.2006. u 15:04"

// untilSold is the site's sentinel for ads with no fixed expiry.
const untilSold = "do prodaje"

// Matches e.g. "13 dana i 8 sati", "0 dana i 2 sata", "1 dan".
var durationPattern = regexp.MustCompile(`^(\d+)\s*dana?(?:\s*i\s*(\d+)\s*sat[ai]?)?`)

// ParseDuration resolves a remaining-duration string such as
// "26 dana i 21 sat" against the given base time, rounding the result up
// to the next full hour. The sentinel "do prodaje" yields ok=false and a
// zero time; the caller substitutes its default horizon. Any other
// unrecognized string is an error.
func ParseDuration(s string, base time.Time) (expires time.Time, ok bool, err error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == untilSold {
		return time.Time{}, false, nil
	}

	m := durationPattern.FindStringSubmatch(normalized)
	if m == nil {
		return time.Time{}, false, fmt.Errorf("unrecognized duration format: %q", s)
	}

	days, _ := strconv.Atoi(m[1])
	hours := 0
	if m[2] != "" {
		hours, _ = strconv.Atoi(m[2])
	}

	result := base.AddDate(0, 0, days).Add(time.Duration(hours) * time.Hour)
	return roundUpToHour(result), true, nil
}

// roundUpToHour rounds a timestamp up to the next full hour; a timestamp
// already on an hour boundary is returned unchanged.
func roundUpToHour(t time.Time) time.Time {
	truncated := t.Truncate(time.Hour)
	if truncated.Equal(t) {
		return t
	}
	return truncated.Add(time.Hour)
}

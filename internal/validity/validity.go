// Package validity holds the date-window and counter arithmetic that decides
// whether a token may be redeemed.
package validity

import "time"

// DateLayout is the only accepted calendar date format.
const DateLayout = "2006-01-02"

// ValidDate reports whether s is a zero-padded YYYY-MM-DD calendar date.
func ValidDate(s string) bool {
	if len(s) != len(DateLayout) {
		return false
	}
	_, err := time.Parse(DateLayout, s)
	return err == nil
}

// IsWithinWindow reports whether start <= today <= end. The comparison is
// lexical, which is sound because every operand is fixed-width. Any
// malformed operand yields false.
func IsWithinWindow(today, start, end string) bool {
	if !ValidDate(today) || !ValidDate(start) || !ValidDate(end) {
		return false
	}
	return start <= today && today <= end
}

// Remaining returns allowance - used, floored at zero.
func Remaining(allowance, used int) int {
	if used >= allowance {
		return 0
	}
	return allowance - used
}

// Today returns the calendar date of now in loc. A nil loc means UTC.
func Today(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(DateLayout)
}

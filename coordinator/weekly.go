package coordinator

import "time"

// NextSunday returns the next Sunday 23:59:59 local time strictly after
// now -- the weekly horizon every saved Pack's ExpiresAt must satisfy.
func NextSunday(now time.Time) time.Time {
	daysUntilSunday := (time.Sunday - now.Weekday() + 7) % 7
	candidate := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 59, 0, now.Location())
	candidate = candidate.AddDate(0, 0, int(daysUntilSunday))
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

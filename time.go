package account

import "time"

// IsWithinMaxAge checks if the given time is newer than the max age window.
func IsWithinMaxAge(t time.Time, maxAge time.Duration, now time.Time) bool {
	threshold := now.Add(-maxAge)
	return t.After(threshold)
}

// IsOutsideMaxAge is the negation of IsWithinMaxAge.
func IsOutsideMaxAge(t time.Time, maxAge time.Duration, now time.Time) bool {
	return !IsWithinMaxAge(t, maxAge, now)
}

package utils

import "time"

// Referral code values are plain numbers typed in from an email, so the
// accepted range is kept small enough to retype: four to eight decimal digits.
const (
	MinReferralCode = 1000
	MaxReferralCode = 99999999
)

// ValidReferralCode reports whether a code value is inside the acceptable
// numeric range. It is a pure predicate with no storage lookups; existence
// and ownership are checked separately against the database.
func ValidReferralCode(code uint64) bool {
	return code >= MinReferralCode && code <= MaxReferralCode
}

// ExpiryDate computes the expiry date of a code created today with the given
// validity window. Days may be zero, which makes the code valid only today.
// The result is truncated to a calendar date in UTC because expiry is
// compared against dates, not instants.
func ExpiryDate(now time.Time, days int) time.Time {
	d := now.UTC().AddDate(0, 0, days)
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current UTC calendar date with the time part zeroed,
// suitable for comparison against ExpiryDate results.
func Today(now time.Time) time.Time {
	n := now.UTC()
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
}

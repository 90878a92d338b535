package util

import "time"

// SameDay reports whether a and b fall on the same calendar date in UTC.
// Staged-entry re-entry rules and daily resets key off this.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// MonthsBetween returns the number of calendar-month boundaries crossed going
// from a to b. It is zero when both fall in the same month and negative when
// b precedes a.
func MonthsBetween(a, b time.Time) int {
	au, bu := a.UTC(), b.UTC()
	return (bu.Year()-au.Year())*12 + int(bu.Month()) - int(au.Month())
}

package domain

import "time"

// Customer is the record returned by the customer service
type Customer struct {
	ID   int64
	DOB  time.Time
	Name string
}

// AgeAt returns the customer's age in whole years on the given date.
// A birthday that has not yet occurred in now's year does not count.
func (c Customer) AgeAt(now time.Time) int {
	years := now.Year() - c.DOB.Year()
	if now.Month() < c.DOB.Month() ||
		(now.Month() == c.DOB.Month() && now.Day() < c.DOB.Day()) {
		years--
	}
	return years
}

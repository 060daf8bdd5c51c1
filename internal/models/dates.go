package models

import (
	"time"
	_ "time/tzdata"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

var marketLoc = mustLoad("America/New_York")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MarketLocation is the exchange calendar used for expiries and load stamps.
func MarketLocation() *time.Location {
	return marketLoc
}

// Date truncates t to its calendar day in t's own location, returned as UTC midnight.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MarketDate is the exchange-calendar day of an instant.
func MarketDate(t time.Time) time.Time {
	return Date(t.In(marketLoc))
}

// DateKey formats the calendar day of t as YYYY-MM-DD.
func DateKey(t time.Time) string {
	return Date(t).Format(DateLayout)
}

func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

package repository

import (
	"time"

	"github.com/kjannette/optiontrack/internal/models"
)

// LoadStamp splits an instant into the exchange-local date and time stored on
// every row of a capture.
func LoadStamp(ts time.Time) (date, clock string) {
	local := ts.In(models.MarketLocation())
	return local.Format(models.DateLayout), local.Format(models.TimeLayout)
}

// ParseLoadStamp is the inverse of LoadStamp.
func ParseLoadStamp(date, clock string) (time.Time, error) {
	return time.ParseInLocation(models.DateLayout+" "+models.TimeLayout, date+" "+clock, models.MarketLocation())
}

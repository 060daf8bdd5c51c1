package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpiryMetrics are the at-the-money figures for one expiry group. Optional
// values are nil when they could not be derived.
type ExpiryMetrics struct {
	Expiry       time.Time       `json:"expiry"`
	DaysToExpiry int             `json:"daysToExpiry"`
	ATMStrike    decimal.Decimal `json:"atmStrike"`
	HasATM       bool            `json:"hasAtm"`
	CallIV       *float64        `json:"callIv,omitempty"`
	PutIV        *float64        `json:"putIv,omitempty"`
	AverageIV    *float64        `json:"averageIv,omitempty"`
	CallPrice    *float64        `json:"callPrice,omitempty"`
	PutPrice     *float64        `json:"putPrice,omitempty"`
	CallOI       *int64          `json:"callOi,omitempty"`
	PutOI        *int64          `json:"putOi,omitempty"`
	Upper        *float64        `json:"upper,omitempty"`
	Lower        *float64        `json:"lower,omitempty"`
	ExpectedMove *float64        `json:"expectedMove,omitempty"`
}

package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Right tags a contract as a call or a put.
type Right int

const (
	Call Right = iota
	Put
)

func (r Right) String() string {
	if r == Put {
		return "put"
	}
	return "call"
}

// Code is the single-letter form used at the storage boundary.
func (r Right) Code() string {
	if r == Put {
		return "P"
	}
	return "C"
}

func ParseRight(s string) (Right, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "c", "call", "calls":
		return Call, nil
	case "p", "put", "puts":
		return Put, nil
	}
	return Call, fmt.Errorf("unknown option right %q", s)
}

type OptionContract struct {
	Strike       decimal.Decimal `json:"strike"`
	Expiry       time.Time       `json:"expiry"`
	Right        Right           `json:"right"`
	Last         float64         `json:"last"`
	Bid          float64         `json:"bid"`
	Ask          float64         `json:"ask"`
	OpenInterest int64           `json:"openInterest"`
	Volume       int64           `json:"volume"`
	IV           *float64        `json:"iv,omitempty"`
	DrillDownURL string          `json:"drillDownUrl,omitempty"`
}

// ObservedPrice is the bid/ask midpoint when both sides are quoted,
// otherwise the last traded price.
func (c OptionContract) ObservedPrice() float64 {
	if c.Bid > 0 && c.Ask > 0 && c.Ask >= c.Bid {
		return (c.Bid + c.Ask) / 2
	}
	return c.Last
}

// Key identifies a contract within a chain.
func (c OptionContract) Key() string {
	return DateKey(c.Expiry) + "|" + c.Strike.String() + "|" + c.Right.Code()
}

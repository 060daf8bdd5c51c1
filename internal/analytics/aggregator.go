// Package analytics derives per-expiry at-the-money metrics from an annotated chain.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/shopspring/decimal"

	"github.com/kjannette/optiontrack/internal/models"
)

// BandWidth is the number of standard deviations covered by the expected-move band.
const BandWidth = 2.0

type strikeLegs struct {
	call *models.OptionContract
	put  *models.OptionContract
}

// ComputeExpiryMetrics selects the ATM strike among strikes quoted for both rights and
// derives average IV and the expected-move band. Missing inputs leave the matching
// outputs nil; it never fails.
func ComputeExpiryMetrics(contracts []models.OptionContract, spot float64, expiry, now time.Time) models.ExpiryMetrics {
	m := models.ExpiryMetrics{
		Expiry:       models.Date(expiry),
		DaysToExpiry: DaysToExpiry(now, expiry),
	}

	legs := make(map[string]*strikeLegs)
	strikes := make([]decimal.Decimal, 0, len(contracts))
	for i := range contracts {
		c := &contracts[i]
		k := c.Strike.String()
		l, ok := legs[k]
		if !ok {
			l = &strikeLegs{}
			legs[k] = l
			strikes = append(strikes, c.Strike)
		}
		if c.Right == models.Put {
			l.put = c
		} else {
			l.call = c
		}
	}

	atm, ok := SelectATM(strikes, spot, func(k decimal.Decimal) bool {
		l := legs[k.String()]
		return l.call != nil && l.put != nil
	})
	if !ok {
		return m
	}
	m.ATMStrike = atm
	m.HasATM = true

	l := legs[atm.String()]
	callPx, putPx := l.call.ObservedPrice(), l.put.ObservedPrice()
	m.CallPrice, m.PutPrice = &callPx, &putPx
	callOI, putOI := l.call.OpenInterest, l.put.OpenInterest
	m.CallOI, m.PutOI = &callOI, &putOI
	m.CallIV, m.PutIV = l.call.IV, l.put.IV

	if m.CallIV == nil || m.PutIV == nil {
		return m
	}
	avg, err := stats.Mean(stats.Float64Data{*m.CallIV, *m.PutIV})
	if err != nil {
		return m
	}
	m.AverageIV = &avg

	if move, ok := ExpectedMove(spot, avg, m.DaysToExpiry); ok {
		upper, lower := spot+move, spot-move
		m.ExpectedMove, m.Upper, m.Lower = &move, &upper, &lower
	}
	return m
}

// SelectATM returns the eligible strike closest to spot. Equidistant strikes resolve
// to the lower one.
func SelectATM(strikes []decimal.Decimal, spot float64, eligible func(decimal.Decimal) bool) (decimal.Decimal, bool) {
	target := decimal.NewFromFloat(spot)
	var best decimal.Decimal
	var bestDist decimal.Decimal
	found := false
	for _, k := range strikes {
		if eligible != nil && !eligible(k) {
			continue
		}
		dist := k.Sub(target).Abs()
		if !found || dist.LessThan(bestDist) || (dist.Equal(bestDist) && k.LessThan(best)) {
			best, bestDist, found = k, dist, true
		}
	}
	return best, found
}

// ExpectedMove is spot * iv * sqrt(days/365) * BandWidth. Expired groups have no band.
func ExpectedMove(spot, iv float64, days int) (float64, bool) {
	if days < 0 || iv <= 0 || spot <= 0 {
		return 0, false
	}
	return spot * iv * math.Sqrt(float64(days)/365.0) * BandWidth, true
}

// DaysToExpiry counts calendar days from now's exchange date to the expiry date.
func DaysToExpiry(now, expiry time.Time) int {
	from := models.MarketDate(now)
	to := models.Date(expiry)
	return int(math.Round(to.Sub(from).Hours() / 24))
}

// ComputeAll derives metrics for every expiry group of snap, ordered by expiry.
func ComputeAll(snap *models.ChainSnapshot, now time.Time) []models.ExpiryMetrics {
	if snap == nil {
		return nil
	}
	out := make([]models.ExpiryMetrics, 0, len(snap.Expiries))
	for _, key := range snap.ExpiryKeys() {
		group := snap.Expiries[key]
		if len(group) == 0 {
			continue
		}
		out = append(out, ComputeExpiryMetrics(group, snap.Spot, group[0].Expiry, now))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Expiry.Before(out[j].Expiry) })
	return out
}

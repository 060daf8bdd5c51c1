package volatility

import (
	"math"
	"time"

	"github.com/kjannette/optiontrack/internal/models"
)

const daysPerYear = 365.0

func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// TheoreticalPrice is the Black-Scholes value of a European option with no dividends.
// spot, strike, years and sigma must be positive.
func TheoreticalPrice(right models.Right, spot, strike, years, rate, sigma float64) float64 {
	sqrtT := math.Sqrt(years)
	d1 := (math.Log(spot/strike) + (rate+0.5*sigma*sigma)*years) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	discount := math.Exp(-rate * years)

	if right == models.Put {
		return strike*discount*normCDF(-d2) - spot*normCDF(-d1)
	}
	return spot*normCDF(d1) - strike*discount*normCDF(d2)
}

// Intrinsic is the exercise value at the current spot.
func Intrinsic(right models.Right, spot, strike float64) float64 {
	if right == models.Put {
		return math.Max(strike-spot, 0)
	}
	return math.Max(spot-strike, 0)
}

// TimeToExpiry is the year fraction from now until the 16:00 New York close on expiry.
func TimeToExpiry(now time.Time, expiry time.Time) float64 {
	y, m, d := expiry.Date()
	closeAt := time.Date(y, m, d, 16, 0, 0, 0, models.MarketLocation())
	return closeAt.Sub(now).Hours() / 24 / daysPerYear
}

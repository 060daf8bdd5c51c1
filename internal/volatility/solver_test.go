package volatility

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjannette/optiontrack/internal/models"
)

func TestImpliedVolatility_RoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		right  models.Right
		spot   float64
		strike float64
		years  float64
	}{
		{"atm call", models.Call, 100, 100, 0.5},
		{"otm call", models.Call, 100, 120, 1.0},
		{"itm put", models.Put, 100, 110, 0.25},
		{"leap put", models.Put, 250, 200, 2.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			price := TheoreticalPrice(tc.right, tc.spot, tc.strike, tc.years, 0.05, 0.40)
			iv, ok := ImpliedVolatility(tc.right, tc.spot, tc.strike, tc.years, 0.05, price)
			require.True(t, ok)
			assert.InDelta(t, 0.40, iv, 1e-4)
		})
	}
}

func TestImpliedVolatility_BelowIntrinsic(t *testing.T) {
	// intrinsic is 20; a price of 15 cannot be produced
	iv, ok := ImpliedVolatility(models.Call, 120, 100, 0.5, 0.05, 15)
	assert.False(t, ok)
	assert.Zero(t, iv)

	_, ok = ImpliedVolatility(models.Put, 80, 100, 0.5, 0.05, 10)
	assert.False(t, ok)
}

func TestImpliedVolatility_OutsideBracket(t *testing.T) {
	// a call can never be worth more than the underlying
	_, ok := ImpliedVolatility(models.Call, 100, 100, 0.5, 0.05, 150)
	assert.False(t, ok)

	// below the sigma=0.01 floor for a far OTM call
	floor := TheoreticalPrice(models.Call, 100, 100, 0.5, 0.05, MinSigma)
	_, ok = ImpliedVolatility(models.Call, 100, 100, 0.5, 0.05, floor*0.5)
	assert.False(t, ok)
}

func TestImpliedVolatility_InvalidInputs(t *testing.T) {
	_, ok := ImpliedVolatility(models.Call, 100, 100, 0, 0.05, 5)
	assert.False(t, ok)
	_, ok = ImpliedVolatility(models.Call, 100, 100, 0.5, 0.05, 0)
	assert.False(t, ok)
	_, ok = ImpliedVolatility(models.Call, 0, 100, 0.5, 0.05, 5)
	assert.False(t, ok)
	_, ok = ImpliedVolatility(models.Call, 100, 100, 0.5, 0.05, math.NaN())
	assert.False(t, ok)
}

func TestTheoreticalPrice_PutCallParity(t *testing.T) {
	s, k, years, r, sigma := 100.0, 95.0, 0.75, 0.03, 0.3
	c := TheoreticalPrice(models.Call, s, k, years, r, sigma)
	p := TheoreticalPrice(models.Put, s, k, years, r, sigma)
	assert.InDelta(t, s-k*math.Exp(-r*years), c-p, 1e-9)
}

func TestTimeToExpiry(t *testing.T) {
	loc := models.MarketLocation()
	now := time.Date(2024, 6, 14, 16, 0, 0, 0, loc)
	expiry := time.Date(2024, 6, 21, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 7.0/365.0, TimeToExpiry(now, expiry), 1e-9)
}

func TestAnnotate(t *testing.T) {
	loc := models.MarketLocation()
	now := time.Date(2024, 6, 14, 10, 0, 0, 0, loc)
	expiry := time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)
	years := TimeToExpiry(now, expiry)
	callPx := TheoreticalPrice(models.Call, 100, 100, years, 0.04, 0.35)

	snap := models.NewChainSnapshot("TEST", "nasdaq", models.KindNear, 100, 99, now, models.MarketOpen, []models.OptionContract{
		{Strike: decimal.NewFromInt(100), Expiry: expiry, Right: models.Call, Last: callPx},
		{Strike: decimal.NewFromInt(100), Expiry: expiry, Right: models.Put, Last: 0},
	})

	out := Annotate(snap, now, 0.04)
	group := out.Expiries["2024-12-20"]
	require.Len(t, group, 2)
	require.NotNil(t, group[0].IV)
	assert.InDelta(t, 0.35, *group[0].IV, 1e-4)
	assert.Nil(t, group[1].IV)

	// source snapshot untouched
	assert.Nil(t, snap.Expiries["2024-12-20"][0].IV)
}

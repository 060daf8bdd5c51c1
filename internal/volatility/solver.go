package volatility

import (
	"math"
	"time"

	"github.com/kjannette/optiontrack/internal/models"
)

const (
	MinSigma = 0.01
	MaxSigma = 5.0

	// MaxIterations bounds the root finder; Tolerance is the absolute price error accepted.
	MaxIterations = 100
	Tolerance     = 1e-8
)

// ImpliedVolatility inverts TheoreticalPrice for the observed price. ok is false
// when the inputs are unusable, the price is below intrinsic value, no volatility in
// [MinSigma, MaxSigma] reproduces it, or the search does not converge.
func ImpliedVolatility(right models.Right, spot, strike, years, rate, observed float64) (float64, bool) {
	if !(spot > 0) || !(strike > 0) || !(years > 0) || !(observed > 0) {
		return 0, false
	}
	if math.IsInf(observed, 0) || math.IsNaN(rate) {
		return 0, false
	}
	if observed < Intrinsic(right, spot, strike) {
		return 0, false
	}

	f := func(sigma float64) float64 {
		return TheoreticalPrice(right, spot, strike, years, rate, sigma) - observed
	}
	return brent(f, MinSigma, MaxSigma, Tolerance, MaxIterations)
}

// brent finds a root of f in [a, b] by Brent's method, requiring a sign change
// across the bracket. Convergence is judged on |f(x)| <= tol.
func brent(f func(float64) float64, a, b, tol float64, maxIter int) (float64, bool) {
	fa, fb := f(a), f(b)
	if math.IsNaN(fa) || math.IsNaN(fb) {
		return 0, false
	}
	if math.Abs(fa) <= tol {
		return a, true
	}
	if math.Abs(fb) <= tol {
		return b, true
	}
	if fa*fb > 0 {
		return 0, false
	}

	if math.Abs(fa) < math.Abs(fb) {
		a, b = b, a
		fa, fb = fb, fa
	}
	c, fc := a, fa
	d := 0.0
	bisected := true

	for i := 0; i < maxIter; i++ {
		var s float64
		if fa != fc && fb != fc {
			// inverse quadratic interpolation
			s = a*fb*fc/((fa-fb)*(fa-fc)) +
				b*fa*fc/((fb-fa)*(fb-fc)) +
				c*fa*fb/((fc-fa)*(fc-fb))
		} else {
			s = b - fb*(b-a)/(fb-fa)
		}

		lo, hi := (3*a+b)/4, b
		if lo > hi {
			lo, hi = hi, lo
		}
		useBisect := s < lo || s > hi ||
			(bisected && math.Abs(s-b) >= math.Abs(b-c)/2) ||
			(!bisected && math.Abs(s-b) >= math.Abs(c-d)/2) ||
			(bisected && math.Abs(b-c) < 1e-15) ||
			(!bisected && math.Abs(c-d) < 1e-15)
		if useBisect {
			s = (a + b) / 2
		}
		bisected = useBisect

		fs := f(s)
		if math.IsNaN(fs) {
			return 0, false
		}
		if math.Abs(fs) <= tol {
			return s, true
		}

		d, c, fc = c, b, fb
		if fa*fs < 0 {
			b, fb = s, fs
		} else {
			a, fa = s, fs
		}
		if math.Abs(fa) < math.Abs(fb) {
			a, b = b, a
			fa, fb = fb, fa
		}
		if math.Abs(fb) <= tol {
			return b, true
		}
	}
	return 0, false
}

// Annotate returns a copy of snap with IV solved for every contract priced above zero.
// Contracts the solver cannot resolve keep a nil IV.
func Annotate(snap *models.ChainSnapshot, now time.Time, rate float64) *models.ChainSnapshot {
	return snap.MapContracts(func(c models.OptionContract) models.OptionContract {
		strike, _ := c.Strike.Float64()
		years := TimeToExpiry(now, c.Expiry)
		if iv, ok := ImpliedVolatility(c.Right, snap.Spot, strike, years, rate, c.ObservedPrice()); ok {
			c.IV = &iv
		} else {
			c.IV = nil
		}
		return c
	})
}

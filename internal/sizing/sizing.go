// Package sizing decides how many shares a buy signal is worth. The
// limits are an injectable policy so the simulation engine, presets,
// and tests can run with different risk profiles without touching the
// sizing rule itself.
package sizing

import "math"

// Limits is the position sizing policy. The zero value is not usable;
// construct with DefaultLimits and override fields as needed.
type Limits struct {
	// RiskFraction is the share of total portfolio value put at risk
	// per position, measured to the initial stop.
	RiskFraction float64

	// StopATRMultiple is the distance of the initial trailing stop
	// below the entry price, in ATR units.
	StopATRMultiple float64

	// MaxPortfolioFraction caps a single position's notional value as a
	// share of total portfolio value.
	MaxPortfolioFraction float64

	// MaxShares caps the share count of a single order. Zero means no
	// cap.
	MaxShares int64

	// FallbackATRFraction substitutes for a missing or non-positive
	// ATR, as a fraction of price.
	FallbackATRFraction float64
}

// DefaultLimits returns the standard risk policy: 1% risk per trade, a
// 2.5x ATR stop, a 20% position cap, and a 2% price fallback for ATR.
func DefaultLimits() Limits {
	return Limits{
		RiskFraction:         0.01,
		StopATRMultiple:      2.5,
		MaxPortfolioFraction: 0.20,
		FallbackATRFraction:  0.02,
	}
}

// WithMaxShares returns a copy of the limits with the share cap set.
func (l Limits) WithMaxShares(n int64) Limits {
	l.MaxShares = n
	return l
}

// EffectiveATR resolves the ATR used for stop placement, substituting
// the price fallback when the measured ATR is missing or non-positive.
func (l Limits) EffectiveATR(price, atr float64) float64 {
	if atr > 0 && !math.IsNaN(atr) && !math.IsInf(atr, 0) {
		return atr
	}
	return price * l.FallbackATRFraction
}

// StopDistance is the initial gap between entry price and trailing
// stop.
func (l Limits) StopDistance(price, atr float64) float64 {
	return l.StopATRMultiple * l.EffectiveATR(price, atr)
}

// Shares returns the number of shares to buy at price given available
// cash and total portfolio value. The result is the floor of the
// tightest of four caps: risk budget over stop distance, the portfolio
// fraction cap, the share cap, and affordability. A result capped below
// one share is raised to a single share, then discarded if cash cannot
// cover it.
func (l Limits) Shares(cash, totalValue, price, atr float64) int64 {
	if price <= 0 || totalValue <= 0 || cash <= 0 {
		return 0
	}

	stop := l.StopDistance(price, atr)

	byRisk := 1.0
	if stop > 0 {
		byRisk = math.Floor(totalValue * l.RiskFraction / stop)
	}
	byCap := math.Floor(totalValue * l.MaxPortfolioFraction / price)
	byCash := math.Floor(cash / price)

	shares := math.Min(byRisk, math.Min(byCap, byCash))
	if l.MaxShares > 0 && shares > float64(l.MaxShares) {
		shares = float64(l.MaxShares)
	}
	if shares < 1 {
		shares = 1
	}
	if shares*price > cash {
		return 0
	}
	return int64(shares)
}

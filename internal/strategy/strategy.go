// Package strategy turns a window of historical bars into a discrete
// trading signal. Each strategy variant is a pure function of the bar
// window and its parameters: it never looks past the decision bar and
// carries no state between evaluations.
package strategy

import (
	"errors"
	"fmt"

	"github.com/stratlab/backtest-engine/internal/indicator"
	"github.com/stratlab/backtest-engine/internal/model"
)

// Signal is a discrete trading decision.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Type selects a strategy variant. The set is closed: New switches
// exhaustively over these values.
type Type string

const (
	TypeSMACrossover Type = "SMA_CROSSOVER"
	TypeEMACrossover Type = "EMA_CROSSOVER"
	TypeRSIReversion Type = "RSI"
	TypeBollinger    Type = "BOLLINGER"
)

// ErrUnknownType is returned for a strategy tag outside the closed set.
var ErrUnknownType = errors.New("strategy: unknown strategy type")

// ParseType validates a strategy tag. The empty string maps to
// SMA crossover, the default variant.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case "":
		return TypeSMACrossover, nil
	case TypeSMACrossover, TypeEMACrossover, TypeRSIReversion, TypeBollinger:
		return Type(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// Params are the tunable knobs shared by all strategy variants. Zero
// values fall back to the documented defaults via WithDefaults; unknown
// JSON keys are ignored by the decoder.
type Params struct {
	SMAShort        int     `json:"sma_short"`
	SMALong         int     `json:"sma_long"`
	EMAShort        int     `json:"ema_short"`
	EMALong         int     `json:"ema_long"`
	RSIPeriod       int     `json:"rsi_period"`
	RSIOversold     float64 `json:"rsi_oversold"`
	RSIOverbought   float64 `json:"rsi_overbought"`
	BollingerPeriod int     `json:"bollinger_period"`
	BollingerStd    float64 `json:"bollinger_std"`

	// TrendFollowing re-signals every bar the short average is on the
	// right side of the long one. CrossoverOnly forces the conservative
	// crossover-event mode even when TrendFollowing is set. The default
	// (both unset) is crossover-only.
	TrendFollowing bool `json:"trend_following"`
	CrossoverOnly  bool `json:"crossover_only"`

	// MinPriceChange is accepted for configuration compatibility but is
	// not read by any variant.
	MinPriceChange float64 `json:"min_price_change"`
}

// WithDefaults returns a copy with zero values replaced by the defaults.
func (p Params) WithDefaults() Params {
	q := p
	if q.SMAShort == 0 {
		q.SMAShort = 5
	}
	if q.SMALong == 0 {
		q.SMALong = 20
	}
	if q.EMAShort == 0 {
		q.EMAShort = 12
	}
	if q.EMALong == 0 {
		q.EMALong = 26
	}
	if q.RSIPeriod == 0 {
		q.RSIPeriod = 14
	}
	if q.RSIOversold == 0 {
		q.RSIOversold = 30
	}
	if q.RSIOverbought == 0 {
		q.RSIOverbought = 70
	}
	if q.BollingerPeriod == 0 {
		q.BollingerPeriod = 20
	}
	if q.BollingerStd == 0 {
		q.BollingerStd = 2
	}
	if q.MinPriceChange == 0 {
		q.MinPriceChange = 0.01
	}
	return q
}

// Snapshot carries the indicator values behind a decision plus a
// human-readable rationale.
type Snapshot struct {
	Indicators map[string]float64 `json:"indicators"`
	Reason     string             `json:"reason"`
}

// Strategy evaluates a chronologically ordered bar window ending at the
// decision bar.
type Strategy interface {
	Evaluate(bars []model.Bar, p Params) (Signal, Snapshot)
}

// New returns the strategy implementation for a variant.
func New(t Type) (Strategy, error) {
	switch t {
	case TypeSMACrossover:
		return crossover{exponential: false}, nil
	case TypeEMACrossover:
		return crossover{exponential: true}, nil
	case TypeRSIReversion:
		return rsiReversion{}, nil
	case TypeBollinger:
		return bollingerReversion{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
}

// Generate runs the selected strategy over the window and applies the
// optional sentiment overlay. This is the single entry point the
// simulation loop uses.
func Generate(bars []model.Bar, symbol string, t Type, p Params, sentiment SentimentProvider) (Signal, Snapshot) {
	p = p.WithDefaults()

	strat, err := New(t)
	if err != nil {
		strat = crossover{exponential: false} // default variant
	}
	sig, snap := strat.Evaluate(bars, p)

	if sentiment != nil {
		if score, ok := sentiment.Score(symbol); ok {
			sig = applySentiment(sig, score, &snap)
		}
	}
	return sig, snap
}

func closesOf(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

func insufficient() (Signal, Snapshot) {
	return SignalHold, Snapshot{
		Indicators: map[string]float64{},
		Reason:     "insufficient data",
	}
}

// currentRSI returns the latest RSI for the window, or neutral 50 when
// the window is too short to compute one.
func currentRSI(closes []float64, period int) float64 {
	series, err := indicator.RSI(closes, period)
	if err != nil {
		return 50
	}
	if v, ok := indicator.Last(series); ok {
		return v
	}
	return 50
}

// crossover implements the SMA/EMA dual moving-average strategy with an
// RSI gate: crossover-event mode by default, trend-following when opted
// in via Params.
type crossover struct {
	exponential bool
}

func (c crossover) Evaluate(bars []model.Bar, p Params) (Signal, Snapshot) {
	short, long := p.SMAShort, p.SMALong
	name := "sma"
	ma := indicator.SMA
	if c.exponential {
		short, long = p.EMAShort, p.EMALong
		name = "ema"
		ma = indicator.EMA
	}

	if len(bars) < long {
		return insufficient()
	}

	closes := closesOf(bars)
	shortSeries, err := ma(closes, short)
	if err != nil {
		return insufficient()
	}
	longSeries, err := ma(closes, long)
	if err != nil {
		return insufficient()
	}

	curShort, ok := indicator.Last(shortSeries)
	if !ok {
		return insufficient()
	}
	curLong, ok := indicator.Last(longSeries)
	if !ok {
		return insufficient()
	}
	prevShort, ok := indicator.Prev(shortSeries)
	if !ok {
		prevShort = curShort
	}
	prevLong, ok := indicator.Prev(longSeries)
	if !ok {
		prevLong = curLong
	}

	rsi := currentRSI(closes, p.RSIPeriod)
	price := closes[len(closes)-1]

	sig := SignalHold
	var reason string

	trendMode := p.TrendFollowing && !p.CrossoverOnly
	switch {
	case !trendMode:
		// Crossover-event mode: fire only on the bar where the sign of
		// short-long flips.
		switch {
		case curShort > curLong && prevShort <= prevLong:
			if rsi < p.RSIOverbought {
				sig = SignalBuy
				reason = fmt.Sprintf("golden cross: short %.2f above long %.2f, RSI %.1f", curShort, curLong, rsi)
			} else {
				reason = fmt.Sprintf("golden cross suppressed: RSI overbought at %.1f", rsi)
			}
		case curShort < curLong && prevShort >= prevLong:
			if rsi > p.RSIOversold {
				sig = SignalSell
				reason = fmt.Sprintf("death cross: short %.2f below long %.2f, RSI %.1f", curShort, curLong, rsi)
			} else {
				reason = fmt.Sprintf("death cross suppressed: RSI oversold at %.1f", rsi)
			}
		case curShort > curLong:
			reason = "uptrend, no crossover"
		case curShort < curLong:
			reason = "downtrend, no crossover"
		default:
			reason = "averages equal"
		}
	default:
		// Trend-following mode: re-signal every bar the condition holds.
		switch {
		case curShort > curLong:
			if rsi < p.RSIOverbought {
				sig = SignalBuy
				reason = fmt.Sprintf("uptrend: short %.2f above long %.2f, RSI %.1f", curShort, curLong, rsi)
			} else {
				reason = fmt.Sprintf("uptrend held: RSI overbought at %.1f", rsi)
			}
		case curShort < curLong:
			if rsi > p.RSIOversold {
				sig = SignalSell
				reason = fmt.Sprintf("downtrend: short %.2f below long %.2f, RSI %.1f", curShort, curLong, rsi)
			} else {
				reason = fmt.Sprintf("downtrend held: RSI oversold at %.1f", rsi)
			}
		default:
			reason = "averages equal, no trend"
		}
	}

	return sig, Snapshot{
		Indicators: map[string]float64{
			name + "_short": curShort,
			name + "_long":  curLong,
			"rsi":           rsi,
			"price":         price,
		},
		Reason: reason,
	}
}

// rsiReversion buys oversold and sells overbought readings. Stateless
// threshold comparison, no crossover logic.
type rsiReversion struct{}

func (rsiReversion) Evaluate(bars []model.Bar, p Params) (Signal, Snapshot) {
	if len(bars) < p.RSIPeriod+1 {
		return insufficient()
	}

	closes := closesOf(bars)
	series, err := indicator.RSI(closes, p.RSIPeriod)
	if err != nil {
		return insufficient()
	}
	rsi, ok := indicator.Last(series)
	if !ok {
		return insufficient()
	}
	price := closes[len(closes)-1]

	sig := SignalHold
	reason := fmt.Sprintf("RSI %.1f inside thresholds", rsi)
	switch {
	case rsi < p.RSIOversold:
		sig = SignalBuy
		reason = fmt.Sprintf("RSI %.1f below oversold %.0f", rsi, p.RSIOversold)
	case rsi > p.RSIOverbought:
		sig = SignalSell
		reason = fmt.Sprintf("RSI %.1f above overbought %.0f", rsi, p.RSIOverbought)
	}

	return sig, Snapshot{
		Indicators: map[string]float64{"rsi": rsi, "price": price},
		Reason:     reason,
	}
}

// bollingerReversion buys a close at or below the lower band and sells
// at or above the upper band.
type bollingerReversion struct{}

func (bollingerReversion) Evaluate(bars []model.Bar, p Params) (Signal, Snapshot) {
	if len(bars) < p.BollingerPeriod {
		return insufficient()
	}

	closes := closesOf(bars)
	upper, middle, lower, err := indicator.Bollinger(closes, p.BollingerPeriod, p.BollingerStd)
	if err != nil {
		return insufficient()
	}

	u, ok := indicator.Last(upper)
	if !ok {
		return insufficient()
	}
	m, _ := indicator.Last(middle)
	l, _ := indicator.Last(lower)
	price := closes[len(closes)-1]

	sig := SignalHold
	reason := "price inside bands"
	switch {
	case price <= l:
		sig = SignalBuy
		reason = fmt.Sprintf("close %.2f at or below lower band %.2f", price, l)
	case price >= u:
		sig = SignalSell
		reason = fmt.Sprintf("close %.2f at or above upper band %.2f", price, u)
	}

	return sig, Snapshot{
		Indicators: map[string]float64{
			"bb_upper":  u,
			"bb_middle": m,
			"bb_lower":  l,
			"price":     price,
		},
		Reason: reason,
	}
}

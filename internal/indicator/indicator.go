// Package indicator implements the technical indicators used by the
// signal generator: moving averages, RSI, ATR, and Bollinger Bands.
//
// All functions are pure and deterministic: they map a price series to a
// derived series of the same length, aligned index-for-index with the
// input. Entries that are not yet computable (fewer than `period` points
// of history) are NaN; use Valid/Last/Prev to read them safely. A series
// shorter than the requested window returns ErrInsufficientData rather
// than a partial result; callers treat that as HOLD.
//
// Numerical conventions:
//   - EMA uses smoothing factor 2/(period+1) and is seeded by the first
//     value of the series itself, no separate warm-up average.
//   - RSI with zero rolling loss clamps to 100 (the limit of
//     100 - 100/(1+gain/loss) as loss goes to 0); a fully flat window (zero
//     gain and zero loss) reads as neutral 50.
//   - Bollinger Bands use the sample standard deviation (n-1 divisor).
package indicator

import (
	"errors"
	"math"
)

// ErrInsufficientData is returned when the series is shorter than the
// indicator's minimum window.
var ErrInsufficientData = errors.New("indicator: insufficient data for window")

// ErrInvalidPeriod is returned for non-positive window sizes.
var ErrInvalidPeriod = errors.New("indicator: period must be positive")

// Valid reports whether a series entry is computable (not NaN).
func Valid(v float64) bool {
	return !math.IsNaN(v)
}

// Last returns the final entry of a series, and whether it is valid.
func Last(series []float64) (float64, bool) {
	if len(series) == 0 {
		return 0, false
	}
	v := series[len(series)-1]
	return v, Valid(v)
}

// Prev returns the next-to-last entry of a series, and whether it is
// valid. Crossover checks compare Last against Prev.
func Prev(series []float64) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}
	v := series[len(series)-2]
	return v, Valid(v)
}

func nanPrefix(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA computes the simple moving average: the arithmetic mean of the
// last `period` closes. Undefined for the first period-1 entries.
func SMA(closes []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, ErrInvalidPeriod
	}
	if len(closes) < period {
		return nil, ErrInsufficientData
	}

	out := nanPrefix(len(closes))
	var sum float64
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// EMA computes the exponential moving average with smoothing factor
// alpha = 2/(period+1), seeded by the first value of the series.
// Every entry is defined.
func EMA(closes []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, ErrInvalidPeriod
	}
	if len(closes) < period {
		return nil, ErrInsufficientData
	}

	alpha := 2.0 / (float64(period) + 1)
	out := make([]float64, len(closes))
	out[0] = closes[0]
	for i := 1; i < len(closes); i++ {
		out[i] = alpha*closes[i] + (1-alpha)*out[i-1]
	}
	return out, nil
}

// RSI computes the Relative Strength Index over rolling simple means of
// gains and losses:
//
//	rs  = mean(gains over period) / mean(losses over period)
//	rsi = 100 - 100/(1+rs)
//
// Defined from index `period` onward (the first delta needs two closes).
// A window with zero losses clamps to 100; a fully flat window is 50.
func RSI(closes []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, ErrInvalidPeriod
	}
	// Deltas start at index 1, so a full window needs period+1 closes.
	if len(closes) < period+1 {
		return nil, ErrInsufficientData
	}

	out := nanPrefix(len(closes))
	var gainSum, lossSum float64
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gainSum += delta
		} else {
			lossSum += -delta
		}
		if i > period {
			old := closes[i-period] - closes[i-period-1]
			if old > 0 {
				gainSum -= old
			} else {
				lossSum -= -old
			}
		}
		if i >= period {
			out[i] = rsiValue(gainSum/float64(period), lossSum/float64(period))
		}
	}
	return out, nil
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss <= 0 {
		if avgGain > 0 {
			return 100 // no losses in window: maximally overbought
		}
		return 50 // flat window: neutral
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// ATR computes the Average True Range: the rolling mean of the true
// range, where per bar
//
//	TR = max(high-low, |high-prevClose|, |low-prevClose|)
//
// and the first bar, lacking a previous close, uses high-low. Defined
// from index period-1 onward.
func ATR(highs, lows, closes []float64, period int) ([]float64, error) {
	if period < 1 {
		return nil, ErrInvalidPeriod
	}
	n := len(closes)
	if len(highs) != n || len(lows) != n {
		return nil, errors.New("indicator: high/low/close length mismatch")
	}
	if n < period {
		return nil, ErrInsufficientData
	}

	tr := make([]float64, n)
	for i := 0; i < n; i++ {
		r := highs[i] - lows[i]
		if i > 0 {
			pc := closes[i-1]
			r = math.Max(r, math.Abs(highs[i]-pc))
			r = math.Max(r, math.Abs(lows[i]-pc))
		}
		tr[i] = r
	}

	out := nanPrefix(n)
	var sum float64
	for i, v := range tr {
		sum += v
		if i >= period {
			sum -= tr[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out, nil
}

// Bollinger computes Bollinger Bands: middle = SMA(period), upper/lower
// = middle ± mult × rolling sample standard deviation. All three series
// are defined from index period-1 onward.
func Bollinger(closes []float64, period int, mult float64) (upper, middle, lower []float64, err error) {
	if period < 2 {
		return nil, nil, nil, ErrInvalidPeriod
	}
	if len(closes) < period {
		return nil, nil, nil, ErrInsufficientData
	}

	middle, err = SMA(closes, period)
	if err != nil {
		return nil, nil, nil, err
	}

	upper = nanPrefix(len(closes))
	lower = nanPrefix(len(closes))
	for i := period - 1; i < len(closes); i++ {
		m := middle[i]
		var ss float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - m
			ss += d * d
		}
		sd := math.Sqrt(ss / float64(period-1))
		upper[i] = m + mult*sd
		lower[i] = m - mult*sd
	}
	return upper, middle, lower, nil
}

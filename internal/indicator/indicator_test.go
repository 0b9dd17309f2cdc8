package indicator

import (
	"math"
	"testing"
)

func approx(t *testing.T, got, want, tol float64, label string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %f, want %f", label, got, want)
	}
}

// --- SMA ---

func TestSMA_Basic(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	sma, err := SMA(closes, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Valid(sma[0]) || Valid(sma[1]) {
		t.Errorf("first period-1 entries should be NaN, got %v", sma[:2])
	}
	approx(t, sma[2], 2, 1e-12, "sma[2]")
	approx(t, sma[4], 4, 1e-12, "sma[4]")
}

func TestSMA_InsufficientData(t *testing.T) {
	_, err := SMA([]float64{1, 2}, 3)
	if err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

func TestSMA_InvalidPeriod(t *testing.T) {
	_, err := SMA([]float64{1, 2, 3}, 0)
	if err != ErrInvalidPeriod {
		t.Errorf("expected ErrInvalidPeriod, got %v", err)
	}
}

// --- EMA ---

func TestEMA_SeededBySeries(t *testing.T) {
	closes := []float64{10, 11, 12}
	ema, err := EMA(closes, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// alpha = 0.5: ema = [10, 10.5, 11.25]
	approx(t, ema[0], 10, 1e-12, "ema[0]")
	approx(t, ema[1], 10.5, 1e-12, "ema[1]")
	approx(t, ema[2], 11.25, 1e-12, "ema[2]")
}

func TestEMA_ConstantSeries(t *testing.T) {
	closes := []float64{7, 7, 7, 7, 7}
	ema, _ := EMA(closes, 4)
	for i, v := range ema {
		approx(t, v, 7, 1e-12, "constant ema")
		_ = i
	}
}

// --- RSI ---

func TestRSI_AllGainsClampsTo100(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	rsi, err := RSI(closes, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	v, ok := Last(rsi)
	if !ok {
		t.Fatal("expected valid final RSI")
	}
	if v != 100 {
		t.Errorf("zero-loss window should clamp RSI to 100, got %f", v)
	}
}

func TestRSI_FlatWindowIsNeutral(t *testing.T) {
	closes := []float64{5, 5, 5, 5, 5, 5, 5}
	rsi, _ := RSI(closes, 5)
	v, ok := Last(rsi)
	if !ok || v != 50 {
		t.Errorf("flat window should read neutral 50, got %f (valid=%v)", v, ok)
	}
}

func TestRSI_AllLossesNearZero(t *testing.T) {
	closes := []float64{8, 7, 6, 5, 4, 3, 2}
	rsi, _ := RSI(closes, 5)
	v, _ := Last(rsi)
	if v != 0 {
		t.Errorf("all-loss window should give RSI 0, got %f", v)
	}
}

func TestRSI_BalancedWindow(t *testing.T) {
	// Alternating equal gains/losses: avg gain == avg loss, rs=1, rsi=50.
	closes := []float64{10, 11, 10, 11, 10, 11, 10}
	rsi, _ := RSI(closes, 6)
	v, _ := Last(rsi)
	approx(t, v, 50, 1e-9, "balanced rsi")
}

func TestRSI_WarmupIsNaN(t *testing.T) {
	closes := []float64{1, 2, 1, 2, 1, 2}
	rsi, _ := RSI(closes, 4)
	for i := 0; i < 4; i++ {
		if Valid(rsi[i]) {
			t.Errorf("rsi[%d] should be NaN during warmup", i)
		}
	}
	if !Valid(rsi[4]) {
		t.Error("rsi[period] should be defined")
	}
}

// --- ATR ---

func TestATR_GapUsesPrevClose(t *testing.T) {
	highs := []float64{10, 20, 21}
	lows := []float64{9, 19, 20}
	closes := []float64{9.5, 19.5, 20.5}
	atr, err := ATR(highs, lows, closes, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// tr = [1, 10.5, 1.5]; atr[1] = (1+10.5)/2, atr[2] = (10.5+1.5)/2
	approx(t, atr[1], 5.75, 1e-12, "atr[1]")
	approx(t, atr[2], 6, 1e-12, "atr[2]")
}

func TestATR_LengthMismatch(t *testing.T) {
	_, err := ATR([]float64{1, 2}, []float64{1}, []float64{1, 2}, 1)
	if err == nil {
		t.Error("expected error for mismatched series lengths")
	}
}

func TestATR_InsufficientData(t *testing.T) {
	_, err := ATR([]float64{1}, []float64{1}, []float64{1}, 14)
	if err != ErrInsufficientData {
		t.Errorf("expected ErrInsufficientData, got %v", err)
	}
}

// --- Bollinger ---

func TestBollinger_BandsBracketMiddle(t *testing.T) {
	closes := []float64{10, 12, 11, 13, 12, 14, 13, 15}
	upper, middle, lower, err := Bollinger(closes, 5, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 4; i < len(closes); i++ {
		if !(upper[i] > middle[i] && middle[i] > lower[i]) {
			t.Errorf("band ordering violated at %d: u=%f m=%f l=%f",
				i, upper[i], middle[i], lower[i])
		}
	}
}

func TestBollinger_KnownValues(t *testing.T) {
	closes := []float64{1, 2, 3, 4, 5}
	upper, middle, lower, _ := Bollinger(closes, 5, 2)
	// mean 3, sample stddev of 1..5 = sqrt(2.5)
	sd := math.Sqrt(2.5)
	approx(t, middle[4], 3, 1e-12, "middle")
	approx(t, upper[4], 3+2*sd, 1e-12, "upper")
	approx(t, lower[4], 3-2*sd, 1e-12, "lower")
}

func TestBollinger_ConstantSeriesCollapses(t *testing.T) {
	closes := []float64{5, 5, 5, 5, 5}
	upper, middle, lower, _ := Bollinger(closes, 5, 2)
	if upper[4] != middle[4] || lower[4] != middle[4] {
		t.Errorf("zero-variance bands should collapse onto the middle: u=%f m=%f l=%f",
			upper[4], middle[4], lower[4])
	}
}

// --- Helpers ---

func TestLastPrev(t *testing.T) {
	s := []float64{math.NaN(), 1, 2}
	if v, ok := Last(s); !ok || v != 2 {
		t.Errorf("Last: got %f/%v", v, ok)
	}
	if v, ok := Prev(s); !ok || v != 1 {
		t.Errorf("Prev: got %f/%v", v, ok)
	}
	if _, ok := Prev([]float64{1}); ok {
		t.Error("Prev of a 1-element series should be invalid")
	}
	if _, ok := Last(nil); ok {
		t.Error("Last of an empty series should be invalid")
	}
}

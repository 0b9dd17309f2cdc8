package strategy

import (
	"strings"
	"testing"
	"time"

	"github.com/stratlab/backtest-engine/internal/model"
)

// mkBars builds a daily bar series from closes, one bar per weekday-less
// calendar day starting 2024-01-01.
func mkBars(closes ...float64) []model.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, len(closes))
	for i, c := range closes {
		bars[i] = model.Bar{
			Symbol: "TEST",
			Time:   start.AddDate(0, 0, i),
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 1000,
		}
	}
	return bars
}

// flatThenRising is 20 bars at 100 followed by n bars rising by 5.
func flatThenRising(n int) []float64 {
	closes := make([]float64, 0, 20+n)
	for i := 0; i < 20; i++ {
		closes = append(closes, 100)
	}
	for i := 1; i <= n; i++ {
		closes = append(closes, 100+float64(i)*5)
	}
	return closes
}

// --- ParseType ---

func TestParseType(t *testing.T) {
	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"", TypeSMACrossover, false},
		{"SMA_CROSSOVER", TypeSMACrossover, false},
		{"EMA_CROSSOVER", TypeEMACrossover, false},
		{"RSI", TypeRSIReversion, false},
		{"BOLLINGER", TypeBollinger, false},
		{"MACD", "", true},
	}
	for _, tt := range tests {
		got, err := ParseType(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseType(%q) error = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseType(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// --- Defaults ---

func TestWithDefaults(t *testing.T) {
	p := Params{}.WithDefaults()
	if p.SMAShort != 5 || p.SMALong != 20 || p.RSIPeriod != 14 {
		t.Errorf("unexpected defaults: %+v", p)
	}
	if p.RSIOversold != 30 || p.RSIOverbought != 70 || p.BollingerStd != 2 {
		t.Errorf("unexpected threshold defaults: %+v", p)
	}
	if p.TrendFollowing || p.CrossoverOnly {
		t.Error("mode flags should default to unset (crossover mode)")
	}

	// Explicit values survive.
	q := Params{SMAShort: 10, SMALong: 30}.WithDefaults()
	if q.SMAShort != 10 || q.SMALong != 30 {
		t.Errorf("explicit windows overwritten: %+v", q)
	}
}

// --- Crossover mode ---

// rsiNeutral disables the RSI gates so crossover behavior can be tested
// in isolation.
var rsiNeutral = Params{RSIOverbought: 101, RSIOversold: -1}

func TestCrossover_FiresOnceOnCrossBar(t *testing.T) {
	closes := flatThenRising(8)
	buys := 0
	for end := 21; end <= len(closes); end++ {
		sig, _ := Generate(mkBars(closes[:end]...), "TEST", TypeSMACrossover, rsiNeutral, nil)
		if sig == SignalBuy {
			buys++
			if end != 21 {
				t.Errorf("BUY fired at window length %d, want only at 21", end)
			}
		}
		if sig == SignalSell {
			t.Errorf("unexpected SELL at window length %d", end)
		}
	}
	if buys != 1 {
		t.Errorf("expected exactly one BUY, got %d", buys)
	}
}

func TestCrossover_DeathCrossSells(t *testing.T) {
	closes := make([]float64, 0, 26)
	for i := 0; i < 20; i++ {
		closes = append(closes, 100)
	}
	for i := 1; i <= 6; i++ {
		closes = append(closes, 100-float64(i)*5)
	}
	sig, snap := Generate(mkBars(closes[:21]...), "TEST", TypeSMACrossover, rsiNeutral, nil)
	if sig != SignalSell {
		t.Fatalf("expected SELL on death cross, got %s (%s)", sig, snap.Reason)
	}
}

func TestCrossover_RSIGateSuppressesBuy(t *testing.T) {
	// A clean uptrend drives RSI to 100, which suppresses the golden
	// cross under the default overbought gate.
	closes := flatThenRising(1)
	sig, snap := Generate(mkBars(closes...), "TEST", TypeSMACrossover, Params{}, nil)
	if sig != SignalHold {
		t.Fatalf("expected HOLD from RSI gate, got %s", sig)
	}
	if !strings.Contains(snap.Reason, "overbought") {
		t.Errorf("reason should mention the overbought gate, got %q", snap.Reason)
	}
}

func TestCrossover_HoldCarriesTrendRationale(t *testing.T) {
	closes := flatThenRising(5)
	sig, snap := Generate(mkBars(closes...), "TEST", TypeSMACrossover, rsiNeutral, nil)
	if sig != SignalHold {
		t.Fatalf("expected HOLD after the cross bar, got %s", sig)
	}
	if !strings.Contains(snap.Reason, "uptrend") {
		t.Errorf("HOLD rationale should describe the trend, got %q", snap.Reason)
	}
}

func TestCrossover_TrendFollowingResignals(t *testing.T) {
	closes := flatThenRising(5)
	p := rsiNeutral
	p.TrendFollowing = true
	buys := 0
	for end := 21; end <= len(closes); end++ {
		sig, _ := Generate(mkBars(closes[:end]...), "TEST", TypeSMACrossover, p, nil)
		if sig == SignalBuy {
			buys++
		}
	}
	if buys != 5 {
		t.Errorf("trend-following should re-signal every bar, got %d buys", buys)
	}
}

func TestCrossover_CrossoverOnlyOverridesTrendFollowing(t *testing.T) {
	closes := flatThenRising(5)
	p := rsiNeutral
	p.TrendFollowing = true
	p.CrossoverOnly = true
	sig, _ := Generate(mkBars(closes...), "TEST", TypeSMACrossover, p, nil)
	if sig != SignalHold {
		t.Errorf("crossover_only should force event mode, got %s", sig)
	}
}

func TestCrossover_InsufficientData(t *testing.T) {
	sig, snap := Generate(mkBars(100, 101, 102), "TEST", TypeSMACrossover, Params{}, nil)
	if sig != SignalHold || snap.Reason != "insufficient data" {
		t.Errorf("got %s/%q, want HOLD/insufficient data", sig, snap.Reason)
	}
}

func TestCrossover_EMASnapshotKeys(t *testing.T) {
	closes := flatThenRising(10)
	_, snap := Generate(mkBars(closes...), "TEST", TypeEMACrossover, rsiNeutral, nil)
	for _, key := range []string{"ema_short", "ema_long", "rsi", "price"} {
		if _, ok := snap.Indicators[key]; !ok {
			t.Errorf("snapshot missing %q: %v", key, snap.Indicators)
		}
	}
}

// --- RSI reversion ---

func TestRSIReversion(t *testing.T) {
	falling := make([]float64, 16)
	rising := make([]float64, 16)
	for i := range falling {
		falling[i] = 100 - float64(i)
		rising[i] = 100 + float64(i)
	}

	sig, _ := Generate(mkBars(falling...), "TEST", TypeRSIReversion, Params{}, nil)
	if sig != SignalBuy {
		t.Errorf("oversold series should BUY, got %s", sig)
	}

	sig, _ = Generate(mkBars(rising...), "TEST", TypeRSIReversion, Params{}, nil)
	if sig != SignalSell {
		t.Errorf("overbought series should SELL, got %s", sig)
	}

	sig, snap := Generate(mkBars(falling[:10]...), "TEST", TypeRSIReversion, Params{}, nil)
	if sig != SignalHold || snap.Reason != "insufficient data" {
		t.Errorf("short window should HOLD, got %s/%q", sig, snap.Reason)
	}
}

// --- Bollinger reversion ---

func TestBollingerReversion(t *testing.T) {
	base := make([]float64, 19)
	for i := range base {
		if i%2 == 0 {
			base[i] = 100
		} else {
			base[i] = 102
		}
	}

	plunge := append(append([]float64{}, base...), 90)
	sig, _ := Generate(mkBars(plunge...), "TEST", TypeBollinger, Params{}, nil)
	if sig != SignalBuy {
		t.Errorf("close below lower band should BUY, got %s", sig)
	}

	spike := append(append([]float64{}, base...), 112)
	sig, _ = Generate(mkBars(spike...), "TEST", TypeBollinger, Params{}, nil)
	if sig != SignalSell {
		t.Errorf("close above upper band should SELL, got %s", sig)
	}

	inside := append(append([]float64{}, base...), 101)
	sig, _ = Generate(mkBars(inside...), "TEST", TypeBollinger, Params{}, nil)
	if sig != SignalHold {
		t.Errorf("close inside bands should HOLD, got %s", sig)
	}
}

// --- Sentiment overlay ---

func TestSentiment_UpgradesHold(t *testing.T) {
	closes := flatThenRising(5) // HOLD after the cross bar
	sent := StaticSentiment{"TEST": 0.4}
	sig, snap := Generate(mkBars(closes...), "TEST", TypeSMACrossover, rsiNeutral, sent)
	if sig != SignalBuy {
		t.Fatalf("positive sentiment should upgrade HOLD to BUY, got %s", sig)
	}
	if snap.Indicators["sentiment"] != 0.4 {
		t.Errorf("sentiment score should be recorded, got %v", snap.Indicators)
	}
}

func TestSentiment_DowngradesOpposingBuy(t *testing.T) {
	closes := flatThenRising(1) // BUY at the cross bar
	sent := StaticSentiment{"TEST": -0.8}
	sig, _ := Generate(mkBars(closes...), "TEST", TypeSMACrossover, rsiNeutral, sent)
	if sig != SignalHold {
		t.Errorf("strong negative sentiment should block the buy, got %s", sig)
	}
}

func TestSentiment_MildOppositionKeepsSignal(t *testing.T) {
	closes := flatThenRising(1)
	sent := StaticSentiment{"TEST": -0.3}
	sig, _ := Generate(mkBars(closes...), "TEST", TypeSMACrossover, rsiNeutral, sent)
	if sig != SignalBuy {
		t.Errorf("mild opposing sentiment should not block the buy, got %s", sig)
	}
}

func TestSentiment_MissingSymbolIgnored(t *testing.T) {
	closes := flatThenRising(1)
	sent := StaticSentiment{"OTHER": 0.9}
	sig, snap := Generate(mkBars(closes...), "TEST", TypeSMACrossover, rsiNeutral, sent)
	if sig != SignalBuy {
		t.Errorf("absent score should leave the base signal, got %s", sig)
	}
	if _, ok := snap.Indicators["sentiment"]; ok {
		t.Error("absent score should not be recorded")
	}
}

// --- Presets ---

func TestPreset(t *testing.T) {
	for _, name := range PresetNames() {
		p, err := Preset(name)
		if err != nil {
			t.Fatalf("Preset(%q): %v", name, err)
		}
		if p.MaxPositionSize <= 0 {
			t.Errorf("preset %q has no share cap", name)
		}
	}
	if _, err := Preset("yolo"); err == nil {
		t.Error("expected error for unknown preset")
	}
}

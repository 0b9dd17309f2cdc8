package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/model"
)

var day = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)

func bar(i int, close float64) model.Bar {
	return model.Bar{
		Time:  day.AddDate(0, 0, i),
		Open:  close,
		High:  close + 1,
		Low:   close - 1,
		Close: close,
	}
}

func TestMemoryStore_BarsRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	// Out of order on purpose.
	in := []model.Bar{bar(2, 102), bar(0, 100), bar(1, 101)}
	if err := s.SaveBars(ctx, "AAPL", in); err != nil {
		t.Fatalf("SaveBars: %v", err)
	}

	out, err := s.Bars(ctx, "AAPL", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Bars: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d bars, want 3", len(out))
	}
	for i := 1; i < len(out); i++ {
		if !out[i].Time.After(out[i-1].Time) {
			t.Errorf("bars not ascending at %d", i)
		}
	}
	if out[0].Symbol != "AAPL" {
		t.Errorf("symbol not stamped on stored bars: %+v", out[0])
	}
}

func TestMemoryStore_SaveBarsReplacesDuplicateDates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.SaveBars(ctx, "AAPL", []model.Bar{bar(0, 100)})
	s.SaveBars(ctx, "AAPL", []model.Bar{bar(0, 110)})

	out, _ := s.Bars(ctx, "AAPL", time.Time{}, time.Time{})
	if len(out) != 1 {
		t.Fatalf("got %d bars, want 1 after re-ingest", len(out))
	}
	if out[0].Close != 110 {
		t.Errorf("re-ingested bar should win, got close %f", out[0].Close)
	}
}

func TestMemoryStore_BarsRangeFilter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.SaveBars(ctx, "AAPL", []model.Bar{bar(0, 100), bar(1, 101), bar(2, 102), bar(3, 103)})

	out, _ := s.Bars(ctx, "AAPL", day.AddDate(0, 0, 1), day.AddDate(0, 0, 2))
	if len(out) != 2 || out[0].Close != 101 || out[1].Close != 102 {
		t.Errorf("range filter wrong: %+v", out)
	}

	// Unknown symbol returns nothing, not an error.
	out, err := s.Bars(ctx, "MSFT", time.Time{}, time.Time{})
	if err != nil || len(out) != 0 {
		t.Errorf("unknown symbol: got %v, %v", out, err)
	}
}

func TestMemoryStore_RunRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	rec := &model.RunRecord{
		RunID:       "run-1",
		Symbols:     []string{"AAPL", "MSFT"},
		Strategy:    "SMA_CROSSOVER",
		InitialCash: decimal.NewFromInt(100_000),
		FinalValue:  decimal.NewFromInt(101_000),
		TotalReturn: 1,
		NumTrades:   4,
		Metrics:     model.Metrics{Score: 12.5, NumTrades: 4},
		CreatedAt:   day,
	}
	if err := s.SaveRun(ctx, rec); err != nil {
		t.Fatalf("SaveRun: %v", err)
	}

	got, err := s.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Metrics.Score != 12.5 || len(got.Symbols) != 2 {
		t.Errorf("round trip lost fields: %+v", got)
	}

	// The stored record must not alias caller memory.
	rec.Symbols[0] = "MUTATED"
	got, _ = s.GetRun(ctx, "run-1")
	if got.Symbols[0] != "AAPL" {
		t.Error("stored record aliases caller slice")
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for i := 0; i < 3; i++ {
		s.SaveRun(ctx, &model.RunRecord{
			RunID:     string(rune('a' + i)),
			CreatedAt: day.AddDate(0, 0, i),
		})
	}

	runs, err := s.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].RunID != "c" || runs[1].RunID != "b" {
		t.Errorf("order wrong: %s, %s", runs[0].RunID, runs[1].RunID)
	}
}

func TestMemoryStore_TradeLedger(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	trades := []model.Trade{
		{ID: "t1", RunID: "run-1", Symbol: "AAPL", Action: model.ActionBuy, Quantity: 10, Price: decimal.NewFromInt(100)},
		{ID: "t2", RunID: "run-1", Symbol: "AAPL", Action: model.ActionSell, Quantity: 10, Price: decimal.NewFromInt(110)},
		{ID: "t3", RunID: "run-2", Symbol: "MSFT", Action: model.ActionBuy, Quantity: 5, Price: decimal.NewFromInt(300)},
	}
	if err := s.InsertTrades(ctx, trades); err != nil {
		t.Fatalf("InsertTrades: %v", err)
	}

	got, err := s.GetTradesByRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetTradesByRun: %v", err)
	}
	if len(got) != 2 || got[0].ID != "t1" || got[1].ID != "t2" {
		t.Errorf("ledger filter wrong: %+v", got)
	}

	got, _ = s.GetTradesByRun(ctx, "run-3")
	if len(got) != 0 {
		t.Errorf("unknown run should have no trades, got %+v", got)
	}
}

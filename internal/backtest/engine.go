// Package backtest runs a strategy day by day over historical bars.
// The engine only ever shows a strategy the bars up to the decision
// date, so no signal can depend on future data.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/stratlab/backtest-engine/internal/indicator"
	"github.com/stratlab/backtest-engine/internal/model"
	"github.com/stratlab/backtest-engine/internal/portfolio"
	"github.com/stratlab/backtest-engine/internal/sizing"
	"github.com/stratlab/backtest-engine/internal/strategy"
)

// atrPeriod is the lookback for stop placement.
const atrPeriod = 14

// minSignalBars is the minimum window before a strategy is consulted.
const minSignalBars = 20

var (
	ErrNoData       = errors.New("backtest: no historical data")
	ErrInvalidSpec  = errors.New("backtest: invalid run spec")
	ErrDuplicateBar = errors.New("backtest: duplicate bar date")
)

// BarProvider supplies ascending daily bars for a symbol inside a date
// window. A zero start or end leaves that side unbounded.
type BarProvider interface {
	Bars(ctx context.Context, symbol string, start, end time.Time) ([]model.Bar, error)
}

// RunSpec describes one simulation.
type RunSpec struct {
	Symbols     []string
	Strategy    strategy.Type
	Params      strategy.Params
	StartDate   time.Time
	EndDate     time.Time
	InitialCash float64

	// MaxShares caps the share count of a single buy. Zero means the
	// engine's sizing policy decides alone.
	MaxShares int64
}

// Engine drives simulations. It is stateless between runs and safe for
// concurrent Run calls.
type Engine struct {
	provider  BarProvider
	limits    sizing.Limits
	sentiment strategy.SentimentProvider
	log       *slog.Logger
	onTrade   func(model.Trade)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLimits overrides the default sizing policy.
func WithLimits(l sizing.Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithSentiment attaches a sentiment overlay consulted on every signal.
func WithSentiment(s strategy.SentimentProvider) Option {
	return func(e *Engine) { e.sentiment = s }
}

// WithLogger sets the run logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithTradeHook registers a callback invoked synchronously after every
// simulated fill, in fill order.
func WithTradeHook(fn func(model.Trade)) Option {
	return func(e *Engine) { e.onTrade = fn }
}

// NewEngine builds an engine over a bar provider with the default
// sizing policy.
func NewEngine(provider BarProvider, opts ...Option) *Engine {
	e := &Engine{
		provider: provider,
		limits:   sizing.DefaultLimits(),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run simulates the spec's strategy over [StartDate, EndDate] and
// returns the full result. Symbols whose bars cannot be loaded are
// logged and skipped; a run with no usable bars at all fails with
// ErrNoData and no partial result.
func (e *Engine) Run(ctx context.Context, spec RunSpec) (*model.RunResult, error) {
	if len(spec.Symbols) == 0 || spec.InitialCash <= 0 {
		return nil, ErrInvalidSpec
	}

	runID := uuid.NewString()
	limits := e.limits
	if spec.MaxShares > 0 {
		limits = limits.WithMaxShares(spec.MaxShares)
	}

	history, dates, err := e.loadHistory(ctx, spec)
	if err != nil {
		return nil, err
	}

	pf := portfolio.New(spec.InitialCash)
	var trades []model.Trade
	daily := make([]model.DailySnapshot, 0, len(dates))

	record := func(tr model.Trade) {
		trades = append(trades, tr)
		e.log.Info("trade executed",
			"run_id", runID,
			"symbol", tr.Symbol,
			"action", tr.Action,
			"quantity", tr.Quantity,
			"price", tr.Price,
			"reason", tr.Reason,
		)
		if e.onTrade != nil {
			e.onTrade(tr)
		}
	}

	for _, date := range dates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		prices := make(map[string]float64)
		windows := make(map[string][]model.Bar)
		for sym, bars := range history {
			k := sort.Search(len(bars), func(i int) bool { return bars[i].Time.After(date) })
			if k == 0 {
				continue
			}
			prices[sym] = bars[k-1].Close
			windows[sym] = bars[:k]
		}

		pf.UpdatePrices(prices)

		// Stop scan before signals. A symbol stopped out today does not
		// re-enter on the same date.
		stopped := make(map[string]bool)
		for _, sym := range pf.StopViolations() {
			pos, _ := pf.Position(sym)
			price, ok := prices[sym]
			if !ok {
				price = pos.CurrentPrice
			}
			qty, err := pf.SellAll(sym, price)
			if err != nil {
				continue
			}
			stopped[sym] = true
			record(model.Trade{
				ID:       uuid.NewString(),
				RunID:    runID,
				Time:     date,
				Symbol:   sym,
				Action:   model.ActionSell,
				Quantity: qty,
				Price:    decimal.NewFromFloat(price),
				Reason:   fmt.Sprintf("trailing stop hit at %.2f", pos.StopPrice),
			})
		}

		for _, sym := range spec.Symbols {
			window, ok := windows[sym]
			if !ok || len(window) < minSignalBars || stopped[sym] {
				continue
			}

			sig, snap := strategy.Generate(window, sym, spec.Strategy, spec.Params, e.sentiment)
			price := prices[sym]
			_, holding := pf.Position(sym)

			switch {
			case sig == strategy.SignalBuy && !holding:
				atr := lastATR(window)
				qty := limits.Shares(pf.Cash(), pf.TotalValue(), price, atr)
				if qty == 0 {
					continue
				}
				stopDist := limits.StopDistance(price, atr)
				if err := pf.Buy(sym, qty, price, stopDist, date); err != nil {
					continue
				}
				record(model.Trade{
					ID:       uuid.NewString(),
					RunID:    runID,
					Time:     date,
					Symbol:   sym,
					Action:   model.ActionBuy,
					Quantity: qty,
					Price:    decimal.NewFromFloat(price),
					Reason:   snap.Reason,
				})

			case sig == strategy.SignalSell && holding:
				qty, err := pf.SellAll(sym, price)
				if err != nil {
					continue
				}
				record(model.Trade{
					ID:       uuid.NewString(),
					RunID:    runID,
					Time:     date,
					Symbol:   sym,
					Action:   model.ActionSell,
					Quantity: qty,
					Price:    decimal.NewFromFloat(price),
					Reason:   snap.Reason,
				})
			}
		}

		daily = append(daily, model.DailySnapshot{
			Date:       date,
			TotalValue: decimal.NewFromFloat(pf.TotalValue()),
			Cash:       decimal.NewFromFloat(pf.Cash()),
			PnL:        decimal.NewFromFloat(pf.TotalPnL()),
			PnLPercent: pf.TotalPnLPercent(),
		})
	}

	finalValue := pf.TotalValue()
	totalReturn := (finalValue - spec.InitialCash) / spec.InitialCash * 100
	buyHold := buyHoldReturn(spec.Symbols, history)

	e.log.Info("run completed",
		"run_id", runID,
		"total_return_pct", totalReturn,
		"num_trades", len(trades),
		"buy_hold_pct", buyHold,
	)

	return &model.RunResult{
		RunID:         runID,
		Symbols:       spec.Symbols,
		Strategy:      string(spec.Strategy),
		StartDate:     spec.StartDate,
		EndDate:       spec.EndDate,
		InitialCash:   decimal.NewFromFloat(spec.InitialCash),
		FinalValue:    decimal.NewFromFloat(finalValue),
		TotalReturn:   totalReturn,
		TotalPnL:      decimal.NewFromFloat(finalValue - spec.InitialCash),
		NumTrades:     len(trades),
		Trades:        trades,
		Daily:         daily,
		BuyHoldReturn: buyHold,
		VsBuyHold:     totalReturn - buyHold,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// loadHistory fetches and normalizes bars per symbol and builds the
// sorted union of bar dates. Per-symbol load failures are isolated;
// only a fully empty timeline is fatal.
func (e *Engine) loadHistory(ctx context.Context, spec RunSpec) (map[string][]model.Bar, []time.Time, error) {
	history := make(map[string][]model.Bar, len(spec.Symbols))
	dateSet := make(map[time.Time]struct{})

	// Query whole days. Stored bars may carry intraday stamps, and a
	// bar at 21:00 on the end date still belongs to the window.
	start, end := spec.StartDate, spec.EndDate
	if !start.IsZero() {
		start = toDate(start)
	}
	if !end.IsZero() {
		end = toDate(end).AddDate(0, 0, 1).Add(-time.Nanosecond)
	}

	for _, sym := range spec.Symbols {
		bars, err := e.provider.Bars(ctx, sym, start, end)
		if err != nil {
			e.log.Warn("failed to load bars", "symbol", sym, "error", err)
			continue
		}
		if len(bars) == 0 {
			continue
		}

		norm := make([]model.Bar, len(bars))
		for i, b := range bars {
			b.Time = toDate(b.Time)
			norm[i] = b
		}
		sort.Slice(norm, func(i, j int) bool { return norm[i].Time.Before(norm[j].Time) })
		for i := 1; i < len(norm); i++ {
			if norm[i].Time.Equal(norm[i-1].Time) {
				return nil, nil, fmt.Errorf("%w: %s at %s",
					ErrDuplicateBar, sym, norm[i].Time.Format(time.DateOnly))
			}
		}

		history[sym] = norm
		for _, b := range norm {
			if !spec.StartDate.IsZero() && b.Time.Before(toDate(spec.StartDate)) {
				continue
			}
			if !spec.EndDate.IsZero() && b.Time.After(toDate(spec.EndDate)) {
				continue
			}
			dateSet[b.Time] = struct{}{}
		}
	}

	if len(history) == 0 || len(dateSet) == 0 {
		return nil, nil, ErrNoData
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return history, dates, nil
}

// buyHoldReturn is the equal-weight baseline: each requested symbol's
// first-to-last close return, divided by the requested symbol count.
func buyHoldReturn(symbols []string, history map[string][]model.Bar) float64 {
	var total float64
	for _, sym := range symbols {
		bars, ok := history[sym]
		if !ok || len(bars) == 0 {
			continue
		}
		start, end := bars[0].Close, bars[len(bars)-1].Close
		if start == 0 {
			continue
		}
		total += (end - start) / start * 100 / float64(len(symbols))
	}
	return total
}

// lastATR returns the latest ATR reading for the window, or 0 when the
// window is too short; the sizing policy substitutes its price-fraction
// fallback for 0.
func lastATR(window []model.Bar) float64 {
	if len(window) < atrPeriod {
		return 0
	}
	highs := make([]float64, len(window))
	lows := make([]float64, len(window))
	closes := make([]float64, len(window))
	for i, b := range window {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	series, err := indicator.ATR(highs, lows, closes, atrPeriod)
	if err != nil {
		return 0
	}
	v, ok := indicator.Last(series)
	if !ok {
		return 0
	}
	return v
}

func toDate(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

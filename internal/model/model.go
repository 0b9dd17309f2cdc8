// Package model defines the core domain types shared across the backtest
// engine. Persisted monetary values (fills, snapshot balances, run
// summaries) use shopspring/decimal; simulation-internal statistics stay
// float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade actions.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

// Bar is one OHLCV sample for a symbol at daily granularity.
// Bars for a symbol are ordered ascending by timestamp; duplicate
// timestamps are invalid.
type Bar struct {
	Symbol string    `json:"symbol" db:"symbol"`
	Time   time.Time `json:"time" db:"time"`
	Open   float64   `json:"open" db:"open"`
	High   float64   `json:"high" db:"high"`
	Low    float64   `json:"low" db:"low"`
	Close  float64   `json:"close" db:"close"`
	Volume float64   `json:"volume" db:"volume"`
}

// Trade is an immutable record of an executed fill. Once created, these
// are never modified or deleted.
type Trade struct {
	ID       string          `json:"id" db:"id"`
	RunID    string          `json:"run_id" db:"run_id"`
	Time     time.Time       `json:"time" db:"time"`
	Symbol   string          `json:"symbol" db:"symbol"`
	Action   string          `json:"action" db:"action"` // "BUY" or "SELL"
	Quantity int64           `json:"quantity" db:"quantity"`
	Price    decimal.Decimal `json:"price" db:"price"`
	Reason   string          `json:"reason" db:"reason"`
}

// DailySnapshot is the per-day portfolio record, appended once per
// simulated bar date whether or not a trade occurred.
type DailySnapshot struct {
	Date       time.Time       `json:"date" db:"date"`
	TotalValue decimal.Decimal `json:"total_value" db:"total_value"`
	Cash       decimal.Decimal `json:"cash" db:"cash"`
	PnL        decimal.Decimal `json:"pnl" db:"pnl"`
	PnLPercent float64         `json:"pnl_percent" db:"pnl_percent"`
}

// RunResult is the full output of one simulation run.
type RunResult struct {
	RunID         string          `json:"run_id"`
	Symbols       []string        `json:"symbols"`
	Strategy      string          `json:"strategy"`
	StartDate     time.Time       `json:"start_date"`
	EndDate       time.Time       `json:"end_date"`
	InitialCash   decimal.Decimal `json:"initial_cash"`
	FinalValue    decimal.Decimal `json:"final_value"`
	TotalReturn   float64         `json:"total_return"` // percent
	TotalPnL      decimal.Decimal `json:"total_pnl"`
	NumTrades     int             `json:"num_trades"`
	Trades        []Trade         `json:"trades"`
	Daily         []DailySnapshot `json:"daily_results"`
	BuyHoldReturn float64         `json:"buy_hold_return"` // percent, equal-weighted
	VsBuyHold     float64         `json:"vs_buy_hold"`     // percent
	CreatedAt     time.Time       `json:"created_at"`
}

// Metrics are the scalar performance figures a search driver ranks by.
// Score is a linear ranking heuristic, comparable only across
// configurations evaluated on identical data.
type Metrics struct {
	TotalReturn  float64 `json:"total_return"`
	SharpeRatio  float64 `json:"sharpe_ratio"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	NumTrades    int     `json:"num_trades"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	Score        float64 `json:"score"`
}

// RunRecord is the persisted summary of a run: the RunResult minus the
// bulky trade/daily slices (those live in their own tables), plus the
// evaluated metrics.
type RunRecord struct {
	RunID         string          `json:"run_id" db:"run_id"`
	Symbols       []string        `json:"symbols" db:"symbols"`
	Strategy      string          `json:"strategy" db:"strategy"`
	StartDate     time.Time       `json:"start_date" db:"start_date"`
	EndDate       time.Time       `json:"end_date" db:"end_date"`
	InitialCash   decimal.Decimal `json:"initial_cash" db:"initial_cash"`
	FinalValue    decimal.Decimal `json:"final_value" db:"final_value"`
	TotalReturn   float64         `json:"total_return" db:"total_return"`
	NumTrades     int             `json:"num_trades" db:"num_trades"`
	BuyHoldReturn float64         `json:"buy_hold_return" db:"buy_hold_return"`
	Metrics       Metrics         `json:"metrics"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

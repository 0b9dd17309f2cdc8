// Package evaluate scores a finished run. All metrics are derived from
// the run's trade list and daily snapshots; nothing here touches price
// history, so a persisted run can be re-scored later.
package evaluate

import (
	"math"

	"github.com/stratlab/backtest-engine/internal/model"
)

const (
	tradingDaysPerYear = 252
	profitFactorCap    = 5
	drawdownFloor      = -50
)

// Evaluate computes performance metrics for a run.
//
// Trade pairs are matched positionally: each BUY followed immediately by
// a SELL in the ledger forms one round trip. Multi-symbol ledgers should
// be grouped by symbol before scoring. Win rate is measured against the
// total trade count, matching the reporting the score was tuned on.
//
// A nil result scores as a failed run. A run with zero trades gets
// neutral metrics and its raw return as the score.
func Evaluate(r *model.RunResult) model.Metrics {
	if r == nil {
		return model.Metrics{
			TotalReturn: -100,
			MaxDrawdown: 100,
			Score:       -1000,
		}
	}

	if len(r.Trades) == 0 {
		return model.Metrics{
			TotalReturn: r.TotalReturn,
			Score:       r.TotalReturn,
		}
	}

	wins, grossProfit, grossLoss := pairTrades(r.Trades)

	winRate := float64(wins) / float64(len(r.Trades)) * 100

	profitFactor := 0.0
	switch {
	case grossLoss > 0:
		profitFactor = grossProfit / grossLoss
	case grossProfit > 0:
		profitFactor = grossProfit
	}

	maxDD := maxDrawdown(r.Daily)
	sharpe := sharpeRatio(r.Daily)

	score := r.TotalReturn*0.4 +
		sharpe*10*0.2 +
		winRate*0.2 +
		math.Min(profitFactor, profitFactorCap)*10*0.1 +
		math.Max(maxDD, drawdownFloor)*0.1

	return model.Metrics{
		TotalReturn:  r.TotalReturn,
		SharpeRatio:  sharpe,
		MaxDrawdown:  maxDD,
		WinRate:      winRate,
		ProfitFactor: profitFactor,
		NumTrades:    len(r.Trades),
		GrossProfit:  grossProfit,
		GrossLoss:    grossLoss,
		Score:        score,
	}
}

// pairTrades walks the ledger matching each BUY with the SELL that
// directly follows it. Round trips with zero profit count as losses of
// zero, not wins.
func pairTrades(trades []model.Trade) (wins int, grossProfit, grossLoss float64) {
	for i := 0; i+1 < len(trades); i++ {
		buy, sell := trades[i], trades[i+1]
		if buy.Action != model.ActionBuy || sell.Action != model.ActionSell {
			continue
		}
		buyPx, _ := buy.Price.Float64()
		sellPx, _ := sell.Price.Float64()
		profit := (sellPx - buyPx) * float64(buy.Quantity)
		if profit > 0 {
			wins++
			grossProfit += profit
		} else {
			grossLoss += math.Abs(profit)
		}
	}
	return wins, grossProfit, grossLoss
}

// maxDrawdown is the deepest peak-to-trough decline of the equity
// curve, as a negative percentage of the peak. Zero for an empty or
// non-declining curve.
func maxDrawdown(daily []model.DailySnapshot) float64 {
	if len(daily) == 0 {
		return 0
	}
	var peak, maxDD float64
	for _, d := range daily {
		v, _ := d.TotalValue.Float64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak * 100
			if dd < maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

// sharpeRatio annualizes mean over sample standard deviation of the
// daily P&L-percent series. Zero when the series has fewer than two
// points or no variance.
func sharpeRatio(daily []model.DailySnapshot) float64 {
	if len(daily) < 2 {
		return 0
	}
	n := float64(len(daily))

	var sum float64
	for _, d := range daily {
		sum += d.PnLPercent
	}
	mean := sum / n

	var ss float64
	for _, d := range daily {
		diff := d.PnLPercent - mean
		ss += diff * diff
	}
	std := math.Sqrt(ss / (n - 1))
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(tradingDaysPerYear)
}

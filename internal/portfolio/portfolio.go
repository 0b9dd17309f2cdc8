// Package portfolio tracks cash and open positions during a simulated
// run. Positions carry an ATR-derived trailing stop that only ratchets
// in the position's favor: a long stop follows the high-water mark of
// the price upward, a short stop follows the low-water mark downward.
//
// All arithmetic here is float64. Money leaves this package through the
// simulation engine, which converts fills and snapshots to decimal for
// persistence.
package portfolio

import (
	"errors"
	"sort"
	"time"
)

var (
	ErrInvalidOrder       = errors.New("portfolio: invalid order")
	ErrInsufficientCash   = errors.New("portfolio: insufficient cash")
	ErrNoPosition         = errors.New("portfolio: no position")
	ErrInsufficientShares = errors.New("portfolio: insufficient shares")
)

// Position is an open holding. Quantity is signed: positive for a
// long, negative for a short. EntryPrice is the volume-weighted
// average across fills.
type Position struct {
	Symbol       string
	Quantity     int64
	EntryPrice   float64
	CurrentPrice float64

	// HighWater is the highest observed price since a long was opened;
	// its stop trails StopDistance below and never moves down. LowWater
	// is the short-side mirror: the lowest observed price, with the
	// stop trailing StopDistance above and never moving up. Only the
	// mark matching the position's side is maintained.
	HighWater    float64
	LowWater     float64
	StopDistance float64
	StopPrice    float64

	OpenedAt time.Time
}

// Short reports whether the position is a short.
func (p *Position) Short() bool { return p.Quantity < 0 }

// MarketValue is quantity times current price, negative for a short.
func (p *Position) MarketValue() float64 {
	return float64(p.Quantity) * p.CurrentPrice
}

// UnrealizedPnL is the gain over the average entry price. The signed
// quantity makes a falling price a gain for a short.
func (p *Position) UnrealizedPnL() float64 {
	return float64(p.Quantity) * (p.CurrentPrice - p.EntryPrice)
}

// StopViolated reports whether the current price has crossed the
// trailing stop adversely: at or below it for a long, at or above it
// for a short.
func (p *Position) StopViolated() bool {
	if p.Short() {
		return p.CurrentPrice >= p.StopPrice
	}
	return p.CurrentPrice <= p.StopPrice
}

func (p *Position) updatePrice(price float64) {
	p.CurrentPrice = price
	if p.Short() {
		if price < p.LowWater {
			p.LowWater = price
			if s := p.LowWater + p.StopDistance; s < p.StopPrice {
				p.StopPrice = s
			}
		}
		return
	}
	if price > p.HighWater {
		p.HighWater = price
		if s := p.HighWater - p.StopDistance; s > p.StopPrice {
			p.StopPrice = s
		}
	}
}

// Portfolio is the cash ledger plus open positions for one run. It is
// not safe for concurrent use; each run owns its portfolio.
type Portfolio struct {
	initialCash float64
	cash        float64
	positions   map[string]*Position
}

// New returns a portfolio holding only cash.
func New(initialCash float64) *Portfolio {
	return &Portfolio{
		initialCash: initialCash,
		cash:        initialCash,
		positions:   make(map[string]*Position),
	}
}

// Cash is the uninvested balance.
func (pf *Portfolio) Cash() float64 { return pf.cash }

// InitialCash is the starting balance.
func (pf *Portfolio) InitialCash() float64 { return pf.initialCash }

// Position returns a copy of the named position.
func (pf *Portfolio) Position(symbol string) (Position, bool) {
	p, ok := pf.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *p, true
}

// Positions returns copies of all open positions, ordered by symbol.
func (pf *Portfolio) Positions() []Position {
	out := make([]Position, 0, len(pf.positions))
	for _, p := range pf.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Buy fills a long order, deducting cash and anchoring the trailing
// stop stopDistance below the fill price.
func (pf *Portfolio) Buy(symbol string, quantity int64, price, stopDistance float64, at time.Time) error {
	if quantity <= 0 {
		return ErrInvalidOrder
	}
	return pf.add(symbol, quantity, price, stopDistance, at)
}

// Short opens or increases a short of quantity shares, crediting the
// proceeds to cash and anchoring the trailing stop stopDistance above
// the fill price.
func (pf *Portfolio) Short(symbol string, quantity int64, price, stopDistance float64, at time.Time) error {
	if quantity <= 0 {
		return ErrInvalidOrder
	}
	return pf.add(symbol, -quantity, price, stopDistance, at)
}

// add applies a signed fill. Adding to an existing position of the
// same sign averages the entry price and the stop distance; the water
// mark and the stop it has already ratcheted to are kept. A fill of
// the opposite sign is rejected: reduce or close first, a position
// never flips through an add.
func (pf *Portfolio) add(symbol string, quantity int64, price, stopDistance float64, at time.Time) error {
	if symbol == "" || quantity == 0 || price <= 0 || stopDistance <= 0 {
		return ErrInvalidOrder
	}
	cost := float64(quantity) * price
	if cost > pf.cash {
		return ErrInsufficientCash
	}

	if p, ok := pf.positions[symbol]; ok {
		if (p.Quantity > 0) != (quantity > 0) {
			return ErrInvalidOrder
		}
		pf.cash -= cost
		totalQty := p.Quantity + quantity
		p.EntryPrice = (p.EntryPrice*float64(p.Quantity) + cost) / float64(totalQty)
		p.Quantity = totalQty
		p.StopDistance = (p.StopDistance + stopDistance) / 2
		p.updatePrice(price)
		return nil
	}

	pf.cash -= cost
	pos := &Position{
		Symbol:       symbol,
		Quantity:     quantity,
		EntryPrice:   price,
		CurrentPrice: price,
		StopDistance: stopDistance,
		OpenedAt:     at,
	}
	if quantity > 0 {
		pos.HighWater = price
		pos.StopPrice = price - stopDistance
	} else {
		pos.LowWater = price
		pos.StopPrice = price + stopDistance
	}
	pf.positions[symbol] = pos
	return nil
}

// Sell reduces a long position at price, crediting cash. Selling the
// full quantity closes the position. Shorts reduce through Cover.
func (pf *Portfolio) Sell(symbol string, quantity int64, price float64) error {
	if symbol == "" || quantity <= 0 || price <= 0 {
		return ErrInvalidOrder
	}
	p, ok := pf.positions[symbol]
	if !ok {
		return ErrNoPosition
	}
	if p.Short() {
		return ErrInvalidOrder
	}
	if quantity > p.Quantity {
		return ErrInsufficientShares
	}
	pf.cash += float64(quantity) * price
	p.Quantity -= quantity
	if p.Quantity == 0 {
		delete(pf.positions, symbol)
	}
	return nil
}

// Cover buys back part of a short position at price, debiting cash.
// Covering the full quantity closes the position.
func (pf *Portfolio) Cover(symbol string, quantity int64, price float64) error {
	if symbol == "" || quantity <= 0 || price <= 0 {
		return ErrInvalidOrder
	}
	p, ok := pf.positions[symbol]
	if !ok {
		return ErrNoPosition
	}
	if !p.Short() {
		return ErrInvalidOrder
	}
	if quantity > -p.Quantity {
		return ErrInsufficientShares
	}
	pf.cash -= float64(quantity) * price
	p.Quantity += quantity
	if p.Quantity == 0 {
		delete(pf.positions, symbol)
	}
	return nil
}

// SellAll closes the named position at price and returns the quantity
// closed. A long is sold, a short is bought back.
func (pf *Portfolio) SellAll(symbol string, price float64) (int64, error) {
	p, ok := pf.positions[symbol]
	if !ok {
		return 0, ErrNoPosition
	}
	if p.Short() {
		qty := -p.Quantity
		if err := pf.Cover(symbol, qty, price); err != nil {
			return 0, err
		}
		return qty, nil
	}
	qty := p.Quantity
	if err := pf.Sell(symbol, qty, price); err != nil {
		return 0, err
	}
	return qty, nil
}

// UpdatePrices marks open positions to the latest closes and ratchets
// trailing stops. Symbols without a price keep their last mark.
func (pf *Portfolio) UpdatePrices(prices map[string]float64) {
	for sym, p := range pf.positions {
		if price, ok := prices[sym]; ok && price > 0 {
			p.updatePrice(price)
		}
	}
}

// StopViolations returns the symbols whose current price has crossed
// the trailing stop adversely, ordered by symbol.
func (pf *Portfolio) StopViolations() []string {
	var out []string
	for sym, p := range pf.positions {
		if p.StopViolated() {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}

// TotalValue is cash plus the signed market value of all open
// positions.
func (pf *Portfolio) TotalValue() float64 {
	v := pf.cash
	for _, p := range pf.positions {
		v += p.MarketValue()
	}
	return v
}

// TotalPnL is the unrealized gain summed across open positions. It
// returns to zero when the book is flat; realized gains live in cash.
func (pf *Portfolio) TotalPnL() float64 {
	var v float64
	for _, p := range pf.positions {
		v += p.UnrealizedPnL()
	}
	return v
}

// TotalPnLPercent is the gain of the whole portfolio, realized and
// unrealized, as a percentage of the initial balance.
func (pf *Portfolio) TotalPnLPercent() float64 {
	if pf.initialCash == 0 {
		return 0
	}
	return (pf.TotalValue() - pf.initialCash) / pf.initialCash * 100
}

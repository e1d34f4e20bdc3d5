package portfolio

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ichimoku-autotrader/internal/model"
)

// Prices are integer cents; reports are in currency units.
const priceExp = -2

// DefaultRecentTrades is how many trades a PnLTracker keeps for inspection.
const DefaultRecentTrades = 500

// Trade represents an execution for P&L calculation.
type Trade struct {
	Instrument model.Instrument `json:"instrument"`
	Side       model.Side       `json:"side"`
	Qty        int64            `json:"qty"`
	Price      int64            `json:"price"` // cents
	Timestamp  time.Time        `json:"timestamp"`
}

// PnLTracker accumulates cash flow and fees. Equity is cash plus positions
// marked at the latest prices, minus fees.
type PnLTracker struct {
	mu     sync.RWMutex
	recent []Trade // newest last, at most keep
	keep   int
	count  int
	cash   decimal.Decimal
	fees   decimal.Decimal

	// cumulative fees last reported per order
	orderFees map[uint64]int64
}

// NewPnLTracker creates a tracker that remembers the last
// DefaultRecentTrades trades.
func NewPnLTracker() *PnLTracker {
	return NewPnLTrackerSize(DefaultRecentTrades)
}

// NewPnLTrackerSize creates a tracker that remembers the last keep trades.
// Totals cover every trade regardless.
func NewPnLTrackerSize(keep int) *PnLTracker {
	if keep < 1 {
		keep = 1
	}
	return &PnLTracker{
		recent:    make([]Trade, 0, keep),
		keep:      keep,
		orderFees: make(map[uint64]int64),
	}
}

// Money converts cents to currency units.
func Money(cents int64) decimal.Decimal {
	return decimal.New(cents, priceExp)
}

// RecordTrade books the cash leg of a trade.
func (p *PnLTracker) RecordTrade(trade Trade) {
	notional := Money(trade.Price).Mul(decimal.NewFromInt(trade.Qty))

	p.mu.Lock()
	defer p.mu.Unlock()
	p.count++
	if len(p.recent) == p.keep {
		copy(p.recent, p.recent[1:])
		p.recent = p.recent[:p.keep-1]
	}
	p.recent = append(p.recent, trade)
	if trade.Side == model.Bid {
		p.cash = p.cash.Sub(notional)
	} else {
		p.cash = p.cash.Add(notional)
	}
}

// RecordFees applies an order's cumulative fee report. Only the change since
// the previous report is booked. done releases the order's entry.
func (p *PnLTracker) RecordFees(orderID uint64, cumulative int64, done bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delta := cumulative - p.orderFees[orderID]
	p.fees = p.fees.Add(Money(delta))
	if done {
		delete(p.orderFees, orderID)
	} else {
		p.orderFees[orderID] = cumulative
	}
}

// GetTrades returns a copy of the remembered trades, oldest first.
func (p *PnLTracker) GetTrades() []Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Trade, len(p.recent))
	copy(cp, p.recent)
	return cp
}

// PnLSummary is the P&L in currency units.
type PnLSummary struct {
	Cash        decimal.Decimal `json:"cash"`
	Fees        decimal.Decimal `json:"fees"`
	MarkedValue decimal.Decimal `json:"marked_value"`
	Equity      decimal.Decimal `json:"equity"`
	TotalTrades int             `json:"total_trades"`
}

// Summary values the given positions at their last prices.
func (p *PnLTracker) Summary(positions []model.Position) PnLSummary {
	marked := decimal.Zero
	for _, pos := range positions {
		marked = marked.Add(Money(pos.LastPrice).Mul(decimal.NewFromInt(pos.Qty)))
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return PnLSummary{
		Cash:        p.cash,
		Fees:        p.fees,
		MarkedValue: marked,
		Equity:      p.cash.Add(marked).Sub(p.fees),
		TotalTrades: p.count,
	}
}

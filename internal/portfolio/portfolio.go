// Package portfolio tracks positions, P&L, and inventory limits.
//
// The quoted instrument and its hedge are held side by side; prices are
// marked from the reference book so unrealized P&L is available at any time.
package portfolio

import (
	"sync"

	"ichimoku-autotrader/internal/model"
)

// Portfolio tracks the net position per instrument. Safe for concurrent
// readers; the event loop is the only writer.
type Portfolio struct {
	mu        sync.RWMutex
	positions map[model.Instrument]*model.Position
}

// New creates a new empty Portfolio.
func New() *Portfolio {
	return &Portfolio{
		positions: make(map[model.Instrument]*model.Position, 2),
	}
}

func (pf *Portfolio) get(inst model.Instrument) *model.Position {
	pos, ok := pf.positions[inst]
	if !ok {
		pos = &model.Position{Instrument: inst}
		pf.positions[inst] = pos
	}
	return pos
}

// Apply books a trade of volume at price on the given side.
func (pf *Portfolio) Apply(inst model.Instrument, side model.Side, price, volume int64) {
	qty := volume
	if side == model.Ask {
		qty = -volume
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.get(inst).Apply(qty, price)
}

// Mark updates the last price used for unrealized P&L. Zero is ignored.
func (pf *Portfolio) Mark(inst model.Instrument, price int64) {
	if price == 0 {
		return
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.get(inst).LastPrice = price
}

// Position returns a copy of the position in inst.
func (pf *Portfolio) Position(inst model.Instrument) model.Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pos, ok := pf.positions[inst]; ok {
		return *pos
	}
	return model.Position{Instrument: inst}
}

// GetPositions returns a snapshot of all positions, ordered by instrument.
func (pf *Portfolio) GetPositions() []model.Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]model.Position, 0, len(pf.positions))
	for _, inst := range []model.Instrument{model.Future, model.ETF} {
		if p, ok := pf.positions[inst]; ok {
			result = append(result, *p)
		}
	}
	return result
}

// Marks returns the last price per instrument.
func (pf *Portfolio) Marks() map[model.Instrument]int64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make(map[model.Instrument]int64, len(pf.positions))
	for inst, p := range pf.positions {
		out[inst] = p.LastPrice
	}
	return out
}

// NetDelta is the combined quantity across both legs; a fully hedged book
// is zero.
func (pf *Portfolio) NetDelta() int64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var total int64
	for _, p := range pf.positions {
		total += p.Qty
	}
	return total
}

// TotalUnrealizedPnL returns the unrealized P&L across all positions in ticks.
func (pf *Portfolio) TotalUnrealizedPnL() int64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	var total int64
	for _, p := range pf.positions {
		total += p.UnrealizedPnL()
	}
	return total
}

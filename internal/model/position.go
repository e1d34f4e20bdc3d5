package model

// Position is the net holding in one instrument.
type Position struct {
	Instrument Instrument `json:"instrument"`
	Qty        int64      `json:"qty"`        // positive = long, negative = short
	AvgPrice   int64      `json:"avg_price"`  // ticks, of the open quantity
	LastPrice  int64      `json:"last_price"` // latest mark
	Realized   int64      `json:"realized"`   // ticks x lots, closed trades
}

// UnrealizedPnL is (mark - average) * qty in ticks.
func (p *Position) UnrealizedPnL() int64 {
	if p.LastPrice == 0 {
		return 0
	}
	return (p.LastPrice - p.AvgPrice) * p.Qty
}

// Apply books a signed trade of qty at price, updating the average and the
// realized PnL of any closed quantity.
func (p *Position) Apply(qty, price int64) {
	if qty == 0 {
		return
	}
	switch {
	case p.Qty == 0 || (p.Qty > 0) == (qty > 0):
		total := p.Qty + qty
		p.AvgPrice = (p.AvgPrice*abs(p.Qty) + price*abs(qty)) / abs(total)
		p.Qty = total
	default:
		closed := min64(abs(qty), abs(p.Qty))
		if p.Qty > 0 {
			p.Realized += (price - p.AvgPrice) * closed
		} else {
			p.Realized += (p.AvgPrice - price) * closed
		}
		p.Qty += qty
		if p.Qty == 0 {
			p.AvgPrice = 0
		} else if (p.Qty > 0) == (qty > 0) {
			// flipped through zero; remainder opened at price
			p.AvgPrice = price
		}
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

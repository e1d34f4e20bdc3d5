package execution

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"ichimoku-autotrader/internal/model"
)

// Fill represents a simulated execution.
type Fill struct {
	OrderID  uint64     `json:"order_id"`
	Side     model.Side `json:"side"`
	Price    int64      `json:"price"`
	Volume   int64      `json:"volume"`
	Hedge    bool       `json:"hedge"`
	FilledAt time.Time  `json:"filled_at"`
}

type restingOrder struct {
	model.Order
	filled int64
	fees   int64
}

// PaperVenue simulates the venue in process. Quotes rest on the quoted
// instrument's book and trade when the book crosses them; hedges execute
// immediately against the reference instrument's top of book. Every
// outcome is reported through emit, in venue order; emit runs under the
// venue lock and must not call back into it.
type PaperVenue struct {
	mu   sync.Mutex
	emit func(model.Event)
	log  *slog.Logger

	quoted, reference model.Instrument
	books             map[model.Instrument]model.BookUpdate
	resting           map[uint64]*restingOrder
	seen              map[uint64]struct{}
	fills             []Fill

	// Simulation parameters, in basis points of notional. Maker fees are
	// usually negative (a rebate).
	makerFeeBps int64
	takerFeeBps int64
}

// NewPaperVenue creates a simulated venue quoting ETF and hedging in the
// future.
func NewPaperVenue(emit func(model.Event), makerFeeBps, takerFeeBps int64, log *slog.Logger) *PaperVenue {
	if log == nil {
		log = slog.Default()
	}
	return &PaperVenue{
		emit:        emit,
		log:         log.With(slog.String("component", "paper")),
		quoted:      model.ETF,
		reference:   model.Future,
		books:       make(map[model.Instrument]model.BookUpdate, 2),
		resting:     make(map[uint64]*restingOrder),
		seen:        make(map[uint64]struct{}),
		fills:       make([]Fill, 0, 1000),
		makerFeeBps: makerFeeBps,
		takerFeeBps: takerFeeBps,
	}
}

// GetFills returns a snapshot of all fills.
func (p *PaperVenue) GetFills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Resting returns the number of orders resting on the book.
func (p *PaperVenue) Resting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.resting)
}

// OnBook updates the simulated market. Resting orders crossed by a new
// quoted-instrument book trade at their limit price as makers.
func (p *PaperVenue) OnBook(b model.BookUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.books[b.Instrument] = b
	if b.Instrument != p.quoted {
		return
	}

	ids := make([]uint64, 0, len(p.resting))
	for id := range p.resting {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		o := p.resting[id]
		if p.crosses(o.Side, o.Price, b) {
			p.trade(o, o.Price, o.Volume, p.makerFeeBps)
		}
	}
}

func (p *PaperVenue) crosses(side model.Side, price int64, b model.BookUpdate) bool {
	if side == model.Bid {
		return b.BestAsk() != 0 && price >= b.BestAsk()
	}
	return b.BestBid() != 0 && price <= b.BestBid()
}

// trade fills volume of o at price and reports fill and status. Caller
// holds p.mu.
func (p *PaperVenue) trade(o *restingOrder, price, volume, feeBps int64) {
	o.filled += volume
	o.Volume -= volume
	o.fees += price * volume * feeBps / 10000
	p.fills = append(p.fills, Fill{OrderID: o.ID, Side: o.Side, Price: price, Volume: volume, FilledAt: time.Now()})

	p.emit(model.Fill{OrderID: o.ID, Price: price, Volume: volume})
	p.emit(model.StatusUpdate{OrderID: o.ID, FillVolume: o.filled, RemainingVolume: o.Volume, Fees: o.fees})
	if o.Volume == 0 {
		delete(p.resting, o.ID)
	}
}

func (p *PaperVenue) reject(id uint64, msg string) {
	p.log.Warn("order rejected", slog.Uint64("order_id", id), slog.String("reason", msg))
	p.emit(model.OrderError{OrderID: id, Message: msg})
}

// InsertOrder places an order. Invalid orders are rejected with an
// OrderError event, as the venue would.
func (p *PaperVenue) InsertOrder(id uint64, side model.Side, price, volume int64, lifespan model.Lifespan) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.seen[id]; dup {
		p.reject(id, "duplicate order id")
		return nil
	}
	p.seen[id] = struct{}{}
	switch {
	case volume <= 0:
		p.reject(id, "invalid volume")
		return nil
	case price <= 0 || price%model.TickSize != 0:
		p.reject(id, "price is not a positive multiple of the tick size")
		return nil
	}

	o := &restingOrder{Order: model.Order{ID: id, Side: side, Price: price, Volume: volume}}
	p.resting[id] = o

	if b, ok := p.books[p.quoted]; ok && p.crosses(side, price, b) {
		top := b.BestAsk()
		depth := b.AskVolumes[0]
		if side == model.Ask {
			top, depth = b.BestBid(), b.BidVolumes[0]
		}
		if depth <= 0 {
			depth = volume
		}
		p.trade(o, top, min64(volume, depth), p.takerFeeBps)
	}
	if o.Volume > 0 && lifespan == model.FillAndKill {
		o.Volume = 0
		delete(p.resting, id)
		p.emit(model.StatusUpdate{OrderID: id, FillVolume: o.filled, Fees: o.fees})
		return nil
	}
	if o.filled == 0 {
		p.emit(model.StatusUpdate{OrderID: id, RemainingVolume: o.Volume})
	}
	return nil
}

// CancelOrder pulls a resting order. Cancels for orders that are no longer
// resting are ignored.
func (p *PaperVenue) CancelOrder(id uint64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.resting[id]
	if !ok {
		return nil
	}
	delete(p.resting, id)
	p.emit(model.StatusUpdate{OrderID: id, FillVolume: o.filled, Fees: o.fees})
	return nil
}

// HedgeOrder executes against the reference book at the touch if the limit
// allows; otherwise it reports an empty hedge fill.
func (p *PaperVenue) HedgeOrder(id uint64, side model.Side, price, volume int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.seen[id]; dup {
		p.reject(id, "duplicate order id")
		return nil
	}
	p.seen[id] = struct{}{}

	b := p.books[p.reference]
	touch := b.BestAsk()
	if side == model.Ask {
		touch = b.BestBid()
	}
	if touch == 0 || (side == model.Bid && touch > price) || (side == model.Ask && touch < price) {
		p.emit(model.HedgeFill{OrderID: id})
		return nil
	}
	p.fills = append(p.fills, Fill{OrderID: id, Side: side, Price: touch, Volume: volume, Hedge: true, FilledAt: time.Now()})
	p.emit(model.HedgeFill{OrderID: id, Price: touch, Volume: volume})
	return nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

var _ model.Gateway = (*PaperVenue)(nil)

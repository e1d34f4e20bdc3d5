// Package execution keeps the agent's resting quotes in line with the latest
// signal and reconciles them against venue reports.
//
// The Manager holds at most one working order per side, owns the order-id
// sequence, and tracks position from fills. Every fill is hedged with an
// aggressive order on the opposite side.
package execution

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"ichimoku-autotrader/internal/model"
	"ichimoku-autotrader/internal/portfolio"
	"ichimoku-autotrader/internal/strategy"
)

// ErrUnknownOrder means the venue reported an order id the manager is not
// tracking: its bookkeeping and the venue's have diverged.
var ErrUnknownOrder = errors.New("execution: unknown order id")

// QuoteState is the state of one side's working order.
type QuoteState int

const (
	Idle    QuoteState = iota // no working order
	Pending                   // an order is working at Quote.Price
)

func (s QuoteState) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Pending:
		return "PENDING"
	default:
		return fmt.Sprintf("QuoteState(%d)", int(s))
	}
}

func (s QuoteState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Quote is the working order of one side. OrderID and Price are zero when
// Idle.
type Quote struct {
	State   QuoteState `json:"state"`
	OrderID uint64     `json:"order_id"`
	Price   int64      `json:"price"`
}

// Decline records an insert skipped because of the position limit.
type Decline struct {
	Side   model.Side `json:"side"`
	Price  int64      `json:"price"`
	Reason string     `json:"reason"`
}

// Actions lists the commands issued by one Requote.
type Actions struct {
	Cancels  []model.Order
	Inserts  []model.Order
	Declines []Decline
}

// Empty reports whether nothing was issued or declined.
func (a Actions) Empty() bool {
	return len(a.Cancels) == 0 && len(a.Inserts) == 0 && len(a.Declines) == 0
}

// Option configures a Manager.
type Option func(*Manager)

// WithCancelOnHold controls whether a working order is pulled when the
// signal no longer wants that side. Default true.
func WithCancelOnHold(v bool) Option {
	return func(m *Manager) { m.cancelOnHold = v }
}

// WithFirstOrderID sets the first id the manager allocates. Default 1.
func WithFirstOrderID(id uint64) Option {
	return func(m *Manager) {
		if id > 0 {
			m.nextID = id
		}
	}
}

// Manager is the order inventory state machine. Not safe for concurrent
// use; the event loop is the only caller.
type Manager struct {
	gw           model.Gateway
	limits       portfolio.Limits
	log          *slog.Logger
	cancelOnHold bool

	nextID   uint64
	position int64
	quotes   [2]Quote                   // indexed by model.Side
	live     [2]map[uint64]*model.Order // indexed by model.Side
}

// NewManager creates a manager that sends commands through gw.
func NewManager(gw model.Gateway, limits portfolio.Limits, log *slog.Logger, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		gw:           gw,
		limits:       limits,
		log:          log.With(slog.String("component", "inventory")),
		cancelOnHold: true,
		nextID:       1,
		live: [2]map[uint64]*model.Order{
			model.Bid: make(map[uint64]*model.Order),
			model.Ask: make(map[uint64]*model.Order),
		},
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) allocID() uint64 {
	id := m.nextID
	m.nextID++
	return id
}

// Requote moves the working orders toward the prices the signal asks for.
// A Buy bids at the best ask, a Sell offers at the best bid, anything else
// wants neither side. A side whose order was cancelled is not re-quoted in
// the same call. The returned error joins any commands the gateway refused;
// the sides concerned keep their previous state.
func (m *Manager) Requote(sig strategy.Signal, bestBid, bestAsk int64) (Actions, error) {
	var want [2]int64
	switch sig.Action {
	case strategy.Buy:
		want[model.Bid] = bestAsk
	case strategy.Sell:
		want[model.Ask] = bestBid
	case strategy.Hold:
	default:
		return Actions{}, fmt.Errorf("execution: unexpected action %v", sig.Action)
	}

	var acts Actions
	var errs []error
	for _, side := range []model.Side{model.Bid, model.Ask} {
		if err := m.requoteSide(side, want[side], &acts); err != nil {
			errs = append(errs, err)
		}
	}
	return acts, errors.Join(errs...)
}

func (m *Manager) requoteSide(side model.Side, price int64, acts *Actions) error {
	q := &m.quotes[side]
	switch q.State {
	case Pending:
		if price == q.Price || (price == 0 && !m.cancelOnHold) {
			return nil
		}
		if err := m.gw.CancelOrder(q.OrderID); err != nil {
			return fmt.Errorf("cancel %s order %d: %w", side, q.OrderID, err)
		}
		m.log.Info("cancel order",
			slog.Uint64("order_id", q.OrderID), slog.String("side", side.String()),
			slog.Int64("price", q.Price), slog.Int64("target", price))
		order := model.Order{ID: q.OrderID, Side: side, Price: q.Price}
		if o, ok := m.live[side][q.OrderID]; ok {
			order = *o
		}
		acts.Cancels = append(acts.Cancels, order)
		*q = Quote{}
		return nil

	case Idle:
		if price == 0 {
			return nil
		}
		active := m.LiveVolume(side)
		if ok, reason := m.limits.Can(side, m.position, active); !ok {
			m.log.Info("quote declined",
				slog.String("side", side.String()), slog.Int64("price", price),
				slog.Int64("position", m.position), slog.Int64("active", active))
			acts.Declines = append(acts.Declines, Decline{Side: side, Price: price, Reason: reason})
			return nil
		}
		id := m.allocID()
		if err := m.gw.InsertOrder(id, side, price, m.limits.LotSize, model.GoodForDay); err != nil {
			return fmt.Errorf("insert %s order %d: %w", side, id, err)
		}
		m.log.Info("insert order",
			slog.Uint64("order_id", id), slog.String("side", side.String()),
			slog.Int64("price", price), slog.Int64("volume", m.limits.LotSize),
			slog.Int64("position", m.position), slog.Int64("active", active))
		o := &model.Order{ID: id, Side: side, Price: price, Volume: m.limits.LotSize}
		m.live[side][id] = o
		*q = Quote{State: Pending, OrderID: id, Price: price}
		acts.Inserts = append(acts.Inserts, *o)
		return nil

	default:
		return fmt.Errorf("execution: %s side in unexpected state %v", side, q.State)
	}
}

func (m *Manager) lookup(id uint64) (model.Side, *model.Order, bool) {
	if o, ok := m.live[model.Bid][id]; ok {
		return model.Bid, o, true
	}
	if o, ok := m.live[model.Ask][id]; ok {
		return model.Ask, o, true
	}
	return 0, nil, false
}

// OrderStatus applies a venue status report. Zero remaining volume retires
// the order; otherwise its remaining volume is replaced. An unknown id
// returns ErrUnknownOrder and changes nothing.
func (m *Manager) OrderStatus(s model.StatusUpdate) error {
	side, o, ok := m.lookup(s.OrderID)
	if !ok {
		return fmt.Errorf("%w: status for order %d", ErrUnknownOrder, s.OrderID)
	}
	if s.RemainingVolume == 0 {
		delete(m.live[side], s.OrderID)
		if q := &m.quotes[side]; q.State == Pending && q.OrderID == s.OrderID {
			*q = Quote{}
		}
		return nil
	}
	o.Volume = s.RemainingVolume
	return nil
}

// OrderFilled books a fill against the position and hedges it. The hedge
// takes the next order id and is not tracked afterwards. An unknown id
// returns ErrUnknownOrder and changes nothing.
func (m *Manager) OrderFilled(f model.Fill) (model.Hedge, error) {
	side, _, ok := m.lookup(f.OrderID)
	if !ok {
		return model.Hedge{}, fmt.Errorf("%w: fill for order %d", ErrUnknownOrder, f.OrderID)
	}
	switch side {
	case model.Bid:
		m.position += f.Volume
	case model.Ask:
		m.position -= f.Volume
	}

	hs := side.Opposite()
	h := model.Hedge{
		OrderID: m.allocID(),
		Side:    hs,
		Price:   model.HedgePrice(hs),
		Volume:  f.Volume,
	}
	if err := m.gw.HedgeOrder(h.OrderID, h.Side, h.Price, h.Volume); err != nil {
		return h, fmt.Errorf("hedge order %d: %w", h.OrderID, err)
	}
	m.log.Info("hedge order",
		slog.Uint64("order_id", h.OrderID), slog.Uint64("fill_order_id", f.OrderID),
		slog.String("side", hs.String()), slog.Int64("price", h.Price),
		slog.Int64("volume", h.Volume), slog.Int64("position", m.position))
	return h, nil
}

// OrderError handles a venue rejection. Errors tied to an order retire it
// as if a zero-remaining status had arrived; id 0 is ignored.
func (m *Manager) OrderError(id uint64, msg string) error {
	if id == 0 {
		return nil
	}
	m.log.Warn("order error", slog.Uint64("order_id", id), slog.String("error", msg))
	return m.OrderStatus(model.StatusUpdate{OrderID: id})
}

// Reset forgets every live order and returns both sides to Idle, for when
// the venue session that held them is gone. Position and the id sequence
// carry over. The retired orders are returned ordered by id.
func (m *Manager) Reset() []model.Order {
	retired := append(m.Live(model.Bid), m.Live(model.Ask)...)
	sort.Slice(retired, func(i, j int) bool { return retired[i].ID < retired[j].ID })
	for _, side := range []model.Side{model.Bid, model.Ask} {
		m.live[side] = make(map[uint64]*model.Order)
		m.quotes[side] = Quote{}
	}
	if len(retired) > 0 {
		m.log.Warn("live orders retired", slog.Int("count", len(retired)), slog.Int64("position", m.position))
	}
	return retired
}

// Issued reports whether id was allocated by this manager.
func (m *Manager) Issued(id uint64) bool {
	return id != 0 && id < m.nextID
}

// Position returns the net position in the quoted instrument.
func (m *Manager) Position() int64 { return m.position }

// Quote returns the working order state for side.
func (m *Manager) Quote(side model.Side) Quote { return m.quotes[side] }

// LiveVolume sums the remaining volume of every live order on side,
// including orders cancelled but not yet confirmed.
func (m *Manager) LiveVolume(side model.Side) int64 {
	var total int64
	for _, o := range m.live[side] {
		total += o.Volume
	}
	return total
}

// Live returns copies of the live orders on side, ordered by id.
func (m *Manager) Live(side model.Side) []model.Order {
	out := make([]model.Order, 0, len(m.live[side]))
	for _, o := range m.live[side] {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Inventory is a point-in-time copy of the manager's state.
type Inventory struct {
	Position    int64         `json:"position"`
	Bid         Quote         `json:"bid"`
	Ask         Quote         `json:"ask"`
	LiveBids    []model.Order `json:"live_bids"`
	LiveAsks    []model.Order `json:"live_asks"`
	NextOrderID uint64        `json:"next_order_id"`
}

// Snapshot copies the current state.
func (m *Manager) Snapshot() Inventory {
	return Inventory{
		Position:    m.position,
		Bid:         m.quotes[model.Bid],
		Ask:         m.quotes[model.Ask],
		LiveBids:    m.Live(model.Bid),
		LiveAsks:    m.Live(model.Ask),
		NextOrderID: m.nextID,
	}
}

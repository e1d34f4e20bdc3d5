// Package autotrader wires the Ichimoku strategy to the order inventory
// manager and reacts to venue events.
package autotrader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"ichimoku-autotrader/internal/execution"
	"ichimoku-autotrader/internal/indicator"
	"ichimoku-autotrader/internal/logger"
	"ichimoku-autotrader/internal/metrics"
	"ichimoku-autotrader/internal/model"
	"ichimoku-autotrader/internal/notification"
	"ichimoku-autotrader/internal/portfolio"
	"ichimoku-autotrader/internal/strategy"
)

// Config holds the trading parameters.
type Config struct {
	// Reference is the instrument whose best bid feeds the cloud.
	Reference    model.Instrument
	Cloud        indicator.Config
	Limits       portfolio.Limits
	CancelOnHold bool
}

// DefaultConfig quotes against the future book with the standard cloud.
func DefaultConfig() Config {
	return Config{
		Reference:    model.Future,
		Cloud:        indicator.DefaultConfig(),
		Limits:       portfolio.DefaultLimits(),
		CancelOnHold: true,
	}
}

// Deps are the collaborators. Only Gateway is required.
type Deps struct {
	Gateway   model.Gateway
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Notifier  notification.Notifier
	Journal   model.Journal
	Publisher model.StatePublisher
	Log       *slog.Logger
}

// AutoTrader is the agent. Its On* handlers must be called from a single
// goroutine; Run does that for a channel of events. Status is safe to call
// from anywhere.
type AutoTrader struct {
	cfg      Config
	strategy *strategy.Ichimoku
	mgr      *execution.Manager
	book     *portfolio.Portfolio
	pnl      *portfolio.PnLTracker

	m       *metrics.Metrics
	health  *metrics.HealthStatus
	notify  notification.Notifier
	journal model.Journal
	pub     model.StatePublisher
	log     *slog.Logger

	hedges   map[uint64]model.Hedge // unfilled hedge volume by id
	declined [2]bool                // limit alert already raised, by side
	faults   uint64
	lastSig  *strategy.Signal

	dirty  dirtyBits
	status atomic.Pointer[Status]
	outbox chan outboxMsg
}

// New creates the agent.
func New(cfg Config, deps Deps) *AutoTrader {
	log := deps.Log
	if log == nil {
		log = slog.Default()
	}
	if cfg.Limits == (portfolio.Limits{}) {
		cfg.Limits = portfolio.DefaultLimits()
	}
	a := &AutoTrader{
		cfg:      cfg,
		strategy: strategy.NewIchimoku(cfg.Cloud),
		mgr: execution.NewManager(deps.Gateway, cfg.Limits, log,
			execution.WithCancelOnHold(cfg.CancelOnHold)),
		book:    portfolio.New(),
		pnl:     portfolio.NewPnLTracker(),
		m:       deps.Metrics,
		health:  deps.Health,
		notify:  deps.Notifier,
		journal: deps.Journal,
		pub:     deps.Publisher,
		log:     log.With(slog.String("component", "autotrader")),
		hedges:  make(map[uint64]model.Hedge),
		outbox:  make(chan outboxMsg, 64),
	}
	a.refresh(time.Now())
	return a
}

// OnOrderBookUpdate marks the portfolio and, for a two-sided reference
// book, feeds the best bid to the strategy and requotes.
func (a *AutoTrader) OnOrderBookUpdate(b model.BookUpdate) {
	defer a.flush()
	if a.m != nil {
		a.m.BookUpdatesTotal.WithLabelValues(b.Instrument.String()).Inc()
	}
	if mid := b.Mid(); mid != 0 {
		a.book.Mark(b.Instrument, mid)
	}

	bestBid, bestAsk := b.BestBid(), b.BestAsk()
	if b.Instrument != a.cfg.Reference || bestBid == 0 || bestAsk == 0 {
		return
	}
	if a.health != nil {
		a.health.SetLastBookTime(time.Now())
	}

	start := time.Now()
	sig, ok := a.strategy.OnPrice(bestBid)
	if a.m != nil {
		a.m.IndicatorComputeDur.Observe(time.Since(start).Seconds())
	}
	have, need := a.strategy.History()
	if a.m != nil {
		a.m.HistoryLen.Set(float64(have))
	}
	if !ok {
		a.log.Debug("waiting for price history",
			slog.Int("have", have), slog.Int("need", need),
			slog.String("error", indicator.ErrInsufficientHistory.Error()))
		return
	}
	if a.health != nil && have == need {
		a.health.SetHistoryReady(true)
	}

	a.lastSig = &sig
	a.log.Debug("signal",
		slog.String("action", sig.Action.String()),
		slog.Float64("confidence", sig.Confidence),
		slog.Int64("price", sig.Price),
		slog.Any("votes", sig.Votes))
	if a.m != nil {
		a.m.SignalsTotal.WithLabelValues(sig.Action.String()).Inc()
		a.m.SignalConfidence.Set(sig.Confidence)
	}

	acts, err := a.mgr.Requote(sig, bestBid, bestAsk)
	if err != nil {
		a.log.Error("requote", slog.String("error", err.Error()))
		if a.m != nil {
			a.m.GatewayErrors.Inc()
		}
	}
	a.recordActions(acts)
	a.dirty |= dirtySignal
}

func (a *AutoTrader) recordActions(acts execution.Actions) {
	pos := a.mgr.Position()
	for _, o := range acts.Cancels {
		if a.m != nil {
			a.m.OrdersCancelled.WithLabelValues(o.Side.String()).Inc()
		}
		a.record(model.JournalEntry{Kind: "cancel", OrderID: o.ID, Side: o.Side.String(), Price: o.Price, Volume: o.Volume, Position: pos})
	}
	for _, o := range acts.Inserts {
		a.declined[o.Side] = false
		if a.m != nil {
			a.m.OrdersInserted.WithLabelValues(o.Side.String()).Inc()
		}
		a.record(model.JournalEntry{Kind: "insert", OrderID: o.ID, Side: o.Side.String(), Price: o.Price, Volume: o.Volume, Position: pos})
	}
	for _, d := range acts.Declines {
		if a.m != nil {
			a.m.QuotesDeclined.WithLabelValues(d.Side.String()).Inc()
		}
		if !a.declined[d.Side] {
			a.declined[d.Side] = true
			a.alert(notification.Alert{Level: notification.AlertWarning, Title: "Position limit",
				Side:    d.Side.String(),
				Message: fmt.Sprintf("%s quote at %d declined: %s", d.Side, d.Price, d.Reason)})
		}
	}
	if len(acts.Cancels)+len(acts.Inserts) > 0 {
		a.dirty |= dirtyInventory
	}
}

// OnTradeTicks is informational only.
func (a *AutoTrader) OnTradeTicks(t model.TradeTicks) {
	defer a.flush()
	if a.m != nil {
		a.m.TradeTicksTotal.Inc()
	}
	a.log.Debug("trade ticks", slog.String("instrument", t.Instrument.String()), slog.Uint64("sequence", t.Sequence))
}

// OnOrderFilled updates the position and hedges the fill.
func (a *AutoTrader) OnOrderFilled(f model.Fill) {
	defer a.flush()
	h, err := a.mgr.OrderFilled(f)
	if errors.Is(err, execution.ErrUnknownOrder) {
		a.fault("fill", f.OrderID, err)
		return
	}
	pos := a.mgr.Position()

	// The hedge always takes the side opposite the filled quote.
	side := h.Side.Opposite()
	a.book.Apply(model.ETF, side, f.Price, f.Volume)
	a.pnl.RecordTrade(portfolio.Trade{Instrument: model.ETF, Side: side, Qty: f.Volume, Price: f.Price, Timestamp: time.Now()})
	a.record(model.JournalEntry{Kind: "fill", OrderID: f.OrderID, Side: side.String(), Price: f.Price, Volume: f.Volume, Position: pos})
	if a.m != nil {
		a.m.FillsTotal.WithLabelValues(side.String()).Inc()
		a.m.FilledVolume.WithLabelValues(side.String()).Add(float64(f.Volume))
	}
	a.log.Info("order filled",
		slog.Uint64("order_id", f.OrderID), slog.String("side", side.String()),
		slog.Int64("price", f.Price), slog.Int64("volume", f.Volume), slog.Int64("position", pos))

	if err != nil {
		a.log.Error("hedge not sent", slog.Uint64("order_id", h.OrderID), slog.String("error", err.Error()))
		if a.m != nil {
			a.m.GatewayErrors.Inc()
		}
		a.unhedged("not_sent", h, h.Volume)
		a.alert(notification.Alert{Level: notification.AlertCritical, Title: "Hedge not sent",
			OrderID: f.OrderID, Side: side.String(),
			Message: fmt.Sprintf("fill of %d on order %d left unhedged: %v", f.Volume, f.OrderID, err)})
	} else {
		a.hedges[h.OrderID] = h
		if a.m != nil {
			a.m.HedgesTotal.WithLabelValues(h.Side.String()).Inc()
		}
		a.record(model.JournalEntry{Kind: "hedge", OrderID: h.OrderID, Side: h.Side.String(), Price: h.Price, Volume: h.Volume, Position: pos})
	}
	a.dirty |= dirtyInventory
}

// OnOrderStatus reconciles a status report and books fees.
func (a *AutoTrader) OnOrderStatus(s model.StatusUpdate) {
	defer a.flush()
	if err := a.mgr.OrderStatus(s); err != nil {
		a.fault("status", s.OrderID, err)
		return
	}
	done := s.RemainingVolume == 0
	a.pnl.RecordFees(s.OrderID, s.Fees, done)
	a.record(model.JournalEntry{Kind: "status", OrderID: s.OrderID, Volume: s.RemainingVolume, Position: a.mgr.Position(), Fees: s.Fees})
	a.log.Debug("order status",
		slog.Uint64("order_id", s.OrderID), slog.Int64("fill_volume", s.FillVolume),
		slog.Int64("remaining_volume", s.RemainingVolume), slog.Int64("fees", s.Fees))
	if done {
		a.dirty |= dirtyInventory
	}
}

// OnHedgeFilled books the future leg of a hedge. Hedges execute at once,
// so the report settles the hedge; volume short of the order, including
// the empty report of a hedge that found no liquidity, is left unhedged.
func (a *AutoTrader) OnHedgeFilled(f model.HedgeFill) {
	defer a.flush()
	h, ok := a.hedges[f.OrderID]
	if !ok {
		a.log.Warn("fill for unknown hedge",
			slog.Uint64("order_id", f.OrderID), slog.Int64("price", f.Price), slog.Int64("volume", f.Volume))
		return
	}
	delete(a.hedges, f.OrderID)
	a.dirty |= dirtyInventory

	if f.Volume > 0 {
		a.book.Apply(model.Future, h.Side, f.Price, f.Volume)
		a.pnl.RecordTrade(portfolio.Trade{Instrument: model.Future, Side: h.Side, Qty: f.Volume, Price: f.Price, Timestamp: time.Now()})
		a.record(model.JournalEntry{Kind: "hedge_fill", OrderID: f.OrderID, Side: h.Side.String(), Price: f.Price, Volume: f.Volume, Position: a.mgr.Position()})
		if a.m != nil {
			a.m.HedgeVolume.Add(float64(f.Volume))
		}
		a.log.Info("hedge filled",
			slog.Uint64("order_id", f.OrderID), slog.String("side", h.Side.String()),
			slog.Int64("price", f.Price), slog.Int64("volume", f.Volume))
	}

	short := h.Volume - f.Volume
	if short <= 0 {
		return
	}
	a.unhedged("unfilled", h, short)
	logger.Critical(a.log, "hedge not filled",
		slog.Uint64("order_id", f.OrderID), slog.String("side", h.Side.String()),
		slog.Int64("ordered", h.Volume), slog.Int64("filled", f.Volume), slog.Int64("position", a.mgr.Position()))
	a.alert(notification.Alert{Level: notification.AlertCritical, Title: "Hedge not filled",
		OrderID: f.OrderID, Side: h.Side.String(),
		Message: fmt.Sprintf("hedge order %d filled %d of %d lots", f.OrderID, f.Volume, h.Volume)})
}

// OnError handles a venue error. An error for a live quote retires it.
func (a *AutoTrader) OnError(e model.OrderError) {
	defer a.flush()
	if a.m != nil {
		a.m.OrderErrors.Inc()
	}
	a.record(model.JournalEntry{Kind: "error", OrderID: e.OrderID, Position: a.mgr.Position(), Note: e.Message})

	if e.OrderID == 0 {
		a.log.Warn("venue error", slog.String("message", e.Message))
		return
	}
	if h, ok := a.hedges[e.OrderID]; ok {
		delete(a.hedges, e.OrderID)
		a.unhedged("rejected", h, h.Volume)
		a.alert(notification.Alert{Level: notification.AlertCritical, Title: "Hedge rejected",
			OrderID: e.OrderID, Side: h.Side.String(),
			Message: fmt.Sprintf("hedge order %d: %s", e.OrderID, e.Message)})
		a.dirty |= dirtyInventory
		return
	}
	if err := a.mgr.OrderError(e.OrderID, e.Message); err != nil {
		if !a.mgr.Issued(e.OrderID) {
			a.fault("error", e.OrderID, fmt.Errorf("%w: venue error %q", err, e.Message))
			return
		}
		// Retired already; the venue is catching up.
		a.log.Warn("error for retired order",
			slog.Uint64("order_id", e.OrderID), slog.String("message", e.Message))
		return
	}
	a.dirty |= dirtyInventory
}

// OnSessionLost forgets the orders and hedges that belonged to a venue
// session which has dropped. Their reports will never arrive.
func (a *AutoTrader) OnSessionLost(e model.SessionLost) {
	defer a.flush()
	retired := a.mgr.Reset()
	pos := a.mgr.Position()
	for _, o := range retired {
		a.record(model.JournalEntry{Kind: "retired", OrderID: o.ID, Side: o.Side.String(), Price: o.Price, Volume: o.Volume, Position: pos, Note: e.Reason})
	}
	var open int64
	for id, h := range a.hedges {
		open += h.Volume
		a.unhedged("session_lost", h, h.Volume)
		a.record(model.JournalEntry{Kind: "retired", OrderID: id, Side: h.Side.String(), Price: h.Price, Volume: h.Volume, Position: pos, Note: e.Reason})
		delete(a.hedges, id)
	}
	a.declined = [2]bool{}
	if a.m != nil {
		a.m.VenueSessionsLost.Inc()
		a.m.VenueRetiredOrders.Add(float64(len(retired)))
	}
	a.dirty |= dirtyInventory

	a.log.Warn("venue session lost",
		slog.String("reason", e.Reason), slog.Int("unsent", e.Unsent),
		slog.Int("retired", len(retired)), slog.Int64("unhedged", open), slog.Int64("position", pos))
	level := notification.AlertWarning
	if open > 0 {
		level = notification.AlertCritical
	}
	a.alert(notification.Alert{Level: level, Title: "Venue session lost",
		Message: fmt.Sprintf("%s; retired %d orders, %d unsent commands, %d lots of hedges unconfirmed",
			e.Reason, len(retired), e.Unsent, open)})
}

func (a *AutoTrader) unhedged(reason string, h model.Hedge, volume int64) {
	if a.m != nil {
		a.m.UnhedgedVolume.WithLabelValues(reason).Add(float64(volume))
	}
	if reason != "session_lost" {
		a.record(model.JournalEntry{Kind: "hedge_failed", OrderID: h.OrderID, Side: h.Side.String(), Price: h.Price, Volume: volume, Position: a.mgr.Position(), Note: reason})
	}
}

// fault reports a venue message our books cannot account for. The agent
// keeps running.
func (a *AutoTrader) fault(report string, id uint64, err error) {
	a.faults++
	if a.m != nil {
		a.m.ConsistencyFaults.WithLabelValues(report).Inc()
	}
	logger.Critical(a.log, "order book inconsistency",
		slog.String("report", report), slog.String("error", err.Error()),
		slog.Int64("position", a.mgr.Position()))
	a.alert(notification.Alert{Level: notification.AlertCritical, Title: "Order inconsistency", OrderID: id, Message: err.Error()})
}

// alert stamps al with the current position and time and hands it to the
// notifier.
func (a *AutoTrader) alert(al notification.Alert) {
	if a.notify == nil {
		return
	}
	al.Position = a.mgr.Position()
	al.At = time.Now().UTC()
	if err := a.notify.Send(context.Background(), al); err != nil {
		a.log.Warn("alert not sent", slog.String("title", al.Title), slog.String("error", err.Error()))
	}
}

func (a *AutoTrader) record(e model.JournalEntry) {
	if a.journal == nil {
		return
	}
	if err := a.journal.Record(e); err != nil {
		a.log.Warn("journal", slog.String("error", err.Error()))
	}
}

package autotrader

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"ichimoku-autotrader/internal/execution"
	"ichimoku-autotrader/internal/indicator"
	"ichimoku-autotrader/internal/model"
	"ichimoku-autotrader/internal/portfolio"
	"ichimoku-autotrader/internal/store/redis"
	"ichimoku-autotrader/internal/strategy"
)

// History is how much of the price window is filled.
type History struct {
	Have int `json:"have"`
	Need int `json:"need"`
}

// Status is an immutable copy of the agent's state, rebuilt after every
// event.
type Status struct {
	UpdatedAt  time.Time            `json:"updated_at"`
	Reference  model.Instrument     `json:"reference"`
	History    History              `json:"history"`
	Signal     *strategy.Signal     `json:"signal"`
	Cloud      *indicator.Snapshot  `json:"cloud"`
	Inventory  execution.Inventory  `json:"inventory"`
	Positions  []model.Position     `json:"positions"`
	PnL        portfolio.PnLSummary `json:"pnl"`
	OpenHedges int                  `json:"open_hedges"`
	Faults     uint64               `json:"consistency_faults"`
}

// SignalView is the signal part of a status, as published.
type SignalView struct {
	UpdatedAt time.Time           `json:"updated_at"`
	History   History             `json:"history"`
	Signal    *strategy.Signal    `json:"signal"`
	Cloud     *indicator.Snapshot `json:"cloud"`
}

// InventoryView is the order and position part of a status, as published.
type InventoryView struct {
	UpdatedAt  time.Time            `json:"updated_at"`
	Inventory  execution.Inventory  `json:"inventory"`
	Positions  []model.Position     `json:"positions"`
	PnL        portfolio.PnLSummary `json:"pnl"`
	OpenHedges int                  `json:"open_hedges"`
}

func (s *Status) SignalView() SignalView {
	return SignalView{UpdatedAt: s.UpdatedAt, History: s.History, Signal: s.Signal, Cloud: s.Cloud}
}

func (s *Status) InventoryView() InventoryView {
	return InventoryView{UpdatedAt: s.UpdatedAt, Inventory: s.Inventory, Positions: s.Positions, PnL: s.PnL, OpenHedges: s.OpenHedges}
}

// Status returns the latest snapshot. Never nil.
func (a *AutoTrader) Status() *Status {
	return a.status.Load()
}

type dirtyBits uint8

const (
	dirtySignal dirtyBits = 1 << iota
	dirtyInventory
)

type outboxMsg struct {
	inventory bool
	data      []byte
}

func (a *AutoTrader) refresh(now time.Time) *Status {
	have, need := a.strategy.History()
	positions := a.book.GetPositions()
	st := &Status{
		UpdatedAt:  now,
		Reference:  a.cfg.Reference,
		History:    History{Have: have, Need: need},
		Inventory:  a.mgr.Snapshot(),
		Positions:  positions,
		PnL:        a.pnl.Summary(positions),
		OpenHedges: len(a.hedges),
		Faults:     a.faults,
	}
	if a.lastSig != nil {
		sig := *a.lastSig
		st.Signal = &sig
	}
	if snap, ok := a.strategy.Snapshot(); ok {
		st.Cloud = &snap
	}
	a.status.Store(st)

	if a.m != nil {
		a.m.Position.Set(float64(st.Inventory.Position))
		a.m.LiveVolume.WithLabelValues(model.Bid.String()).Set(float64(a.mgr.LiveVolume(model.Bid)))
		a.m.LiveVolume.WithLabelValues(model.Ask.String()).Set(float64(a.mgr.LiveVolume(model.Ask)))
		a.m.NetDelta.Set(float64(a.book.NetDelta()))
		equity, _ := st.PnL.Equity.Float64()
		a.m.Equity.Set(equity)
	}
	return st
}

// flush rebuilds the status and hands changed views to the publisher.
func (a *AutoTrader) flush() {
	st := a.refresh(time.Now())
	dirty := a.dirty
	a.dirty = 0
	if a.pub == nil {
		return
	}
	if dirty&dirtySignal != 0 {
		a.post(false, st.SignalView())
	}
	if dirty&dirtyInventory != 0 {
		a.post(true, st.InventoryView())
	}
}

func (a *AutoTrader) post(inventory bool, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		a.log.Error("marshal snapshot", slog.String("error", err.Error()))
		return
	}
	select {
	case a.outbox <- outboxMsg{inventory: inventory, data: data}:
	default:
		if a.m != nil {
			a.m.RedisPublishErrors.Inc()
		}
		a.log.Debug("publish queue full, snapshot dropped")
	}
}

// runPublisher drains the outbox until ctx is cancelled, then publishes
// whatever is still queued.
func (a *AutoTrader) runPublisher(ctx context.Context) {
	if a.pub == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case msg := <-a.outbox:
					a.publish(context.Background(), msg)
				default:
					return
				}
			}
		case msg := <-a.outbox:
			a.publish(ctx, msg)
		}
	}
}

func (a *AutoTrader) publish(ctx context.Context, msg outboxMsg) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var err error
	if msg.inventory {
		err = a.pub.PublishInventory(ctx, msg.data)
	} else {
		err = a.pub.PublishSignal(ctx, msg.data)
	}
	if err == nil {
		return
	}
	if a.m != nil {
		a.m.RedisPublishErrors.Inc()
	}
	if errors.Is(err, redis.ErrCircuitOpen) {
		a.log.Debug("publish skipped", slog.String("error", err.Error()))
	} else {
		a.log.Warn("publish failed", slog.String("error", err.Error()))
	}
}

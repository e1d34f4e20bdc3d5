package autotrader

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ichimoku-autotrader/internal/model"
)

// Dispatch routes one venue event to its handler.
func (a *AutoTrader) Dispatch(ev model.Event) {
	start := time.Now()
	switch e := ev.(type) {
	case model.BookUpdate:
		a.OnOrderBookUpdate(e)
	case model.TradeTicks:
		a.OnTradeTicks(e)
	case model.Fill:
		a.OnOrderFilled(e)
	case model.StatusUpdate:
		a.OnOrderStatus(e)
	case model.HedgeFill:
		a.OnHedgeFilled(e)
	case model.OrderError:
		a.OnError(e)
	case model.SessionLost:
		a.OnSessionLost(e)
	default:
		a.log.Warn("unhandled event", slog.String("type", fmt.Sprintf("%T", ev)))
		return
	}
	if a.m != nil {
		a.m.EventLoopDur.Observe(time.Since(start).Seconds())
	}
}

// Run handles events one at a time until ctx is cancelled or events is
// closed. Snapshots are published from a separate goroutine.
func (a *AutoTrader) Run(ctx context.Context, events <-chan model.Event) error {
	pubCtx, stop := context.WithCancel(ctx)
	pubDone := make(chan struct{})
	go func() {
		defer close(pubDone)
		a.runPublisher(pubCtx)
	}()
	defer func() {
		stop()
		<-pubDone
	}()

	a.log.Info("autotrader started",
		slog.String("reference", a.cfg.Reference.String()),
		slog.Bool("cancel_on_hold", a.cfg.CancelOnHold))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.Dispatch(ev)
		}
	}
}

// Package notification provides alert delivery to external channels
// (Telegram, webhooks) for trading events.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent. OrderID, Side and Position
// carry the agent's state when the alert was raised; OrderID 0 and an empty
// Side mean the alert is not about a single order.
type Alert struct {
	Level    AlertLevel `json:"level"`
	Title    string     `json:"title"`
	Message  string     `json:"message"`
	OrderID  uint64     `json:"order_id,omitempty"`
	Side     string     `json:"side,omitempty"`
	Position int64      `json:"position"`
	At       time.Time  `json:"ts"`
}

// attrs renders the trading context as slog attributes.
func (a Alert) attrs() []any {
	out := []any{slog.String("alert_level", string(a.Level)), slog.String("message", a.Message)}
	if a.OrderID != 0 {
		out = append(out, slog.Uint64("order_id", a.OrderID))
	}
	if a.Side != "" {
		out = append(out, slog.String("side", a.Side))
	}
	return append(out, slog.Int64("position", a.Position))
}

func (a Alert) stamped() Alert {
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	return a
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log (useful for development).
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With(slog.String("component", "notify"))}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	n.log.Log(ctx, level, alert.Title, alert.attrs()...)
	return nil
}

// Multi fans an alert out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Dispatcher delivers alerts from a queue on its own goroutine so the
// caller never waits on the network. Alerts beyond the queue size are
// dropped and counted.
type Dispatcher struct {
	next    Notifier
	ch      chan Alert
	timeout time.Duration
	log     *slog.Logger
	dropped atomic.Uint64
	wg      sync.WaitGroup
}

// NewDispatcher wraps next with a queue of size alerts.
func NewDispatcher(next Notifier, size int, log *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = 64
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		next:    next,
		ch:      make(chan Alert, size),
		timeout: 10 * time.Second,
		log:     log.With(slog.String("component", "notify")),
	}
	d.wg.Add(1)
	return d
}

// Send enqueues alert. It only fails when the queue is full.
func (d *Dispatcher) Send(_ context.Context, alert Alert) error {
	select {
	case d.ch <- alert:
		return nil
	default:
		d.dropped.Add(1)
		return errors.New("notification: queue full")
	}
}

// Dropped returns the number of alerts dropped so far.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Run delivers queued alerts until ctx is cancelled, then flushes the
// queue. Blocks; call once.
func (d *Dispatcher) Run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case a := <-d.ch:
					d.deliver(a)
				default:
					return
				}
			}
		case a := <-d.ch:
			d.deliver(a)
		}
	}
}

// Wait blocks until Run has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(a Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	if err := d.next.Send(ctx, a); err != nil {
		d.log.Error("alert delivery failed",
			slog.String("title", a.Title), slog.Uint64("order_id", a.OrderID), slog.String("error", err.Error()))
	}
}

// FromConfig builds the notifier chain: always the log, plus Telegram and
// a webhook when configured.
func FromConfig(telegramToken, telegramChat, webhookURL string, log *slog.Logger) Notifier {
	m := Multi{NewLogNotifier(log)}
	if telegramToken != "" && telegramChat != "" {
		m = append(m, NewTelegramNotifier(telegramToken, telegramChat, log))
	}
	if webhookURL != "" {
		m = append(m, NewWebhookNotifier(webhookURL, log))
	}
	return m
}

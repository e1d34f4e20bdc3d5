package venue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"ichimoku-autotrader/internal/model"
)

var (
	// ErrNotConnected is returned by gateway calls while the link is down.
	ErrNotConnected = errors.New("venue: not connected")
	// ErrSendQueueFull is returned when outbound commands back up.
	ErrSendQueueFull = errors.New("venue: send queue full")
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Config holds configuration for the venue client.
type Config struct {
	// URL of the venue WebSocket, e.g. "ws://localhost:9001/ws"
	URL string

	// ReconnectDelay is the initial delay before reconnection attempts.
	// Defaults to 2 seconds if zero.
	ReconnectDelay time.Duration

	// MaxReconnectDelay caps the exponential backoff. Defaults to 30s.
	MaxReconnectDelay time.Duration

	// SendQueue is the outbound command buffer. Defaults to 256.
	SendQueue int
}

func (c *Config) defaults() {
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = 2 * time.Second
	}
	if c.MaxReconnectDelay == 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
}

// Client is a model.Gateway backed by a WebSocket connection. Gateway
// calls only enqueue; a writer goroutine owns the socket.
type Client struct {
	cfg       Config
	send      chan []byte
	connected atomic.Bool
	log       *slog.Logger

	// Optional hooks (metrics, health).
	OnConnect    func(connected bool)
	OnReconnect  func()
	OnDrop       func()
	OnBadMessage func(err error)
}

// New creates a client. Returns an error if the URL is unparseable.
func New(cfg Config, log *slog.Logger) (*Client, error) {
	cfg.defaults()
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("venue url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("venue url: unsupported scheme %q", u.Scheme)
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		cfg:  cfg,
		send: make(chan []byte, cfg.SendQueue),
		log:  log.With(slog.String("component", "venue")),
	}, nil
}

// Connected reports whether the socket is currently up.
func (c *Client) Connected() bool { return c.connected.Load() }

// InsertOrder implements model.Gateway.
func (c *Client) InsertOrder(id uint64, side model.Side, price, volume int64, lifespan model.Lifespan) error {
	return c.enqueue(InsertCommand{OrderID: id, Side: side, Price: price, Volume: volume, Lifespan: lifespan})
}

// CancelOrder implements model.Gateway.
func (c *Client) CancelOrder(id uint64) error {
	return c.enqueue(CancelCommand{OrderID: id})
}

// HedgeOrder implements model.Gateway.
func (c *Client) HedgeOrder(id uint64, side model.Side, price, volume int64) error {
	return c.enqueue(HedgeCommand{OrderID: id, Side: side, Price: price, Volume: volume})
}

func (c *Client) enqueue(cmd Command) error {
	if !c.connected.Load() {
		c.dropped()
		return ErrNotConnected
	}
	msg, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	select {
	case c.send <- msg:
		return nil
	default:
		c.dropped()
		return ErrSendQueueFull
	}
}

func (c *Client) dropped() {
	if c.OnDrop != nil {
		c.OnDrop()
	}
}

// Run connects to the venue and forwards decoded events to events.
// Blocks until ctx is cancelled. Reconnects automatically on disconnect.
// When an established session drops, a model.SessionLost is delivered
// before the next dial so the consumer can retire the session's orders.
func (c *Client) Run(ctx context.Context, events chan<- model.Event) error {
	delay := c.cfg.ReconnectDelay

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		connected, unsent, err := c.runOnce(ctx, events)
		if err == nil {
			return nil
		}
		if connected {
			delay = c.cfg.ReconnectDelay
			select {
			case events <- model.SessionLost{Reason: err.Error(), Unsent: unsent}:
			case <-ctx.Done():
				return nil
			}
		}

		c.log.Warn("venue disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay))
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.cfg.MaxReconnectDelay {
			delay = c.cfg.MaxReconnectDelay
		}
	}
}

func (c *Client) setConnected(v bool) {
	c.connected.Store(v)
	if c.OnConnect != nil {
		c.OnConnect(v)
	}
}

// runOnce makes a single connection and reads until disconnect or ctx
// cancel. connected reports whether the dial succeeded; unsent counts the
// queued commands discarded once the socket closed.
func (c *Client) runOnce(ctx context.Context, events chan<- model.Event) (connected bool, unsent int, err error) {
	// Anything enqueued while the last session was closing belongs to it.
	c.discardQueued()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, 0, err
	}
	defer conn.Close()

	c.log.Info("connected to venue", slog.String("url", c.cfg.URL))
	c.setConnected(true)

	done := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump(ctx, conn, done)
	}()
	defer func() {
		c.setConnected(false)
		close(done)
		<-writerDone
		unsent = c.discardQueued()
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return true, 0, nil
			default:
			}
			return true, 0, err
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		ev, err := DecodeEvent(raw)
		if err != nil {
			c.log.Warn("bad venue message", slog.String("error", err.Error()))
			if c.OnBadMessage != nil {
				c.OnBadMessage(err)
			}
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return true, 0, nil
		}
	}
}

// writePump owns all writes to conn. It exits when done is closed, on a
// write error, or when ctx is cancelled (after sending a close frame).
func (c *Client) writePump(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"))
			conn.Close()
			return
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Error("venue write failed", slog.String("error", err.Error()))
				conn.Close()
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

// discardQueued drops commands that were never written so a new session
// starts with an empty queue, and returns how many there were.
func (c *Client) discardQueued() int {
	n := 0
	for {
		select {
		case <-c.send:
			n++
			c.dropped()
		default:
			if n > 0 {
				c.log.Warn("discarded unsent commands", slog.Int("count", n))
			}
			return n
		}
	}
}

var _ model.Gateway = (*Client)(nil)

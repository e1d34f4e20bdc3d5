// cmd/venuesim: simulated exchange for running the autotrader offline.
//
// Publishes a random-walk FUTURE book and an ETF book that tracks it, both
// as venue envelopes on /ws. Each connection gets its own in-process paper
// venue: quotes rest on the ETF book and fill when it crosses them, hedges
// execute at the FUTURE touch.
//
// Config (env vars):
//
//	VENUESIM_ADDR           listen address (default ":9001")
//	VENUESIM_INTERVAL_MS    book update interval (default "250")
//	VENUESIM_START_PRICE    initial FUTURE mid in cents (default "280000")
//	VENUESIM_SEED           random walk seed, 0 for time based (default "0")
//	VENUESIM_MAKER_FEE_BPS  maker fee in bps (default "-1")
//	VENUESIM_TAKER_FEE_BPS  taker fee in bps (default "2")
package main

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"ichimoku-autotrader/config"
	"ichimoku-autotrader/internal/execution"
	"ichimoku-autotrader/internal/logger"
	"ichimoku-autotrader/internal/model"
	"ichimoku-autotrader/internal/venue"
)

// ─── Sessions ─────────────────────────────────────────────────────────────────

type session struct {
	addr  string
	send  chan []byte
	paper *execution.PaperVenue
	log   *slog.Logger
}

func newSession(addr string, cfg *config.SimConfig, log *slog.Logger) *session {
	if log == nil {
		log = slog.Default()
	}
	s := &session{
		addr: addr,
		send: make(chan []byte, 1024),
		log:  log.With(slog.String("client", addr)),
	}
	s.paper = execution.NewPaperVenue(s.push, cfg.MakerFeeBps, cfg.TakerFeeBps, s.log)
	return s
}

// push encodes and queues an event. Called under the paper venue lock.
func (s *session) push(ev model.Event) {
	msg, err := venue.EncodeEvent(ev)
	if err != nil {
		s.log.Error("encode event", slog.String("error", err.Error()))
		return
	}
	select {
	case s.send <- msg:
	default:
		s.log.Warn("client too slow, event dropped")
	}
}

func (s *session) handle(cmd venue.Command) error {
	switch c := cmd.(type) {
	case venue.InsertCommand:
		return s.paper.InsertOrder(c.OrderID, c.Side, c.Price, c.Volume, c.Lifespan)
	case venue.CancelCommand:
		return s.paper.CancelOrder(c.OrderID)
	case venue.HedgeCommand:
		return s.paper.HedgeOrder(c.OrderID, c.Side, c.Price, c.Volume)
	default:
		return venue.ErrUnknownMessage
	}
}

type hub struct {
	mu       sync.RWMutex
	sessions map[*session]struct{}
}

func (h *hub) add(s *session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
}

func (h *hub) remove(s *session) {
	h.mu.Lock()
	delete(h.sessions, s)
	h.mu.Unlock()
}

// broadcast feeds the books to every paper venue, then to every client.
func (h *hub) broadcast(books ...model.BookUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		for _, b := range books {
			s.paper.OnBook(b)
			s.push(b)
		}
	}
}

// ─── WebSocket handler ────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(h *hub, cfg *config.SimConfig, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("upgrade failed", slog.String("error", err.Error()))
			return
		}
		s := newSession(r.RemoteAddr, cfg, log)
		h.add(s)
		s.log.Info("client connected")

		quit := make(chan struct{})
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				select {
				case msg := <-s.send:
					conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				case <-quit:
					return
				}
			}
		}()

		defer func() {
			h.remove(s)
			close(quit)
			<-done
			conn.Close()
			s.log.Info("client disconnected", slog.Int("fills", len(s.paper.GetFills())))
		}()

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			cmd, err := venue.DecodeCommand(raw)
			if err == nil {
				err = s.handle(cmd)
			}
			if err != nil {
				s.log.Warn("bad command", slog.String("error", err.Error()))
				s.push(model.OrderError{Message: err.Error()})
			}
		}
	}
}

// ─── Book generator ──────────────────────────────────────────────────────────

type market struct {
	rng *rand.Rand
	mid int64 // FUTURE mid, cents, whole ticks
	seq uint64
}

func level(price, volume int64) ([model.BookDepth]int64, [model.BookDepth]int64) {
	var p, v [model.BookDepth]int64
	p[0], v[0] = price, volume
	return p, v
}

// step moves the FUTURE mid by at most one tick and derives both books.
// The ETF trades within a tick of the future.
func (m *market) step() (future, etf model.BookUpdate) {
	m.mid += int64(m.rng.Intn(3)-1) * model.TickSize
	if m.mid < 2*model.TickSize {
		m.mid = 2 * model.TickSize
	}
	m.seq++

	future = model.BookUpdate{Instrument: model.Future, Sequence: m.seq}
	future.BidPrices, future.BidVolumes = level(m.mid-model.TickSize, 100+m.rng.Int63n(100))
	future.AskPrices, future.AskVolumes = level(m.mid+model.TickSize, 100+m.rng.Int63n(100))

	etfMid := m.mid + int64(m.rng.Intn(3)-1)*model.TickSize
	etf = model.BookUpdate{Instrument: model.ETF, Sequence: m.seq}
	etf.BidPrices, etf.BidVolumes = level(etfMid-model.TickSize, 10+m.rng.Int63n(50))
	etf.AskPrices, etf.AskVolumes = level(etfMid+model.TickSize, 10+m.rng.Int63n(50))
	return future, etf
}

func runGenerator(ctx context.Context, h *hub, cfg *config.SimConfig) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m := &market{rng: rand.New(rand.NewSource(seed)), mid: cfg.StartPrice}

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			future, etf := m.step()
			h.broadcast(future, etf)
		}
	}
}

func main() {
	log := logger.Init("venuesim", slog.LevelInfo)

	cfg, err := config.LoadSim()
	if err != nil {
		log.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	h := &hub{sessions: make(map[*session]struct{})}
	go runGenerator(ctx, h, cfg)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler(h, cfg, log))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("venue simulator listening",
			slog.String("addr", cfg.Addr), slog.Duration("interval", cfg.Interval),
			slog.Int64("start_price", cfg.StartPrice))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	log.Info("venue simulator stopped")
}

// Package metrics exposes Prometheus metrics and a health endpoint for the
// autotrader.
package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the autotrader.
type Metrics struct {
	// Market data
	BookUpdatesTotal *prometheus.CounterVec // labels: instrument
	TradeTicksTotal  prometheus.Counter
	HistoryLen       prometheus.Gauge

	// Signal
	SignalsTotal        *prometheus.CounterVec // labels: action
	SignalConfidence    prometheus.Gauge
	IndicatorComputeDur prometheus.Histogram

	// Orders
	OrdersInserted  *prometheus.CounterVec // labels: side
	OrdersCancelled *prometheus.CounterVec // labels: side
	QuotesDeclined  *prometheus.CounterVec // labels: side
	FillsTotal      *prometheus.CounterVec // labels: side
	FilledVolume    *prometheus.CounterVec // labels: side
	HedgesTotal     *prometheus.CounterVec // labels: side
	HedgeVolume     prometheus.Counter
	UnhedgedVolume  *prometheus.CounterVec // labels: reason=not_sent|rejected|unfilled|session_lost
	OrderErrors     prometheus.Counter
	GatewayErrors   prometheus.Counter

	// Bookkeeping faults: venue reports for ids we do not track
	ConsistencyFaults *prometheus.CounterVec // labels: report=status|fill|error

	// Inventory
	Position   prometheus.Gauge
	LiveVolume *prometheus.GaugeVec // labels: side
	NetDelta   prometheus.Gauge
	Equity     prometheus.Gauge

	// Transport and storage
	VenueReconnects          prometheus.Counter
	VenueSessionsLost        prometheus.Counter
	VenueRetiredOrders       prometheus.Counter
	VenueDroppedCommands     prometheus.Counter
	EventLoopDur             prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisPublishErrors       prometheus.Counter
	JournalDrops             prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	fast := []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005}

	m := &Metrics{
		BookUpdatesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_book_updates_total",
			Help: "Order book updates received (by instrument)",
		}, []string{"instrument"}),
		TradeTicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_trade_ticks_total",
			Help: "Trade tick messages received",
		}),
		HistoryLen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_price_history_len",
			Help: "Reference prices held for the cloud",
		}),

		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_signals_total",
			Help: "Signals evaluated (by action)",
		}, []string{"action"}),
		SignalConfidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_signal_confidence",
			Help: "Confidence of the latest signal",
		}),
		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotrader_indicator_compute_duration_seconds",
			Help:    "Cloud computation and vote latency per reference price",
			Buckets: fast,
		}),

		OrdersInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_orders_inserted_total",
			Help: "Quote orders inserted (by side)",
		}, []string{"side"}),
		OrdersCancelled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_orders_cancelled_total",
			Help: "Quote cancels issued (by side)",
		}, []string{"side"}),
		QuotesDeclined: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_quotes_declined_total",
			Help: "Inserts skipped at the position limit (by side)",
		}, []string{"side"}),
		FillsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_fills_total",
			Help: "Quote fills (by side)",
		}, []string{"side"}),
		FilledVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_filled_volume_total",
			Help: "Lots filled on quotes (by side)",
		}, []string{"side"}),
		HedgesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_hedges_total",
			Help: "Hedge orders sent (by side)",
		}, []string{"side"}),
		HedgeVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_hedge_filled_volume_total",
			Help: "Lots filled on hedge orders",
		}),
		UnhedgedVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_unhedged_volume_total",
			Help: "Filled lots whose hedge did not execute (by reason)",
		}, []string{"reason"}),
		OrderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_order_errors_total",
			Help: "Error messages received from the venue",
		}),
		GatewayErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_gateway_errors_total",
			Help: "Commands the gateway refused to send",
		}),
		ConsistencyFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autotrader_consistency_faults_total",
			Help: "Venue reports for order ids not being tracked",
		}, []string{"report"}),

		Position: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_position",
			Help: "Net position in the quoted instrument",
		}),
		LiveVolume: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autotrader_live_volume",
			Help: "Remaining volume of live quote orders (by side)",
		}, []string{"side"}),
		NetDelta: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_net_delta",
			Help: "Combined position across quoted and hedge instruments",
		}),
		Equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_equity",
			Help: "Cash plus marked positions minus fees, in currency units",
		}),

		VenueReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_venue_reconnects_total",
			Help: "Venue WebSocket reconnection attempts",
		}),
		VenueSessionsLost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_venue_sessions_lost_total",
			Help: "Established venue sessions that dropped",
		}),
		VenueRetiredOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_venue_retired_orders_total",
			Help: "Live orders forgotten because their venue session dropped",
		}),
		VenueDroppedCommands: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_venue_dropped_commands_total",
			Help: "Commands refused because the send queue was full or disconnected",
		}),
		EventLoopDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autotrader_event_duration_seconds",
			Help:    "Handler latency per venue event",
			Buckets: fast,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "autotrader_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_redis_publish_errors_total",
			Help: "Snapshot publishes that failed or were skipped",
		}),
		JournalDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autotrader_journal_drops_total",
			Help: "Journal entries dropped because the queue was full",
		}),
	}

	reg.MustRegister(
		m.BookUpdatesTotal,
		m.TradeTicksTotal,
		m.HistoryLen,
		m.SignalsTotal,
		m.SignalConfidence,
		m.IndicatorComputeDur,
		m.OrdersInserted,
		m.OrdersCancelled,
		m.QuotesDeclined,
		m.FillsTotal,
		m.FilledVolume,
		m.HedgesTotal,
		m.HedgeVolume,
		m.UnhedgedVolume,
		m.OrderErrors,
		m.GatewayErrors,
		m.ConsistencyFaults,
		m.Position,
		m.LiveVolume,
		m.NetDelta,
		m.Equity,
		m.VenueReconnects,
		m.VenueSessionsLost,
		m.VenueRetiredOrders,
		m.VenueDroppedCommands,
		m.EventLoopDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisPublishErrors,
		m.JournalDrops,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	VenueConnected bool      `json:"venue_connected"`
	LastBookTime   time.Time `json:"last_book_time"`
	HistoryReady   bool      `json:"history_ready"`

	// Optional dependencies; a disabled one never degrades health.
	RedisEnabled   bool `json:"redis_enabled"`
	RedisConnected bool `json:"redis_connected"`
	JournalEnabled bool `json:"journal_enabled"`
	JournalOK      bool `json:"journal_ok"`

	// Liveness probe results
	RedisLatencyMs   float64   `json:"redis_latency_ms"`
	JournalLatencyMs float64   `json:"journal_latency_ms"`
	LastCheckAt      time.Time `json:"last_check_at"`
	StartedAt        time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetVenueConnected(v bool) {
	h.mu.Lock()
	h.VenueConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastBookTime(t time.Time) {
	h.mu.Lock()
	h.LastBookTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetHistoryReady(v bool) {
	h.mu.Lock()
	h.HistoryReady = v
	h.mu.Unlock()
}

// EnableRedis marks Redis as a dependency to probe.
func (h *HealthStatus) EnableRedis() {
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = true
	h.mu.Unlock()
}

// EnableJournal marks the journal as a dependency to probe.
func (h *HealthStatus) EnableJournal() {
	h.mu.Lock()
	h.JournalEnabled = true
	h.JournalOK = true
	h.mu.Unlock()
}

// Pinger is satisfied by *sql.DB and the order journal.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckJournal pings the journal database and records latency + health.
func (h *HealthStatus) CheckJournal(ctx context.Context, db Pinger) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.JournalOK = err == nil
	h.JournalLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Nil dependencies
// are skipped.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, journal Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if journal != nil {
					h.CheckJournal(probeCtx, journal)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	journalDown := h.JournalEnabled && !h.JournalOK
	if redisDown || journalDown {
		overallStatus = "degraded"
	}
	if !h.VenueConnected {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	bookAge := ""
	if !h.LastBookTime.IsZero() {
		bookAge = time.Since(h.LastBookTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status           string  `json:"status"`
		Uptime           string  `json:"uptime"`
		VenueConnected   bool    `json:"venue_connected"`
		LastBookTime     string  `json:"last_book_time"`
		BookAge          string  `json:"book_age"`
		HistoryReady     bool    `json:"history_ready"`
		RedisEnabled     bool    `json:"redis_enabled"`
		RedisConnected   bool    `json:"redis_connected"`
		RedisLatencyMs   float64 `json:"redis_latency_ms"`
		JournalEnabled   bool    `json:"journal_enabled"`
		JournalOK        bool    `json:"journal_ok"`
		JournalLatencyMs float64 `json:"journal_latency_ms"`
		LastCheckAt      string  `json:"last_check_at"`
	}{
		Status:           overallStatus,
		Uptime:           time.Since(h.StartedAt).Round(time.Second).String(),
		VenueConnected:   h.VenueConnected,
		LastBookTime:     h.LastBookTime.Format(time.RFC3339),
		BookAge:          bookAge,
		HistoryReady:     h.HistoryReady,
		RedisEnabled:     h.RedisEnabled,
		RedisConnected:   h.RedisConnected,
		RedisLatencyMs:   h.RedisLatencyMs,
		JournalEnabled:   h.JournalEnabled,
		JournalOK:        h.JournalOK,
		JournalLatencyMs: h.JournalLatencyMs,
		LastCheckAt:      h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics, /healthz and, when given,
// the status API under /api/.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. api may be nil.
func NewServer(addr string, health *HealthStatus, api http.Handler) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)
	if api != nil {
		mux.Handle("/api/", api)
	}

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		slog.Info("metrics server listening", slog.String("addr", s.addr))
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

// Package redis publishes autotrader snapshots to Redis for dashboards and
// other downstream readers.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultPrefix       = "autotrader"
	defaultStreamMaxLen = 5000
	defaultLatestTTL    = 30 * time.Minute
)

// Config configures the publisher.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	Prefix       string        // key namespace, default "autotrader"
	StreamMaxLen int64         // approximate stream trim length
	LatestTTL    time.Duration // TTL of the :latest keys

	MaxFailures  int           // consecutive failures before the breaker opens
	ResetTimeout time.Duration // how long the breaker stays open
}

func (c *Config) defaults() {
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.StreamMaxLen <= 0 {
		c.StreamMaxLen = defaultStreamMaxLen
	}
	if c.LatestTTL <= 0 {
		c.LatestTTL = defaultLatestTTL
	}
	if c.MaxFailures <= 0 {
		c.MaxFailures = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 10 * time.Second
	}
}

// Keys names the Redis locations for one snapshot kind.
type Keys struct {
	Latest  string // SET, overwritten on every publish
	Stream  string // XADD, trimmed to StreamMaxLen
	Channel string // PUBLISH
}

// KeysFor returns the keys used for kind ("signal" or "inventory").
func KeysFor(prefix, kind string) Keys {
	return Keys{
		Latest:  prefix + ":" + kind + ":latest",
		Stream:  prefix + ":" + kind,
		Channel: "pub:" + prefix + ":" + kind,
	}
}

// Publisher writes signal and inventory snapshots. Every publish is one
// pipeline (SET latest + XADD + PUBLISH) run through a circuit breaker.
type Publisher struct {
	client    *goredis.Client
	cfg       Config
	breaker   *CircuitBreaker
	signal    Keys
	inventory Keys
	log       *slog.Logger
}

// New creates a publisher and pings the server.
func New(cfg Config, log *slog.Logger) (*Publisher, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	p := NewWithClient(client, cfg, log)
	p.log.Info("connected to redis", slog.String("addr", cfg.Addr))
	return p, nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, cfg Config, log *slog.Logger) *Publisher {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{
		client:    client,
		cfg:       cfg,
		breaker:   NewCircuitBreaker(cfg.MaxFailures, cfg.ResetTimeout),
		signal:    KeysFor(cfg.Prefix, "signal"),
		inventory: KeysFor(cfg.Prefix, "inventory"),
		log:       log.With(slog.String("component", "redis")),
	}
}

// Client returns the underlying Redis client for health checks.
func (p *Publisher) Client() *goredis.Client { return p.client }

// Breaker exposes the circuit breaker so callers can hook state changes.
func (p *Publisher) Breaker() *CircuitBreaker { return p.breaker }

// PublishSignal stores and broadcasts a signal snapshot.
func (p *Publisher) PublishSignal(ctx context.Context, data []byte) error {
	return p.publish(ctx, p.signal, data)
}

// PublishInventory stores and broadcasts an inventory snapshot.
func (p *Publisher) PublishInventory(ctx context.Context, data []byte) error {
	return p.publish(ctx, p.inventory, data)
}

func (p *Publisher) publish(ctx context.Context, keys Keys, data []byte) error {
	payload := string(data)
	err := p.breaker.Execute(func() error {
		pipe := p.client.Pipeline()
		pipe.Set(ctx, keys.Latest, payload, p.cfg.LatestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: keys.Stream,
			MaxLen: p.cfg.StreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": payload},
		})
		pipe.Publish(ctx, keys.Channel, payload)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", keys.Stream, err)
	}
	return nil
}

// Close closes the Redis client.
func (p *Publisher) Close() error {
	return p.client.Close()
}

// Package config loads process configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"ichimoku-autotrader/internal/logger"
	"ichimoku-autotrader/internal/model"
)

// Config holds the autotrader configuration.
type Config struct {
	// Venue
	VenueURL     string
	Reference    model.Instrument
	CancelOnHold bool

	// Infrastructure; an empty RedisAddr or JournalPath disables that store.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	JournalPath   string
	MetricsAddr   string
	LogLevel      slog.Level

	// Alerts
	TelegramBotToken string
	TelegramChatID   string
	AlertWebhookURL  string
}

// Load reads the autotrader configuration with defaults and validates it.
func Load() (*Config, error) {
	var errs []error
	c := &Config{
		VenueURL:         getEnv("VENUE_URL", "ws://localhost:9001/ws"),
		RedisAddr:        lookupEnv("REDIS_ADDR", ""),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		JournalPath:      lookupEnv("JOURNAL_PATH", "data/journal.db"),
		MetricsAddr:      getEnv("METRICS_ADDR", ":9090"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),
		AlertWebhookURL:  getEnv("ALERT_WEBHOOK_URL", ""),
	}

	var err error
	if c.Reference, err = model.ParseInstrument(getEnv("REFERENCE_INSTRUMENT", "future")); err != nil {
		errs = append(errs, fmt.Errorf("REFERENCE_INSTRUMENT: %w", err))
	}
	if c.CancelOnHold, err = strconv.ParseBool(getEnv("CANCEL_ON_HOLD", "true")); err != nil {
		errs = append(errs, fmt.Errorf("CANCEL_ON_HOLD: %w", err))
	}
	if c.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		errs = append(errs, fmt.Errorf("REDIS_DB: %w", err))
	}
	if c.LogLevel, err = logger.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate rejects values that parse but cannot work.
func (c *Config) Validate() error {
	var errs []error
	u, err := url.Parse(c.VenueURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("VENUE_URL: %w", err))
	case u.Scheme != "ws" && u.Scheme != "wss":
		errs = append(errs, fmt.Errorf("VENUE_URL: scheme must be ws or wss, got %q", u.Scheme))
	case u.Host == "":
		errs = append(errs, errors.New("VENUE_URL: missing host"))
	}
	if c.RedisDB < 0 {
		errs = append(errs, fmt.Errorf("REDIS_DB: must be >= 0, got %d", c.RedisDB))
	}
	if c.MetricsAddr == "" {
		errs = append(errs, errors.New("METRICS_ADDR: must not be empty"))
	}
	if (c.TelegramBotToken == "") != (c.TelegramChatID == "") {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}
	if c.AlertWebhookURL != "" {
		if u, err := url.Parse(c.AlertWebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("ALERT_WEBHOOK_URL: not an http(s) URL: %q", c.AlertWebhookURL))
		}
	}
	return errors.Join(errs...)
}

// SimConfig configures cmd/venuesim.
type SimConfig struct {
	Addr        string        // listen address
	Interval    time.Duration // time between book updates
	StartPrice  int64         // initial future mid, cents
	Seed        int64         // random walk seed; 0 means time-based
	MakerFeeBps int64
	TakerFeeBps int64
}

// LoadSim reads the simulator configuration.
func LoadSim() (*SimConfig, error) {
	var errs []error
	c := &SimConfig{Addr: getEnv("VENUESIM_ADDR", ":9001")}

	ms, err := strconv.Atoi(getEnv("VENUESIM_INTERVAL_MS", "250"))
	if err != nil || ms <= 0 {
		errs = append(errs, fmt.Errorf("VENUESIM_INTERVAL_MS: want a positive integer, got %q", os.Getenv("VENUESIM_INTERVAL_MS")))
	}
	c.Interval = time.Duration(ms) * time.Millisecond

	ints := []struct {
		key      string
		fallback string
		dst      *int64
	}{
		{"VENUESIM_START_PRICE", "280000", &c.StartPrice},
		{"VENUESIM_SEED", "0", &c.Seed},
		{"VENUESIM_MAKER_FEE_BPS", "-1", &c.MakerFeeBps},
		{"VENUESIM_TAKER_FEE_BPS", "2", &c.TakerFeeBps},
	}
	for _, f := range ints {
		v, err := strconv.ParseInt(getEnv(f.key, f.fallback), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.key, err))
			continue
		}
		*f.dst = v
	}
	if c.StartPrice < model.TickSize || c.StartPrice%model.TickSize != 0 {
		errs = append(errs, fmt.Errorf("VENUESIM_START_PRICE: must be a positive multiple of %d, got %d", model.TickSize, c.StartPrice))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// lookupEnv is getEnv for keys where an explicitly empty value means "off".
func lookupEnv(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(v)
}

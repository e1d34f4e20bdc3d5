package indicator

import (
	"errors"
	"fmt"
)

// ErrInsufficientHistory is returned when fewer prices than Config.History
// are supplied.
var ErrInsufficientHistory = errors.New("indicator: insufficient price history")

// Config holds the Ichimoku periods. All values are counts of prices.
type Config struct {
	ConversionPeriod int // Tenkan-sen
	BasePeriod       int // Kijun-sen
	SpanBPeriod      int // Senkou span B
	Displacement     int // forward shift of the spans, backward shift of the lagging line
	History          int // prices consumed per computation
}

// DefaultConfig returns the classic 9/26/52 cloud over 78 prices.
func DefaultConfig() Config {
	return Config{
		ConversionPeriod: 9,
		BasePeriod:       26,
		SpanBPeriod:      52,
		Displacement:     26,
		History:          78,
	}
}

// Validate checks that every period fits in the history.
func (c Config) Validate() error {
	switch {
	case c.ConversionPeriod <= 0, c.BasePeriod <= 0, c.SpanBPeriod <= 0, c.Displacement <= 0:
		return fmt.Errorf("indicator: periods must be positive: %+v", c)
	case c.ConversionPeriod > c.History, c.BasePeriod > c.History, c.SpanBPeriod > c.History:
		return fmt.Errorf("indicator: period exceeds history %d", c.History)
	case c.Displacement >= c.History:
		return fmt.Errorf("indicator: displacement %d must be below history %d", c.Displacement, c.History)
	}
	return nil
}

// Cloud holds the five Ichimoku series. Every series has
// History+Displacement entries; raw-price index Now is the current price and
// index Now+1 is the first projected span position.
type Cloud struct {
	Conversion Series `json:"conversion"`
	Base       Series `json:"base"`
	SpanA      Series `json:"span_a"`
	SpanB      Series `json:"span_b"`
	Lagging    Series `json:"lagging"`

	Now          int `json:"now"`
	Displacement int `json:"displacement"`
}

// Len returns the common length of the series.
func (c *Cloud) Len() int { return len(c.Conversion) }

// Ahead returns SpanA-SpanB at k positions past the current moment.
// Out-of-range positions are absent.
func (c *Cloud) Ahead(k int) Value {
	i := c.Now + 1 + k
	if k < 0 || i >= len(c.SpanA) {
		return Absent
	}
	return c.SpanA[i].Sub(c.SpanB[i])
}

// Engine computes clouds. It holds no state between calls besides its
// configuration.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine. An invalid config falls back to DefaultConfig.
func NewEngine(cfg Config) *Engine {
	if cfg.Validate() != nil {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Compute derives the cloud from the trailing History prices, oldest first.
// The result depends only on those prices.
func (e *Engine) Compute(prices []int64) (*Cloud, error) {
	n := e.cfg.History
	if len(prices) < n {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientHistory, len(prices), n)
	}
	prices = prices[len(prices)-n:]
	d := e.cfg.Displacement

	conv, err := e.line(prices, e.cfg.ConversionPeriod, e.cfg.ConversionPeriod, d)
	if err != nil {
		return nil, err
	}
	base, err := e.line(prices, e.cfg.BasePeriod, e.cfg.BasePeriod, d)
	if err != nil {
		return nil, err
	}
	spanB, err := e.line(prices, e.cfg.SpanBPeriod, e.cfg.SpanBPeriod+d, 0)
	if err != nil {
		return nil, err
	}

	spanA := make(Series, n+d)
	for i := d; i < n+d; i++ {
		spanA[i] = conv[i-d].Add(base[i-d]).Half()
	}

	lagging := make(Series, 0, n+d)
	for _, p := range prices[d:] {
		lagging = append(lagging, Of(p))
	}
	lagging = append(lagging, absents(2*d)...)

	return &Cloud{
		Conversion:   conv,
		Base:         base,
		SpanA:        spanA,
		SpanB:        spanB,
		Lagging:      lagging,
		Now:          n - 1,
		Displacement: d,
	}, nil
}

// line builds lead absents + RollingMidpoint(prices, period) + trail absents.
func (e *Engine) line(prices []int64, period, lead, trail int) (Series, error) {
	mids, err := RollingMidpoint(prices, period)
	if err != nil {
		return nil, err
	}
	s := make(Series, lead, lead+len(mids)+trail)
	for _, m := range mids {
		s = append(s, Of(m))
	}
	return append(s, absents(trail)...), nil
}

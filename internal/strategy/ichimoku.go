package strategy

import (
	"ichimoku-autotrader/internal/indicator"
	"ichimoku-autotrader/internal/ringbuf"
)

// Ichimoku keeps a rolling price history and evaluates the cloud on every
// price once the history is full.
type Ichimoku struct {
	name    string
	window  *ringbuf.Window
	engine  *indicator.Engine
	scratch []int64

	cloud *indicator.Cloud
	last  Signal
}

// NewIchimoku creates the strategy for the given cloud configuration.
func NewIchimoku(cfg indicator.Config) *Ichimoku {
	e := indicator.NewEngine(cfg)
	n := e.Config().History
	return &Ichimoku{
		name:    "Ichimoku",
		window:  ringbuf.NewWindow(n),
		engine:  e,
		scratch: make([]int64, 0, n),
	}
}

func (s *Ichimoku) Name() string {
	return s.name
}

// OnPrice appends price to the history and, when the history is full,
// recomputes the cloud and returns the resulting signal.
func (s *Ichimoku) OnPrice(price int64) (Signal, bool) {
	s.window.Push(price)
	if !s.window.Ready() {
		return Signal{}, false
	}

	s.scratch = s.window.Values(s.scratch[:0])
	cloud, err := s.engine.Compute(s.scratch)
	if err != nil {
		// unreachable with a full window
		return Signal{}, false
	}
	s.cloud = cloud
	s.last = Evaluate(cloud, s.window.Latest())
	return s.last, true
}

// History returns the number of prices held and the number required.
func (s *Ichimoku) History() (have, need int) {
	return s.window.Len(), s.window.Cap()
}

// Cloud returns the last computed cloud, nil before the first signal.
func (s *Ichimoku) Cloud() *indicator.Cloud {
	return s.cloud
}

// Snapshot returns the current-moment view of the last cloud.
func (s *Ichimoku) Snapshot() (indicator.Snapshot, bool) {
	if s.cloud == nil {
		return indicator.Snapshot{}, false
	}
	return s.cloud.Snapshot(s.last.Price, Lookahead), true
}

package indicator

// Snapshot is the cloud reduced to what the signal reads at the current
// moment, for publishing.
type Snapshot struct {
	Price      int64   `json:"price"`
	Conversion Value   `json:"conversion"`
	Base       Value   `json:"base"`
	SpanA      Value   `json:"span_a"`
	SpanB      Value   `json:"span_b"`
	Lagging    Value   `json:"lagging"` // current price plotted Displacement back
	Ahead      []Value `json:"ahead"`
}

// Snapshot returns the current-moment view with lookahead cloud differences.
func (c *Cloud) Snapshot(price int64, lookahead int) Snapshot {
	s := Snapshot{
		Price:      price,
		Conversion: c.Conversion[c.Now],
		Base:       c.Base[c.Now],
		Lagging:    Absent,
		Ahead:      make([]Value, lookahead),
	}
	if c.Now+1 < len(c.SpanA) {
		s.SpanA = c.SpanA[c.Now+1]
		s.SpanB = c.SpanB[c.Now+1]
	}
	if i := c.Now - c.Displacement; i >= 0 {
		s.Lagging = c.Lagging[i]
	}
	for k := range s.Ahead {
		s.Ahead[k] = c.Ahead(k)
	}
	return s
}

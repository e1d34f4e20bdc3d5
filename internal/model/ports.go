package model

import (
	"context"
	"time"
)

// ── Port interfaces ──
// These decouple the decision core from the venue connection and from
// storage (SQLite, Redis).

// Gateway sends order commands to the venue. Implementations must not block
// the caller on network I/O; an error means the command was not accepted
// for sending.
type Gateway interface {
	InsertOrder(id uint64, side Side, price, volume int64, lifespan Lifespan) error
	CancelOrder(id uint64) error
	HedgeOrder(id uint64, side Side, price, volume int64) error
}

// JournalEntry is one row of the order journal.
type JournalEntry struct {
	Kind     string    `json:"kind"` // insert, cancel, status, fill, hedge, hedge_fill, error
	OrderID  uint64    `json:"order_id"`
	Side     string    `json:"side,omitempty"`
	Price    int64     `json:"price"`
	Volume   int64     `json:"volume"`
	Position int64     `json:"position"`
	Fees     int64     `json:"fees"`
	Note     string    `json:"note,omitempty"`
	TS       time.Time `json:"ts"`
}

// Journal persists order activity for audit.
type Journal interface {
	Record(e JournalEntry) error
	Close() error
}

// StatePublisher pushes JSON snapshots to downstream consumers (Redis).
// Using []byte avoids a model→strategy import cycle.
type StatePublisher interface {
	PublishSignal(ctx context.Context, data []byte) error
	PublishInventory(ctx context.Context, data []byte) error
	Close() error
}

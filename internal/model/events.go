package model

// Event is anything the venue delivers to the agent. The set is closed;
// consumers switch on the concrete type.
type Event interface {
	event()
}

// Fill reports that part or all of one of our live orders traded.
type Fill struct {
	OrderID uint64 `json:"order_id"`
	Price   int64  `json:"price"`
	Volume  int64  `json:"volume"`
}

// HedgeFill reports execution of a hedge order.
type HedgeFill struct {
	OrderID uint64 `json:"order_id"`
	Price   int64  `json:"price"`
	Volume  int64  `json:"volume"`
}

// StatusUpdate is the venue's view of an order after any change.
// RemainingVolume 0 means the order is gone (filled or cancelled).
type StatusUpdate struct {
	OrderID         uint64 `json:"order_id"`
	FillVolume      int64  `json:"fill_volume"`
	RemainingVolume int64  `json:"remaining_volume"`
	Fees            int64  `json:"fees"`
}

// OrderError is a venue rejection. OrderID 0 means the error is not tied
// to an order.
type OrderError struct {
	OrderID uint64 `json:"order_id"`
	Message string `json:"message"`
}

// SessionLost is raised locally when the venue connection drops. Orders
// the venue held for the session are gone with it, and commands still
// queued were never sent.
type SessionLost struct {
	Reason string `json:"reason"`
	Unsent int    `json:"unsent"` // commands discarded from the send queue
}

func (BookUpdate) event()   {}
func (TradeTicks) event()   {}
func (Fill) event()         {}
func (HedgeFill) event()    {}
func (StatusUpdate) event() {}
func (OrderError) event()   {}
func (SessionLost) event()  {}

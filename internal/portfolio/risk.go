package portfolio

import (
	"fmt"

	"ichimoku-autotrader/internal/model"
)

// Limits bounds the inventory the agent may build in the quoted instrument.
type Limits struct {
	LotSize       int64 `json:"lot_size"`
	PositionLimit int64 `json:"position_limit"`
}

// DefaultLimits returns the venue's limits: lots of 10, |position| < 100.
func DefaultLimits() Limits {
	return Limits{
		LotSize:       model.LotSize,
		PositionLimit: model.PositionLimit,
	}
}

// CanBid checks whether one more lot can be bid given the current position
// and the remaining volume of live bids. The bound is strict, so the worst
// case position after every live bid fills stays below the limit.
// Returns true if allowed, false with a reason if not.
func (l Limits) CanBid(position, liveBids int64) (bool, string) {
	if position+liveBids+l.LotSize < l.PositionLimit {
		return true, ""
	}
	return false, fmt.Sprintf("bid would reach position limit: position=%d live=%d lot=%d limit=%d",
		position, liveBids, l.LotSize, l.PositionLimit)
}

// CanAsk mirrors CanBid for the short side.
func (l Limits) CanAsk(position, liveAsks int64) (bool, string) {
	if position-liveAsks-l.LotSize > -l.PositionLimit {
		return true, ""
	}
	return false, fmt.Sprintf("ask would reach position limit: position=%d live=%d lot=%d limit=%d",
		position, liveAsks, l.LotSize, l.PositionLimit)
}

// Can dispatches on side.
func (l Limits) Can(side model.Side, position, live int64) (bool, string) {
	if side == model.Bid {
		return l.CanBid(position, live)
	}
	return l.CanAsk(position, live)
}

// AtLimit reports whether position has reached the limit in either direction.
func (l Limits) AtLimit(position int64) bool {
	return position >= l.PositionLimit || position <= -l.PositionLimit
}

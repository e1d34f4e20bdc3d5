package model

import "fmt"

// Trading constants. Prices are integer ticks (cents).
const (
	LotSize       int64 = 10
	PositionLimit int64 = 100
	TickSize      int64 = 100

	MinimumBid int64 = 1
	MaximumAsk int64 = 2147483647
)

// Side of an order.
type Side int

const (
	Bid Side = iota // buy
	Ask             // sell
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "BID"
	case Ask:
		return "ASK"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "BID", "BUY":
		*s = Bid
	case "ASK", "SELL":
		*s = Ask
	default:
		return fmt.Errorf("unknown side %q", b)
	}
	return nil
}

// Lifespan of a resting order.
type Lifespan int

const (
	FillAndKill Lifespan = iota
	GoodForDay
)

func (l Lifespan) String() string {
	switch l {
	case FillAndKill:
		return "FILL_AND_KILL"
	case GoodForDay:
		return "GOOD_FOR_DAY"
	default:
		return fmt.Sprintf("Lifespan(%d)", int(l))
	}
}

func (l Lifespan) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Lifespan) UnmarshalText(b []byte) error {
	switch string(b) {
	case "FILL_AND_KILL":
		*l = FillAndKill
	case "GOOD_FOR_DAY":
		*l = GoodForDay
	default:
		return fmt.Errorf("unknown lifespan %q", b)
	}
	return nil
}

// Order is a live limit order owned by the agent.
// Volume is the remaining (unfilled) quantity.
type Order struct {
	ID     uint64 `json:"id"`
	Side   Side   `json:"side"`
	Price  int64  `json:"price"`
	Volume int64  `json:"volume"`
}

// Hedge is a fire-and-forget order on the future sent after every fill.
type Hedge struct {
	OrderID uint64 `json:"order_id"`
	Side    Side   `json:"side"`
	Price   int64  `json:"price"`
	Volume  int64  `json:"volume"`
}

// HedgePrice returns the aggressive limit used to hedge in the given side.
// Bids are rounded down to a whole tick.
func HedgePrice(side Side) int64 {
	if side == Bid {
		return MaximumAsk / TickSize * TickSize
	}
	return MinimumBid
}

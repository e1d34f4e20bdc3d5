// Package strategy turns an Ichimoku cloud into a trading signal.
//
// A Strategy receives reference prices one at a time and, once it has enough
// history, emits a Signal: an Action (BUY/SELL/HOLD) with a confidence.
package strategy

import (
	"fmt"
	"math"

	"ichimoku-autotrader/internal/indicator"
)

// Action represents a trading action.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Hold:
		return "HOLD"
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Action) UnmarshalText(b []byte) error {
	switch string(b) {
	case "HOLD":
		*a = Hold
	case "BUY":
		*a = Buy
	case "SELL":
		*a = Sell
	default:
		return fmt.Errorf("unknown action %q", b)
	}
	return nil
}

// Vote is one indicator's opinion: +1 bullish, -1 bearish, 0 undecided.
type Vote int

// Votes, in tally order.
const (
	VotePriceVsCloud = iota
	VoteCloudAhead
	VotePriceVsBase
	VoteConversionVsBase
	NumVotes
)

// Signal represents a trading signal emitted by a strategy.
type Signal struct {
	Action     Action         `json:"action"`
	Confidence float64        `json:"confidence"` // |sum of votes| / NumVotes, 2 decimals
	Votes      [NumVotes]Vote `json:"votes"`
	Price      int64          `json:"price"`
}

// Sum returns the net vote.
func (s Signal) Sum() int {
	n := 0
	for _, v := range s.Votes {
		n += int(v)
	}
	return n
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// OnPrice feeds the next reference price. It returns false while the
	// strategy does not have enough history to decide.
	OnPrice(price int64) (Signal, bool)
}

// Lookahead is how many projected cloud positions the second vote reads.
const Lookahead = 13

// Evaluate tallies four votes on the cloud at its current moment:
//
//  1. price above / below both leading spans
//  2. the next Lookahead cloud positions all non-negative / all non-positive
//  3. price above / below the base line
//  4. conversion line above / below the base line
//
// A comparison with an absent operand votes 0. Evaluate is pure.
func Evaluate(c *indicator.Cloud, price int64) Signal {
	sig := Signal{Price: price}
	now := c.Now
	lead := now + 1

	if lead < len(c.SpanA) {
		a, okA := c.SpanA[lead].Get()
		b, okB := c.SpanB[lead].Get()
		if okA && okB {
			switch {
			case price > max64(a, b):
				sig.Votes[VotePriceVsCloud] = 1
			case price < min64(a, b):
				sig.Votes[VotePriceVsCloud] = -1
			}
		}
	}

	up, down := true, true
	for k := 0; k < Lookahead; k++ {
		d, ok := c.Ahead(k).Get()
		if !ok {
			up, down = false, false
			break
		}
		up = up && d >= 0
		down = down && d <= 0
	}
	switch {
	case up && !down:
		sig.Votes[VoteCloudAhead] = 1
	case down && !up:
		sig.Votes[VoteCloudAhead] = -1
	}

	base, okBase := c.Base[now].Get()
	if okBase {
		sig.Votes[VotePriceVsBase] = compare(price, base)
		if conv, ok := c.Conversion[now].Get(); ok {
			sig.Votes[VoteConversionVsBase] = compare(conv, base)
		}
	}

	sum := sig.Sum()
	switch {
	case sum > 0:
		sig.Action = Buy
	case sum < 0:
		sig.Action = Sell
	default:
		sig.Action = Hold
	}
	if sum < 0 {
		sum = -sum
	}
	sig.Confidence = math.Round(float64(sum)/NumVotes*100) / 100
	return sig
}

func compare(a, b int64) Vote {
	switch {
	case a > b:
		return 1
	case a < b:
		return -1
	}
	return 0
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

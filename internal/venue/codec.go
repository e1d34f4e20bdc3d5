// Package venue connects the autotrader to an exchange over WebSocket.
//
// Every frame is a JSON envelope:
//
//	{"type":"book","data":{"instrument":"FUTURE","sequence":7,"bid_prices":[...],...}}
//
// Venue → agent types: book, trades, fill, status, hedge_fill, error.
// Agent → venue types: insert, cancel, hedge.
package venue

import (
	"encoding/json"
	"errors"
	"fmt"

	"ichimoku-autotrader/internal/model"
)

// ErrUnknownMessage is returned for envelopes with an unrecognised type.
var ErrUnknownMessage = errors.New("venue: unknown message type")

// Message types.
const (
	TypeBook      = "book"
	TypeTrades    = "trades"
	TypeFill      = "fill"
	TypeStatus    = "status"
	TypeHedgeFill = "hedge_fill"
	TypeError     = "error"

	TypeInsert = "insert"
	TypeCancel = "cancel"
	TypeHedge  = "hedge"
)

// Envelope is the wire frame.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Command is an order instruction sent to the venue.
type Command interface {
	commandType() string
}

type InsertCommand struct {
	OrderID  uint64         `json:"order_id"`
	Side     model.Side     `json:"side"`
	Price    int64          `json:"price"`
	Volume   int64          `json:"volume"`
	Lifespan model.Lifespan `json:"lifespan"`
}

type CancelCommand struct {
	OrderID uint64 `json:"order_id"`
}

type HedgeCommand struct {
	OrderID uint64     `json:"order_id"`
	Side    model.Side `json:"side"`
	Price   int64      `json:"price"`
	Volume  int64      `json:"volume"`
}

func (InsertCommand) commandType() string { return TypeInsert }
func (CancelCommand) commandType() string { return TypeCancel }
func (HedgeCommand) commandType() string  { return TypeHedge }

func encode(typ string, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return json.Marshal(Envelope{Type: typ, Data: data})
}

// EncodeCommand wraps a command in an envelope.
func EncodeCommand(c Command) ([]byte, error) {
	return encode(c.commandType(), c)
}

// EncodeEvent wraps a venue event in an envelope.
func EncodeEvent(e model.Event) ([]byte, error) {
	switch ev := e.(type) {
	case model.BookUpdate:
		return encode(TypeBook, ev)
	case model.TradeTicks:
		return encode(TypeTrades, ev)
	case model.Fill:
		return encode(TypeFill, ev)
	case model.StatusUpdate:
		return encode(TypeStatus, ev)
	case model.HedgeFill:
		return encode(TypeHedgeFill, ev)
	case model.OrderError:
		return encode(TypeError, ev)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, e)
	}
}

func open(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

func decodeInto[T any](env Envelope) (T, error) {
	var v T
	if err := json.Unmarshal(env.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	return v, nil
}

// DecodeEvent parses an event envelope.
func DecodeEvent(raw []byte) (model.Event, error) {
	env, err := open(raw)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case TypeBook:
		return decodeInto[model.BookUpdate](env)
	case TypeTrades:
		return decodeInto[model.TradeTicks](env)
	case TypeFill:
		return decodeInto[model.Fill](env)
	case TypeStatus:
		return decodeInto[model.StatusUpdate](env)
	case TypeHedgeFill:
		return decodeInto[model.HedgeFill](env)
	case TypeError:
		return decodeInto[model.OrderError](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

// DecodeCommand parses a command envelope.
func DecodeCommand(raw []byte) (Command, error) {
	env, err := open(raw)
	if err != nil {
		return nil, err
	}
	switch env.Type {
	case TypeInsert:
		return decodeInto[InsertCommand](env)
	case TypeCancel:
		return decodeInto[CancelCommand](env)
	case TypeHedge:
		return decodeInto[HedgeCommand](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
}

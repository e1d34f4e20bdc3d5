package venue

import (
	"errors"
	"strings"
	"testing"

	"ichimoku-autotrader/internal/model"
)

func TestDecodeEvent_Book(t *testing.T) {
	raw := `{"type":"book","data":{"instrument":"FUTURE","sequence":3,
		"ask_prices":[2800,2900,0,0,0],"ask_volumes":[5,5,0,0,0],
		"bid_prices":[2700,0,0,0,0],"bid_volumes":[7,0,0,0,0]}}`

	ev, err := DecodeEvent([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	b, ok := ev.(model.BookUpdate)
	if !ok {
		t.Fatalf("got %T", ev)
	}
	if b.Instrument != model.Future || b.Sequence != 3 || b.BestBid() != 2700 || b.BestAsk() != 2800 {
		t.Errorf("unexpected book %+v", b)
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	events := []model.Event{
		model.Fill{OrderID: 4, Price: 2800, Volume: 10},
		model.StatusUpdate{OrderID: 4, FillVolume: 10, RemainingVolume: 0, Fees: -3},
		model.HedgeFill{OrderID: 5, Price: 2700, Volume: 10},
		model.OrderError{OrderID: 9, Message: "price not a tick multiple"},
	}
	for _, want := range events {
		raw, err := EncodeEvent(want)
		if err != nil {
			t.Fatal(err)
		}
		got, err := DecodeEvent(raw)
		if err != nil {
			t.Fatalf("%s: %v", raw, err)
		}
		if got != want {
			t.Errorf("round trip %T: got %+v, want %+v", want, got, want)
		}
	}
}

func TestEncodeCommand_Wire(t *testing.T) {
	raw, err := EncodeCommand(InsertCommand{OrderID: 1, Side: model.Bid, Price: 2800, Volume: 10, Lifespan: model.GoodForDay})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"insert","data":{"order_id":1,"side":"BID","price":2800,"volume":10,"lifespan":"GOOD_FOR_DAY"}}`
	if string(raw) != want {
		t.Errorf("got  %s\nwant %s", raw, want)
	}

	cmd, err := DecodeCommand(raw)
	if err != nil {
		t.Fatal(err)
	}
	if ins, ok := cmd.(InsertCommand); !ok || ins.Price != 2800 || ins.Lifespan != model.GoodForDay {
		t.Errorf("decoded %+v", cmd)
	}
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		unknown bool
	}{
		{"unknown event type", `{"type":"candle","data":{}}`, true},
		{"not json", `{`, false},
		{"bad payload", `{"type":"fill","data":{"order_id":"x"}}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvent([]byte(tt.raw))
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrUnknownMessage) != tt.unknown {
				t.Errorf("errors.Is(ErrUnknownMessage) = %v for %v", !tt.unknown, err)
			}
		})
	}

	if _, err := DecodeCommand([]byte(`{"type":"amend","data":{}}`)); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("DecodeCommand: %v", err)
	}
	if _, err := DecodeCommand([]byte(`{"type":"insert","data":{"side":"UP"}}`)); err == nil || !strings.Contains(err.Error(), "side") {
		t.Errorf("bad side: %v", err)
	}
}

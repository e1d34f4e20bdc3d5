package main

import (
	"math/rand"
	"testing"

	"ichimoku-autotrader/config"
	"ichimoku-autotrader/internal/model"
	"ichimoku-autotrader/internal/venue"
)

func TestMarketStep_StaysOnTicks(t *testing.T) {
	m := &market{rng: rand.New(rand.NewSource(1)), mid: 280000}
	for i := 0; i < 1000; i++ {
		fut, etf := m.step()
		for _, b := range []model.BookUpdate{fut, etf} {
			if b.BestBid()%model.TickSize != 0 || b.BestAsk()%model.TickSize != 0 {
				t.Fatalf("step %d: off-tick book %+v", i, b)
			}
			if b.BestBid() <= 0 || b.BestAsk() <= b.BestBid() {
				t.Fatalf("step %d: bad book %+v", i, b)
			}
		}
		if d := etf.Mid() - fut.Mid(); d < -model.TickSize || d > model.TickSize {
			t.Fatalf("step %d: etf mid %d too far from future mid %d", i, etf.Mid(), fut.Mid())
		}
		if fut.Sequence != uint64(i+1) {
			t.Fatalf("sequence = %d", fut.Sequence)
		}
	}
}

func TestSession_InsertAcknowledged(t *testing.T) {
	s := newSession("test", &config.SimConfig{}, nil)
	if err := s.handle(venue.InsertCommand{OrderID: 1, Side: model.Bid, Price: 2700, Volume: 10, Lifespan: model.GoodForDay}); err != nil {
		t.Fatal(err)
	}

	select {
	case raw := <-s.send:
		ev, err := venue.DecodeEvent(raw)
		if err != nil {
			t.Fatal(err)
		}
		if st, ok := ev.(model.StatusUpdate); !ok || st.OrderID != 1 || st.RemainingVolume != 10 {
			t.Errorf("ack = %#v", ev)
		}
	default:
		t.Fatal("no status sent")
	}
}

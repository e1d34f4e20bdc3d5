package execution

import (
	"testing"

	"ichimoku-autotrader/internal/model"
	"ichimoku-autotrader/internal/portfolio"
)

func book(inst model.Instrument, bid, ask int64) model.BookUpdate {
	b := model.BookUpdate{Instrument: inst}
	b.BidPrices[0], b.BidVolumes[0] = bid, 50
	b.AskPrices[0], b.AskVolumes[0] = ask, 50
	return b
}

func newTestVenue() (*PaperVenue, *[]model.Event) {
	var events []model.Event
	v := NewPaperVenue(func(e model.Event) { events = append(events, e) }, -1, 2, nil)
	return v, &events
}

func TestPaperVenue_RestThenCross(t *testing.T) {
	v, events := newTestVenue()
	v.OnBook(book(model.ETF, 2700, 2900))

	if err := v.InsertOrder(1, model.Bid, 2800, 10, model.GoodForDay); err != nil {
		t.Fatal(err)
	}
	if len(*events) != 1 || (*events)[0] != (model.StatusUpdate{OrderID: 1, RemainingVolume: 10}) {
		t.Fatalf("expected resting status, got %+v", *events)
	}
	if v.Resting() != 1 {
		t.Fatalf("resting = %d", v.Resting())
	}

	*events = nil
	v.OnBook(book(model.ETF, 2600, 2800))
	want := []model.Event{
		model.Fill{OrderID: 1, Price: 2800, Volume: 10},
		model.StatusUpdate{OrderID: 1, FillVolume: 10, RemainingVolume: 0, Fees: -2},
	}
	if len(*events) != len(want) {
		t.Fatalf("got %+v", *events)
	}
	for i := range want {
		if (*events)[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, (*events)[i], want[i])
		}
	}
	if v.Resting() != 0 || len(v.GetFills()) != 1 {
		t.Fatal("filled order should leave the book")
	}
}

func TestPaperVenue_AggressiveInsertTakes(t *testing.T) {
	v, events := newTestVenue()
	v.OnBook(book(model.ETF, 2700, 2900))

	v.InsertOrder(1, model.Bid, 2900, 10, model.GoodForDay)
	want := []model.Event{
		model.Fill{OrderID: 1, Price: 2900, Volume: 10},
		model.StatusUpdate{OrderID: 1, FillVolume: 10, Fees: 5},
	}
	if len(*events) != 2 || (*events)[0] != want[0] || (*events)[1] != want[1] {
		t.Fatalf("got %+v, want %+v", *events, want)
	}
}

func TestPaperVenue_FillAndKillRemainder(t *testing.T) {
	v, events := newTestVenue()
	b := book(model.ETF, 2700, 2900)
	b.AskVolumes[0] = 4
	v.OnBook(b)

	v.InsertOrder(1, model.Bid, 2900, 10, model.FillAndKill)
	last := (*events)[len(*events)-1]
	if last != (model.StatusUpdate{OrderID: 1, FillVolume: 4, Fees: 2}) {
		t.Fatalf("expected killed remainder, got %+v", *events)
	}
	if v.Resting() != 0 {
		t.Fatal("fill-and-kill order must not rest")
	}
}

func TestPaperVenue_Cancel(t *testing.T) {
	v, events := newTestVenue()
	v.InsertOrder(1, model.Ask, 3000, 10, model.GoodForDay)
	*events = nil

	v.CancelOrder(1)
	v.CancelOrder(1) // already gone: ignored
	if len(*events) != 1 || (*events)[0] != (model.StatusUpdate{OrderID: 1}) {
		t.Fatalf("got %+v", *events)
	}
}

func TestPaperVenue_Rejects(t *testing.T) {
	v, events := newTestVenue()
	v.InsertOrder(1, model.Bid, 2850, 10, model.GoodForDay)
	v.InsertOrder(2, model.Bid, 2800, 0, model.GoodForDay)
	v.InsertOrder(3, model.Bid, 2800, 10, model.GoodForDay)
	v.InsertOrder(3, model.Bid, 2800, 10, model.GoodForDay)

	var rejected []uint64
	for _, e := range *events {
		if oe, ok := e.(model.OrderError); ok {
			rejected = append(rejected, oe.OrderID)
		}
	}
	if len(rejected) != 3 || rejected[0] != 1 || rejected[1] != 2 || rejected[2] != 3 {
		t.Fatalf("rejected %v", rejected)
	}
}

func TestPaperVenue_Hedge(t *testing.T) {
	v, events := newTestVenue()
	v.HedgeOrder(1, model.Ask, model.MinimumBid, 10)
	if (*events)[0] != (model.HedgeFill{OrderID: 1}) {
		t.Fatalf("hedge without a reference book should be empty, got %+v", *events)
	}

	*events = nil
	v.OnBook(book(model.Future, 2790, 2810))
	v.HedgeOrder(2, model.Ask, model.MinimumBid, 10)
	v.HedgeOrder(3, model.Bid, model.HedgePrice(model.Bid), 10)
	v.HedgeOrder(4, model.Bid, 2800, 10) // limit below the touch

	want := []model.Event{
		model.HedgeFill{OrderID: 2, Price: 2790, Volume: 10},
		model.HedgeFill{OrderID: 3, Price: 2810, Volume: 10},
		model.HedgeFill{OrderID: 4},
	}
	for i := range want {
		if (*events)[i] != want[i] {
			t.Errorf("event %d = %+v, want %+v", i, (*events)[i], want[i])
		}
	}
}

// The manager and the paper venue agree end to end.
func TestPaperVenue_DrivesManager(t *testing.T) {
	var queue []model.Event
	v := NewPaperVenue(func(e model.Event) { queue = append(queue, e) }, 0, 0, nil)
	m := NewManager(v, portfolio.DefaultLimits(), nil)

	v.OnBook(book(model.Future, 2700, 2800))
	v.OnBook(book(model.ETF, 2700, 2900))
	if _, err := m.Requote(buy(), 2700, 2800); err != nil {
		t.Fatal(err)
	}
	// Bid rests at 2800; the ETF then trades through it.
	v.OnBook(book(model.ETF, 2600, 2800))

	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		switch ev := e.(type) {
		case model.Fill:
			if _, err := m.OrderFilled(ev); err != nil {
				t.Fatal(err)
			}
		case model.StatusUpdate:
			if err := m.OrderStatus(ev); err != nil {
				t.Fatal(err)
			}
		case model.HedgeFill:
			if ev.Price != 2700 || ev.Volume != 10 {
				t.Fatalf("hedge fill %+v", ev)
			}
		}
	}
	if m.Position() != 10 {
		t.Fatalf("position = %d, want 10", m.Position())
	}
	if m.Quote(model.Bid).State != Idle || len(m.Live(model.Bid)) != 0 {
		t.Fatalf("inventory %+v", m.Snapshot())
	}
	if len(v.GetFills()) != 2 {
		t.Fatalf("fills %+v", v.GetFills())
	}
}

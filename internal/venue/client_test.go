package venue

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ichimoku-autotrader/internal/model"
)

// fakeVenue accepts one connection at a time, pushes the given frames and
// forwards every command it reads.
func fakeVenue(t *testing.T, frames []string) (*httptest.Server, <-chan Command) {
	t.Helper()
	cmds := make(chan Command, 16)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			cmd, err := DecodeCommand(raw)
			if err != nil {
				t.Errorf("venue got bad command %s: %v", raw, err)
				continue
			}
			cmds <- cmd
		}
	}))
	t.Cleanup(srv.Close)
	return srv, cmds
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestNew_RejectsBadURL(t *testing.T) {
	if _, err := New(Config{URL: "http://localhost:9001"}, nil); err == nil {
		t.Error("expected scheme error")
	}
	if _, err := New(Config{URL: "://"}, nil); err == nil {
		t.Error("expected parse error")
	}
}

func TestClient_NotConnected(t *testing.T) {
	c, err := New(Config{URL: "ws://127.0.0.1:1/ws"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	drops := 0
	c.OnDrop = func() { drops++ }
	if err := c.CancelOrder(1); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("got %v", err)
	}
	if drops != 1 {
		t.Errorf("drops = %d", drops)
	}
}

func TestClient_EventsAndCommands(t *testing.T) {
	srv, cmds := fakeVenue(t, []string{
		`{"type":"bogus","data":{}}`,
		`{"type":"book","data":{"instrument":"FUTURE","sequence":1,"bid_prices":[2700,0,0,0,0],"ask_prices":[2800,0,0,0,0]}}`,
		`{"type":"status","data":{"order_id":1,"fill_volume":0,"remaining_volume":10,"fees":0}}`,
	})

	c, err := New(Config{URL: wsURL(srv), ReconnectDelay: 10 * time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}
	bad := make(chan error, 1)
	c.OnBadMessage = func(err error) { bad <- err }

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan model.Event, 8)
	runDone := make(chan error, 1)
	go func() { runDone <- c.Run(ctx, events) }()

	first := recv(t, events)
	book, ok := first.(model.BookUpdate)
	if !ok || book.BestBid() != 2700 {
		t.Fatalf("first event = %#v", first)
	}
	if _, ok := recv(t, events).(model.StatusUpdate); !ok {
		t.Fatal("expected status update")
	}
	select {
	case err := <-bad:
		if !errors.Is(err, ErrUnknownMessage) {
			t.Errorf("bad message error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("bad message hook not called")
	}

	if !c.Connected() {
		t.Fatal("client should be connected")
	}
	if err := c.InsertOrder(1, model.Bid, 2800, 10, model.GoodForDay); err != nil {
		t.Fatal(err)
	}
	if err := c.HedgeOrder(2, model.Ask, model.MinimumBid, 10); err != nil {
		t.Fatal(err)
	}

	if ins, ok := recvCmd(t, cmds).(InsertCommand); !ok || ins.OrderID != 1 || ins.Side != model.Bid {
		t.Errorf("first command = %#v", ins)
	}
	if h, ok := recvCmd(t, cmds).(HedgeCommand); !ok || h.Price != model.MinimumBid {
		t.Errorf("second command = %#v", h)
	}

	cancel()
	select {
	case err := <-runDone:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if c.Connected() {
		t.Error("client still reports connected")
	}
}

func TestClient_Reconnects(t *testing.T) {
	// The server hangs up right after the upgrade.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conn, err := upgrader.Upgrade(w, r, nil); err == nil {
			conn.Close()
		}
	}))
	defer srv.Close()

	c, err := New(Config{URL: wsURL(srv), ReconnectDelay: 5 * time.Millisecond, MaxReconnectDelay: 10 * time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}
	reconnects := make(chan struct{}, 16)
	c.OnReconnect = func() {
		select {
		case reconnects <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan model.Event, 64)
	go c.Run(ctx, events)

	for i := 0; i < 2; i++ {
		select {
		case <-reconnects:
		case <-time.After(2 * time.Second):
			t.Fatalf("reconnect %d not observed", i+1)
		}
	}
}

func TestClient_ReportsLostSession(t *testing.T) {
	// Each session pushes one book and then hangs up.
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"book","data":{"instrument":"FUTURE","sequence":1,"bid_prices":[2700,0,0,0,0],"ask_prices":[2800,0,0,0,0]}}`))
	}))
	defer srv.Close()

	c, err := New(Config{URL: wsURL(srv), ReconnectDelay: 50 * time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan model.Event, 16)
	go c.Run(ctx, events)

	if _, ok := recv(t, events).(model.BookUpdate); !ok {
		t.Fatal("expected the session's book first")
	}
	lost, ok := recv(t, events).(model.SessionLost)
	if !ok {
		t.Fatal("expected SessionLost after the hang-up")
	}
	if lost.Reason == "" {
		t.Error("SessionLost without a reason")
	}
	if c.Connected() {
		t.Error("client still reports connected")
	}
	// The next session follows the notice.
	if _, ok := recv(t, events).(model.BookUpdate); !ok {
		t.Fatal("expected a book from the new session")
	}
}

func TestClient_DiscardQueuedCountsDrops(t *testing.T) {
	c, err := New(Config{URL: "ws://127.0.0.1:1/ws", SendQueue: 4}, nil)
	if err != nil {
		t.Fatal(err)
	}
	drops := 0
	c.OnDrop = func() { drops++ }

	for id := uint64(1); id <= 3; id++ {
		msg, err := EncodeCommand(InsertCommand{OrderID: id, Side: model.Bid, Price: 2800, Volume: 10})
		if err != nil {
			t.Fatal(err)
		}
		c.send <- msg
	}
	if n := c.discardQueued(); n != 3 {
		t.Fatalf("discarded %d, want 3", n)
	}
	if drops != 3 || len(c.send) != 0 {
		t.Errorf("drops %d, queue %d", drops, len(c.send))
	}
}

func recv(t *testing.T, ch <-chan model.Event) model.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func recvCmd(t *testing.T, ch <-chan Command) Command {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command")
		return nil
	}
}

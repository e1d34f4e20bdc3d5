package execution

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"ichimoku-autotrader/internal/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestJournal_RecordAndRecent(t *testing.T) {
	j := openTestJournal(t)

	entries := []model.JournalEntry{
		{Kind: "insert", OrderID: 1, Side: "BID", Price: 2800, Volume: 10},
		{Kind: "fill", OrderID: 1, Side: "BID", Price: 2800, Volume: 10, Position: 10},
		{Kind: "hedge", OrderID: 2, Side: "ASK", Price: 1, Volume: 10, Position: 10},
	}
	for _, e := range entries {
		if err := j.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	all, err := j.Recent("", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Kind != "hedge" || all[2].Kind != "insert" {
		t.Fatalf("unexpected entries %+v", all)
	}
	if all[0].TS.IsZero() {
		t.Fatal("timestamp not stored")
	}

	fills, err := j.Recent("fill", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(fills) != 1 || fills[0].OrderID != 1 || fills[0].Position != 10 || fills[0].Side != "BID" {
		t.Fatalf("unexpected fills %+v", fills)
	}
	if err := j.PingContext(context.Background()); err != nil {
		t.Fatal(err)
	}
}

type memJournal struct {
	mu      sync.Mutex
	entries []model.JournalEntry
	closed  bool
	block   chan struct{}
}

func (m *memJournal) Record(e model.JournalEntry) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *memJournal) Close() error {
	m.closed = true
	return nil
}

func TestAsyncJournal_DrainsOnShutdown(t *testing.T) {
	mem := &memJournal{}
	a := NewAsyncJournal(mem, 16, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)

	for i := uint64(1); i <= 5; i++ {
		if err := a.Record(model.JournalEntry{Kind: "insert", OrderID: i}); err != nil {
			t.Fatal(err)
		}
	}
	cancel()
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	if len(mem.entries) != 5 || !mem.closed {
		t.Fatalf("wrote %d entries, closed=%v", len(mem.entries), mem.closed)
	}
	if mem.entries[0].TS.IsZero() {
		t.Fatal("timestamp should be stamped at enqueue time")
	}
}

func TestAsyncJournal_DropsWhenFull(t *testing.T) {
	mem := &memJournal{block: make(chan struct{})}
	a := NewAsyncJournal(mem, 1, nil)
	drops := 0
	a.OnDrop = func() { drops++ }

	// Not running: the queue holds one entry.
	if err := a.Record(model.JournalEntry{Kind: "insert", OrderID: 1, TS: time.Now()}); err != nil {
		t.Fatal(err)
	}
	err := a.Record(model.JournalEntry{Kind: "insert", OrderID: 2})
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("expected a queue-full error, got %v", err)
	}
	if a.Dropped() != 1 || drops != 1 {
		t.Fatalf("dropped=%d callbacks=%d", a.Dropped(), drops)
	}
	close(mem.block)
}

package execution

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"ichimoku-autotrader/internal/model"
)

// Journal persists order activity to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS order_events (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		kind        TEXT NOT NULL,
		order_id    INTEGER NOT NULL,
		side        TEXT,
		price       INTEGER NOT NULL DEFAULT 0,
		volume      INTEGER NOT NULL DEFAULT 0,
		position    INTEGER NOT NULL DEFAULT 0,
		fees        INTEGER NOT NULL DEFAULT 0,
		note        TEXT,
		ts          DATETIME NOT NULL,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id);
	CREATE INDEX IF NOT EXISTS idx_order_events_kind ON order_events(kind, ts);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}

	slog.Info("opened order journal", slog.String("path", dbPath))
	return &Journal{db: db}, nil
}

// Record persists one entry. A zero timestamp is replaced with now.
func (j *Journal) Record(e model.JournalEntry) error {
	if e.TS.IsZero() {
		e.TS = time.Now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO order_events (kind, order_id, side, price, volume, position, fees, note, ts)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Kind, int64(e.OrderID), e.Side, e.Price, e.Volume, e.Position, e.Fees, e.Note,
		e.TS.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("journal %s %d: %w", e.Kind, e.OrderID, err)
	}
	return nil
}

// Recent returns the last limit entries, newest first. An empty kind
// matches every entry.
func (j *Journal) Recent(kind string, limit int) ([]model.JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT kind, order_id, COALESCE(side, ''), price, volume, position, fees, COALESCE(note, ''), ts
		 FROM order_events WHERE (? = '' OR kind = ?) ORDER BY id DESC LIMIT ?`, kind, kind, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.JournalEntry
	for rows.Next() {
		var (
			e  model.JournalEntry
			id int64
			ts string
		)
		if err := rows.Scan(&e.Kind, &id, &e.Side, &e.Price, &e.Volume, &e.Position, &e.Fees, &e.Note, &ts); err != nil {
			continue
		}
		e.OrderID = uint64(id)
		e.TS, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PingContext checks the database is reachable.
func (j *Journal) PingContext(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// AsyncJournal queues entries for a background writer so callers never
// wait on disk. When the queue is full new entries are dropped and counted.
type AsyncJournal struct {
	next    model.Journal
	ch      chan model.JournalEntry
	dropped atomic.Uint64
	done    chan struct{}
	once    sync.Once
	log     *slog.Logger

	// OnDrop is called when an entry is dropped (for metrics).
	OnDrop func()
}

// NewAsyncJournal wraps next with a queue of size entries.
func NewAsyncJournal(next model.Journal, size int, log *slog.Logger) *AsyncJournal {
	if size <= 0 {
		size = 1024
	}
	if log == nil {
		log = slog.Default()
	}
	return &AsyncJournal{
		next: next,
		ch:   make(chan model.JournalEntry, size),
		done: make(chan struct{}),
		log:  log.With(slog.String("component", "journal")),
	}
}

// Record enqueues e without blocking.
func (a *AsyncJournal) Record(e model.JournalEntry) error {
	if e.TS.IsZero() {
		e.TS = time.Now()
	}
	select {
	case a.ch <- e:
		return nil
	default:
		a.dropped.Add(1)
		if a.OnDrop != nil {
			a.OnDrop()
		}
		return fmt.Errorf("journal queue full, dropped %s %d", e.Kind, e.OrderID)
	}
}

// Dropped returns the number of entries dropped so far.
func (a *AsyncJournal) Dropped() uint64 {
	return a.dropped.Load()
}

// Run writes queued entries until ctx is cancelled, then drains what is
// left. Blocks.
func (a *AsyncJournal) Run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case e := <-a.ch:
					a.write(e)
				default:
					return
				}
			}
		case e := <-a.ch:
			a.write(e)
		}
	}
}

func (a *AsyncJournal) write(e model.JournalEntry) {
	if err := a.next.Record(e); err != nil {
		a.log.Error("journal write failed", slog.String("error", err.Error()))
	}
}

// Close waits for Run to finish draining and closes the underlying journal.
// Run must have been started and its context cancelled.
func (a *AsyncJournal) Close() error {
	var err error
	a.once.Do(func() {
		<-a.done
		err = a.next.Close()
	})
	return err
}

var (
	_ model.Journal = (*Journal)(nil)
	_ model.Journal = (*AsyncJournal)(nil)
)

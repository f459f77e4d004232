package trace

import (
	"database/sql"
	"log/slog"
	"sync"
	"time"
)

// Schema for the shield_events table. Call Store.Init() or apply manually.
const Schema = `
CREATE TABLE IF NOT EXISTS shield_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT,
	kind TEXT NOT NULL,
	mark_id TEXT,
	identity TEXT,
	detail TEXT,
	duration_us INTEGER NOT NULL DEFAULT 0,
	error TEXT,
	timestamp INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_shield_events_ts ON shield_events(timestamp);
CREATE INDEX IF NOT EXISTS idx_shield_events_kind ON shield_events(kind);
CREATE INDEX IF NOT EXISTS idx_shield_events_identity ON shield_events(identity) WHERE identity != '';
`

// Store persists events to a SQLite table asynchronously. It MUST be opened
// with the raw "sqlite" driver (not "sqlite-trace") to avoid infinite
// recursion.
type Store struct {
	db   *sql.DB
	ch   chan *Event
	done chan struct{}
	once sync.Once
}

// NewStore creates an event store backed by the given database connection.
func NewStore(db *sql.DB) *Store {
	s := &Store{
		db:   db,
		ch:   make(chan *Event, 1024),
		done: make(chan struct{}),
	}
	go s.flushLoop()
	return s
}

// Init creates the shield_events table if it doesn't exist.
func (s *Store) Init() error {
	_, err := s.db.Exec(Schema)
	return err
}

// RecordAsync queues an event for async persistence. Non-blocking; drops if
// the buffer is full to avoid backpressure on the engine.
func (s *Store) RecordAsync(e *Event) {
	select {
	case s.ch <- e:
	default:
	}
}

// Close drains the buffer and stops the flush goroutine.
func (s *Store) Close() error {
	s.once.Do(func() {
		close(s.ch)
		<-s.done
	})
	return nil
}

func (s *Store) flushLoop() {
	defer close(s.done)

	batch := make([]*Event, 0, 64)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				s.flushBatch(batch)
				return
			}
			batch = append(batch, e)
			if len(batch) >= 64 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				s.flushBatch(batch)
				batch = batch[:0]
			}
		}
	}
}

func (s *Store) flushBatch(batch []*Event) {
	if len(batch) == 0 {
		return
	}

	tx, err := s.db.Begin()
	if err != nil {
		slog.Error("trace store: begin tx", "error", err)
		return
	}

	stmt, err := tx.Prepare(`INSERT INTO shield_events
		(trace_id, kind, mark_id, identity, detail, duration_us, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		slog.Error("trace store: prepare", "error", err)
		return
	}
	defer stmt.Close()

	for _, e := range batch {
		if _, err := stmt.Exec(e.TraceID, e.Kind, e.MarkID, e.Identity, e.Detail,
			e.DurationUs, e.Error, e.Timestamp); err != nil {
			slog.Error("trace store: insert", "error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		slog.Error("trace store: commit", "error", err)
	}
}

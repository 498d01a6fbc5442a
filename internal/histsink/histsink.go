// Package histsink persists navigation history and service lifecycle events
// to SQLite as an optional collaborator: the lifecycle manager may write to
// it but never depends on it for correctness.
//
// All persistence is async and non-blocking through a bounded queue: buffer
// overflow drops datapoints rather than applying backpressure, and Close
// drains whatever is queued. Shutdown is therefore deterministic — no
// fire-and-forget goroutine outlives the sink.
package histsink

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/quarev/browserd/idgen"
)

const schema = `
CREATE TABLE IF NOT EXISTS navigation_history (
	id          TEXT PRIMARY KEY,
	session_id  TEXT NOT NULL,
	tab_id      TEXT NOT NULL,
	url         TEXT NOT NULL,
	title       TEXT,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nav_history_session ON navigation_history(session_id, created_at);

CREATE TABLE IF NOT EXISTS service_events (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	session_id  TEXT,
	tab_id      TEXT,
	detail      TEXT,
	created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_service_events_kind ON service_events(kind, created_at);
`

// Production-safe pragmas, applied via EXEC so they work with any driver.
var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

type navRow struct {
	sessionID, tabID, url, title string
	at                           time.Time
}

type eventRow struct {
	kind, sessionID, tabID, detail string
	at                             time.Time
}

// Sink writes history and event rows asynchronously.
type Sink struct {
	db     *sql.DB
	owned  bool
	queue  chan any
	done   chan struct{}
	newID  idgen.Generator
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// Open opens (creating directories as needed) a SQLite sink at path and
// starts the writer. The caller must import a driver registering "sqlite"
// (modernc.org/sqlite).
func Open(path string, logger *slog.Logger) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("histsink: mkdir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("histsink: open: %w", err)
	}
	s, err := NewWithDB(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewWithDB wraps an existing database handle (used by tests with an
// in-memory database). The sink does not close the handle.
func NewWithDB(db *sql.DB, logger *slog.Logger) (*Sink, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("histsink: pragma: %w", err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("histsink: schema: %w", err)
	}

	s := &Sink{
		db:     db,
		queue:  make(chan any, 256),
		done:   make(chan struct{}),
		newID:  idgen.Prefixed("evt_", idgen.Default),
		logger: logger,
	}
	go s.writeLoop()
	return s, nil
}

// RecordNavigation queues one history row. Non-blocking: a full queue drops
// the row with a debug log instead of stalling navigation. No-op after Close.
func (s *Sink) RecordNavigation(sessionID, tabID, url, title string) {
	if !s.enqueue(navRow{sessionID: sessionID, tabID: tabID, url: url, title: title, at: time.Now()}) {
		s.logger.Debug("histsink: dropping history row", "tab", tabID)
	}
}

// RecordEvent queues one lifecycle event row. Non-blocking; no-op after Close.
func (s *Sink) RecordEvent(kind, sessionID, tabID, detail string) {
	if !s.enqueue(eventRow{kind: kind, sessionID: sessionID, tabID: tabID, detail: detail, at: time.Now()}) {
		s.logger.Debug("histsink: dropping event", "kind", kind)
	}
}

// enqueue sends under the mutex so a Record racing Close can never hit a
// closed channel. A load may complete while the service is shutting down;
// that row is dropped, not a crash.
func (s *Sink) enqueue(row any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.queue <- row:
		return true
	default:
		return false
	}
}

// Close drains the queue, stops the writer, and closes the database when
// the sink owns it. Safe to call more than once; records arriving after
// Close are dropped.
func (s *Sink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done
	if s.owned {
		return s.db.Close()
	}
	return nil
}

func (s *Sink) writeLoop() {
	defer close(s.done)
	for item := range s.queue {
		switch row := item.(type) {
		case navRow:
			_, err := s.db.Exec(`
				INSERT INTO navigation_history (id, session_id, tab_id, url, title, created_at)
				VALUES (?,?,?,?,?,?)`,
				s.newID(), row.sessionID, row.tabID, row.url, row.title, row.at.Unix())
			if err != nil {
				s.logger.Warn("histsink: history insert failed", "error", err)
			}
		case eventRow:
			_, err := s.db.Exec(`
				INSERT INTO service_events (id, kind, session_id, tab_id, detail, created_at)
				VALUES (?,?,?,?,?,?)`,
				s.newID(), row.kind, row.sessionID, row.tabID, row.detail, row.at.Unix())
			if err != nil {
				s.logger.Warn("histsink: event insert failed", "error", err)
			}
		}
	}
}

package histsink

import (
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestSink_WritesAndDrainsOnClose(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hist.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := NewWithDB(db, nil)
	if err != nil {
		t.Fatalf("NewWithDB: %v", err)
	}

	s.RecordNavigation("sess_1", "tab_1", "https://a.test", "A")
	s.RecordNavigation("sess_1", "tab_1", "https://b.test", "B")
	s.RecordEvent("session_closed", "sess_1", "", "")

	// Close drains everything still queued.
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var navs int
	if err := db.QueryRow(`SELECT COUNT(*) FROM navigation_history WHERE session_id = 'sess_1'`).Scan(&navs); err != nil {
		t.Fatal(err)
	}
	if navs != 2 {
		t.Fatalf("history rows: got %d, want 2", navs)
	}

	var url string
	err = db.QueryRow(`SELECT url FROM navigation_history ORDER BY created_at, id LIMIT 1`).Scan(&url)
	if err != nil {
		t.Fatal(err)
	}
	if url != "https://a.test" {
		t.Fatalf("first row url: got %q", url)
	}

	var events int
	if err := db.QueryRow(`SELECT COUNT(*) FROM service_events WHERE kind = 'session_closed'`).Scan(&events); err != nil {
		t.Fatal(err)
	}
	if events != 1 {
		t.Fatalf("event rows: got %d, want 1", events)
	}
}

func TestSink_RecordNeverBlocks(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hist.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := NewWithDB(db, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Far beyond the queue capacity; overflow must drop, not stall.
	for i := 0; i < 5000; i++ {
		s.RecordEvent("tab_closed", "sess_1", "tab_1", "")
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM service_events`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n == 0 || n > 5000 {
		t.Fatalf("event rows: got %d", n)
	}
}

func TestSink_RecordAfterCloseIsNoOp(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hist.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	s, err := NewWithDB(db, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.RecordNavigation("sess_1", "tab_1", "https://a.test", "A")
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// A navigation completing during shutdown must be dropped, not panic.
	s.RecordNavigation("sess_1", "tab_1", "https://late.test", "Late")
	s.RecordEvent("tab_closed", "sess_1", "tab_1", "")
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM navigation_history`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("history rows: got %d, want 1", n)
	}
}

func TestOpen_CreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "hist.db")
	s, err := Open(path, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.RecordNavigation("sess_1", "tab_1", "https://a.test", "A")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

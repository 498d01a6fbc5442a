package browserd

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/quarev/browserd/internal/engine/enginetest"
	"github.com/quarev/browserd/internal/histsink"
)

func newTestService(t *testing.T) (*Service, *enginetest.Engine) {
	t.Helper()
	eng := &enginetest.Engine{}
	svc, err := New(Config{}, nil, WithLauncher(eng.Launcher()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return svc, eng
}

func TestService_RequiresInitialize(t *testing.T) {
	eng := &enginetest.Engine{}
	svc, err := New(Config{}, nil, WithLauncher(eng.Launcher()))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateSession(context.Background(), ""); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("CreateSession before Initialize: got %v, want ErrEngineUnavailable", err)
	}
	if h := svc.Health(); h.EngineReady {
		t.Fatal("health reports ready before Initialize")
	}
}

func TestService_SessionAndTabLifecycle(t *testing.T) {
	svc, eng := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if len(eng.Contexts) != 1 {
		t.Fatalf("engine contexts: got %d, want 1", len(eng.Contexts))
	}

	tab, navRes, err := svc.CreateTab(ctx, sess.ID, "https://example.com")
	if err != nil {
		t.Fatalf("CreateTab: %v", err)
	}
	if navRes == nil || navRes.Status != "loaded" {
		t.Fatalf("initial navigation: %+v", navRes)
	}
	if tab.URL != "https://example.com" {
		t.Fatalf("tab url: got %q", tab.URL)
	}

	info, err := svc.GetTabInfo(tab.ID)
	if err != nil {
		t.Fatal(err)
	}
	if info.HistoryLen != 1 {
		t.Fatalf("history len: got %d, want 1", info.HistoryLen)
	}

	h := svc.Health()
	if !h.EngineReady || h.Sessions != 1 || h.Tabs != 1 {
		t.Fatalf("health: %+v", h)
	}

	report, err := svc.CloseSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("CloseSession: %v", err)
	}
	if len(report.ClosedTabs) != 1 {
		t.Fatalf("report: %+v", report)
	}
	if _, err := svc.GetTabInfo(tab.ID); !errors.Is(err, ErrTabNotFound) {
		t.Fatalf("tab after session close: got %v, want ErrTabNotFound", err)
	}
	if _, err := svc.GetSession(sess.ID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session after close: got %v, want ErrSessionNotFound", err)
	}
	if !eng.Contexts[0].Closed {
		t.Fatal("engine context not released")
	}
}

func TestService_CreateTabWithoutURLStaysIdle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	tab, navRes, err := svc.CreateTab(ctx, sess.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if navRes != nil {
		t.Fatalf("navigation without url: %+v", navRes)
	}
	if tab.URL != "" || tab.Loading {
		t.Fatalf("fresh tab: %+v", tab)
	}
}

func TestService_CreateTabUnknownSession(t *testing.T) {
	svc, _ := newTestService(t)
	if _, _, err := svc.CreateTab(context.Background(), "nope", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("got %v, want ErrSessionNotFound", err)
	}
}

func TestService_NavigationAndContentFlow(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, _ := svc.CreateSession(ctx, "")
	tab, _, err := svc.CreateTab(ctx, sess.ID, "https://a.test")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Navigate(ctx, tab.ID, "https://b.test"); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Back(ctx, tab.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.URL != "https://a.test" {
		t.Fatalf("back: %+v", res)
	}
	res, err = svc.Forward(ctx, tab.ID)
	if err != nil {
		t.Fatal(err)
	}
	if res.URL != "https://b.test" {
		t.Fatalf("forward: %+v", res)
	}

	snap, err := svc.GetContent(ctx, tab.ID, FormatText)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Status != "ok" {
		t.Fatalf("content: %+v", snap)
	}

	eval, err := svc.Evaluate(ctx, tab.ID, "1+1")
	if err != nil {
		t.Fatal(err)
	}
	if eval.Status != "ok" {
		t.Fatalf("evaluate: %+v", eval)
	}

	events, err := svc.SessionHistory(sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("history: got %d events, want 2", len(events))
	}
}

func TestService_CloseEmptiesEverything(t *testing.T) {
	svc, eng := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		sess, err := svc.CreateSession(ctx, "")
		if err != nil {
			t.Fatal(err)
		}
		if _, _, err := svc.CreateTab(ctx, sess.ID, ""); err != nil {
			t.Fatal(err)
		}
	}

	if err := svc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	h := svc.Health()
	if h.EngineReady || h.Sessions != 0 || h.Tabs != 0 {
		t.Fatalf("health after close: %+v", h)
	}
	if !eng.Closed {
		t.Fatal("engine process not terminated")
	}
}

func TestService_ClientSuppliedSessionID(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "scraper-7")
	if err != nil {
		t.Fatal(err)
	}
	if sess.ID != "scraper-7" {
		t.Fatalf("session id: got %q", sess.ID)
	}
	if _, err := svc.CreateSession(ctx, "scraper-7"); !errors.Is(err, ErrSessionExists) {
		t.Fatalf("duplicate: got %v, want ErrSessionExists", err)
	}
}

func TestService_CloseTabRecordsOneEvent(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "hist.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	sink, err := histsink.NewWithDB(db, nil)
	if err != nil {
		t.Fatal(err)
	}

	eng := &enginetest.Engine{}
	svc, err := New(Config{}, nil, WithLauncher(eng.Launcher()), WithSink(sink))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := svc.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	sess, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	tab, _, err := svc.CreateTab(ctx, sess.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.CloseTab(ctx, tab.ID); err != nil {
		t.Fatalf("CloseTab: %v", err)
	}
	if err := svc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM service_events WHERE kind = 'tab_closed' AND tab_id = ?`, tab.ID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("tab_closed rows: got %d, want 1", n)
	}
}

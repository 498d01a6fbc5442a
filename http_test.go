package browserd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/quarev/browserd/internal/engine/enginetest"
)

func newTestServer(t *testing.T) (*Service, *httptest.Server) {
	t.Helper()
	eng := &enginetest.Engine{}
	svc, err := New(Config{}, nil, WithLauncher(eng.Launcher()))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}

	r := chi.NewRouter()
	svc.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return svc, ts
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatal(err)
	}
	return resp, out.Bytes()
}

func TestHTTP_HealthAndLifecycle(t *testing.T) {
	_, ts := newTestServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status: %d", resp.StatusCode)
	}
	var h Health
	if err := json.Unmarshal(body, &h); err != nil {
		t.Fatal(err)
	}
	if !h.EngineReady || h.Sessions != 0 {
		t.Fatalf("health: %+v", h)
	}

	// Create a session.
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create session status: %d (%s)", resp.StatusCode, body)
	}
	var sess SessionInfo
	if err := json.Unmarshal(body, &sess); err != nil {
		t.Fatal(err)
	}

	// Open a tab with an initial URL.
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/tabs", map[string]string{"url": "https://example.com"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create tab status: %d (%s)", resp.StatusCode, body)
	}
	var created struct {
		Tab        TabInfo    `json:"tab"`
		Navigation *NavResult `json:"navigation"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		t.Fatal(err)
	}
	if created.Navigation == nil || created.Navigation.Status != "loaded" {
		t.Fatalf("initial navigation: %+v", created.Navigation)
	}
	tabID := created.Tab.ID

	// Navigate and read back tab info.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/tabs/"+tabID+"/navigate", map[string]string{"url": "https://b.test"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("navigate status: %d", resp.StatusCode)
	}
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/tabs/"+tabID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get tab status: %d", resp.StatusCode)
	}
	var info TabInfo
	if err := json.Unmarshal(body, &info); err != nil {
		t.Fatal(err)
	}
	if info.URL != "https://b.test" || info.HistoryLen != 2 {
		t.Fatalf("tab info: %+v", info)
	}

	// Back lands on the first URL.
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/tabs/"+tabID+"/back", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("back status: %d", resp.StatusCode)
	}
	var nav NavResult
	if err := json.Unmarshal(body, &nav); err != nil {
		t.Fatal(err)
	}
	if nav.URL != "https://example.com" {
		t.Fatalf("back result: %+v", nav)
	}

	// Delete the session; the tab is gone with it.
	resp, _ = doJSON(t, http.MethodDelete, ts.URL+"/api/sessions/"+sess.ID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("close session status: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/tabs/"+tabID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("tab after session close: %d", resp.StatusCode)
	}
}

func TestHTTP_ErrorMapping(t *testing.T) {
	_, ts := newTestServer(t)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"unknown session", http.MethodGet, "/api/sessions/nope", nil, http.StatusNotFound},
		{"unknown tab", http.MethodGet, "/api/tabs/nope", nil, http.StatusNotFound},
		{"navigate unknown tab", http.MethodPost, "/api/tabs/nope/navigate", map[string]string{"url": "https://x.test"}, http.StatusNotFound},
		{"navigate without url", http.MethodPost, "/api/tabs/nope/navigate", map[string]string{}, http.StatusBadRequest},
		{"tabs in unknown session", http.MethodPost, "/api/sessions/nope/tabs", map[string]string{}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := doJSON(t, tc.method, ts.URL+tc.path, tc.body)
			if resp.StatusCode != tc.want {
				t.Fatalf("status: got %d, want %d (%s)", resp.StatusCode, tc.want, body)
			}
		})
	}
}

func TestHTTP_DuplicateSessionConflicts(t *testing.T) {
	_, ts := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"session_id": "dup"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("first create: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/sessions", map[string]string{"session_id": "dup"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate create: got %d, want 409", resp.StatusCode)
	}
}

func TestHTTP_EngineUnavailableIs503(t *testing.T) {
	eng := &enginetest.Engine{}
	svc, err := New(Config{}, nil, WithLauncher(eng.Launcher()))
	if err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	svc.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/sessions", nil)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d, want 503", resp.StatusCode)
	}

	// Explicit initialize over HTTP recovers.
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/engine/initialize", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("initialize status: %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create after initialize: %d", resp.StatusCode)
	}
}

func TestHTTP_CreateTabFailedInitialNavReturnsTab(t *testing.T) {
	eng := &enginetest.Engine{}
	svc, err := New(Config{}, nil, WithLauncher(eng.Launcher()))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := svc.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	r := chi.NewRouter()
	svc.RegisterRoutes(r)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)

	sess, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	// Engine dies between page creation and the initial load.
	eng.Contexts[0].NewPageGotoErr = errors.New("target crashed")
	eng.PingErr = errors.New("connection refused")

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/sessions/"+sess.ID+"/tabs", map[string]string{
		"url": "https://example.com",
	})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status: got %d (%s), want 503", resp.StatusCode, body)
	}

	// The registered tab must be in the error body so the caller can
	// retry or close it.
	var out struct {
		Tab   TabInfo `json:"tab"`
		Error string  `json:"error"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatal(err)
	}
	if out.Tab.ID == "" || out.Error == "" {
		t.Fatalf("body: %s", body)
	}
	if _, err := svc.GetTabInfo(out.Tab.ID); err != nil {
		t.Fatalf("returned tab not registered: %v", err)
	}
}

func TestHTTP_ScreenshotStreamsPNG(t *testing.T) {
	svc, ts := newTestServer(t)
	ctx := context.Background()

	sess, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	tab, _, err := svc.CreateTab(ctx, sess.ID, "https://example.com")
	if err != nil {
		t.Fatal(err)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/tabs/"+tab.ID+"/screenshot?full_page=true", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type: %q", ct)
	}
	if len(body) == 0 {
		t.Fatal("empty image payload")
	}
}

func TestBasicAuth(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	mw := BasicAuth(AuthConfig{Username: "admin", PasswordHash: string(hash)})
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no credentials: got %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL, nil)
	req.SetBasicAuth("admin", "wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong password: got %d, want 401", resp.StatusCode)
	}

	req, _ = http.NewRequest(http.MethodGet, ts.URL, nil)
	req.SetBasicAuth("admin", "s3cret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("valid credentials: got %d, want 204", resp.StatusCode)
	}
}

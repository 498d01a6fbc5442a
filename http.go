package browserd

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"
)

// RegisterRoutes mounts the full HTTP surface on a chi router.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Get("/health", s.handleHealth)
	r.Post("/api/engine/initialize", s.handleInitialize)

	r.Post("/api/sessions", s.handleCreateSession)
	r.Get("/api/sessions", s.handleListSessions)
	r.Get("/api/sessions/{session_id}", s.handleGetSession)
	r.Get("/api/sessions/{session_id}/history", s.handleSessionHistory)
	r.Delete("/api/sessions/{session_id}", s.handleCloseSession)
	r.Post("/api/sessions/{session_id}/tabs", s.handleCreateTab)

	r.Get("/api/tabs/{tab_id}", s.handleGetTab)
	r.Patch("/api/tabs/{tab_id}", s.handleUpdateTab)
	r.Delete("/api/tabs/{tab_id}", s.handleCloseTab)
	r.Post("/api/tabs/{tab_id}/navigate", s.handleNavigate)
	r.Post("/api/tabs/{tab_id}/back", s.handleBack)
	r.Post("/api/tabs/{tab_id}/forward", s.handleForward)
	r.Post("/api/tabs/{tab_id}/reload", s.handleReload)
	r.Get("/api/tabs/{tab_id}/content", s.handleContent)
	r.Post("/api/tabs/{tab_id}/evaluate", s.handleEvaluate)
	r.Get("/api/tabs/{tab_id}/screenshot", s.handleScreenshot)
	r.Get("/api/tabs/{tab_id}/pdf", s.handlePDF)
	r.Post("/api/tabs/{tab_id}/steps", s.handleSteps)
}

// BasicAuth guards the API with a single bcrypt credential pair. Returns a
// pass-through middleware when auth is not configured.
func BasicAuth(cfg AuthConfig) func(http.Handler) http.Handler {
	if cfg.Username == "" || cfg.PasswordHash == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(cfg.Username)) != 1 ||
				bcrypt.CompareHashAndPassword([]byte(cfg.PasswordHash), []byte(pass)) != nil {
				w.Header().Set("WWW-Authenticate", `Basic realm="browserd"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Health())
}

func (s *Service) handleInitialize(w http.ResponseWriter, r *http.Request) {
	if err := s.Initialize(r.Context()); err != nil {
		s.logger.Error("engine initialize failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, s.Health())
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	info, err := s.CreateSession(r.Context(), req.SessionID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Service) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ListSessions())
}

func (s *Service) handleGetSession(w http.ResponseWriter, r *http.Request) {
	info, err := s.GetSession(chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Service) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	events, err := s.SessionHistory(chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	report, err := s.CloseSession(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Service) handleCreateTab(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}
	info, navRes, err := s.CreateTab(r.Context(), chi.URLParam(r, "session_id"), req.URL)
	if err != nil {
		// A hard initial-navigation error still leaves a registered,
		// usable tab; the caller needs its id to retry or close it.
		if info.ID != "" {
			writeJSON(w, s.errorStatus(err), map[string]any{
				"tab":   info,
				"error": err.Error(),
			})
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"tab":        info,
		"navigation": navRes,
	})
}

func (s *Service) handleGetTab(w http.ResponseWriter, r *http.Request) {
	info, err := s.GetTabInfo(chi.URLParam(r, "tab_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Service) handleUpdateTab(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pinned  *bool   `json:"pinned"`
		GroupID *string `json:"group_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	info, err := s.UpdateTab(chi.URLParam(r, "tab_id"), req.Pinned, req.GroupID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Service) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	if err := s.CloseTab(r.Context(), chi.URLParam(r, "tab_id")); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Service) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	res, err := s.Navigate(r.Context(), chi.URLParam(r, "tab_id"), req.URL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleBack(w http.ResponseWriter, r *http.Request) {
	s.writeNav(w, r, s.Back)
}

func (s *Service) handleForward(w http.ResponseWriter, r *http.Request) {
	s.writeNav(w, r, s.Forward)
}

func (s *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	s.writeNav(w, r, s.Reload)
}

func (s *Service) writeNav(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, tabID string) (*NavResult, error)) {
	res, err := op(r.Context(), chi.URLParam(r, "tab_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleContent(w http.ResponseWriter, r *http.Request) {
	format := Format(r.URL.Query().Get("format"))
	if format == "" {
		format = FormatHTML
	}
	snap, err := s.GetContent(r.Context(), chi.URLParam(r, "tab_id"), format)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Service) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Expression string `json:"expression"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Expression == "" {
		http.Error(w, "expression is required", http.StatusBadRequest)
		return
	}
	res, err := s.Evaluate(r.Context(), chi.URLParam(r, "tab_id"), req.Expression)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Service) handleScreenshot(w http.ResponseWriter, r *http.Request) {
	fullPage := r.URL.Query().Get("full_page") == "true"
	res, err := s.Screenshot(r.Context(), chi.URLParam(r, "tab_id"), fullPage)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if res.Status != "ok" {
		writeJSON(w, http.StatusOK, res)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

func (s *Service) handlePDF(w http.ResponseWriter, r *http.Request) {
	res, err := s.PDF(r.Context(), chi.URLParam(r, "tab_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if res.Status != "ok" {
		writeJSON(w, http.StatusOK, res)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(http.StatusOK)
	w.Write(res.Data)
}

func (s *Service) handleSteps(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Steps []Step `json:"steps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Steps) == 0 {
		http.Error(w, "steps are required", http.StatusBadRequest)
		return
	}
	results, err := s.RunSteps(r.Context(), chi.URLParam(r, "tab_id"), req.Steps)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// writeError maps sentinel errors to HTTP statuses. Anything unrecognized
// is a 500 logged server-side.
func (s *Service) writeError(w http.ResponseWriter, err error) {
	writeJSON(w, s.errorStatus(err), map[string]string{"error": err.Error()})
}

func (s *Service) errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrSessionNotFound), errors.Is(err, ErrTabNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTabBusy), errors.Is(err, ErrSessionExists):
		return http.StatusConflict
	case errors.Is(err, ErrEngineUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrBadFormat):
		return http.StatusBadRequest
	default:
		s.logger.Error("request failed", "error", err)
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Package browserd manages the lifecycle of browser sessions and tabs on a
// single shared headless engine: isolated browsing contexts, per-tab
// navigation with history, content extraction, script evaluation, and
// ordered teardown.
package browserd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quarev/browserd/internal/cleanup"
	"github.com/quarev/browserd/internal/content"
	"github.com/quarev/browserd/internal/engine"
	"github.com/quarev/browserd/internal/histsink"
	"github.com/quarev/browserd/internal/nav"
	"github.com/quarev/browserd/internal/steps"
	"github.com/quarev/browserd/internal/track"
)

// capabilities advertised by Health.
var capabilities = []string{
	"navigate", "back", "forward", "reload",
	"content_html", "content_sanitized", "content_text", "content_markdown",
	"evaluate", "screenshot", "pdf", "steps",
}

// Service is the public API. One Service owns one engine process, one
// registry, and all controllers operating on it.
type Service struct {
	cfg    Config
	logger *slog.Logger

	sup     *engine.Supervisor
	store   *track.Store
	nav     *nav.Controller
	content *content.Extractor
	cleanup *cleanup.Coordinator
	steps   *steps.Runner
	sink    *histsink.Sink
}

// Option overrides a Service collaborator.
type Option func(*Service) error

// WithLauncher replaces the engine launcher, e.g. with a fake for tests.
func WithLauncher(launch engine.Launcher) Option {
	return func(s *Service) error {
		s.sup = engine.NewSupervisor(launch, s.logger)
		return nil
	}
}

// WithSink supplies an already-open history sink instead of opening one
// from Config.History.Path.
func WithSink(sink *histsink.Sink) Option {
	return func(s *Service) error {
		s.sink = sink
		return nil
	}
}

// New assembles a Service. The engine is not launched yet; call Initialize.
func New(cfg Config, logger *slog.Logger, opts ...Option) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()

	s := &Service{
		cfg:    cfg,
		logger: logger,
		store:  track.NewStore(),
	}
	s.sup = engine.NewSupervisor(engine.RodLauncher(engine.RodConfig{
		RemoteURL: cfg.Engine.RemoteURL,
		Stealth:   cfg.Engine.Stealth,
	}, logger), logger)

	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}

	if s.sink == nil && cfg.History.Path != "" {
		sink, err := histsink.Open(cfg.History.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("browserd: open history sink: %w", err)
		}
		s.sink = sink
	}

	var navRecorder nav.Recorder
	var eventRecorder cleanup.Recorder
	if s.sink != nil {
		navRecorder = s.sink
		eventRecorder = s.sink
	}

	s.nav = nav.NewController(s.store, s.sup, cfg.Timeouts.Navigation, navRecorder, logger)
	s.content = content.NewExtractor(s.store, s.sup, cfg.Timeouts.Content, logger)
	s.cleanup = cleanup.NewCoordinator(s.store, cfg.Timeouts.Teardown, eventRecorder, logger)
	s.steps = steps.NewRunner(s.store, s.sup, s.nav, s.content, cfg.Timeouts.Step, logger)
	return s, nil
}

// Initialize launches the engine process. Idempotent; safe to call again
// after a crash was surfaced as ErrEngineUnavailable.
func (s *Service) Initialize(ctx context.Context) error {
	return s.sup.Initialize(ctx)
}

// Close tears down every session, terminates the engine, and closes the
// history sink. Individual teardown failures are logged, not returned.
func (s *Service) Close(ctx context.Context) error {
	reports := s.cleanup.CleanupAll(ctx)
	for _, rep := range reports {
		if len(rep.Failures) > 0 {
			s.logger.Warn("session teardown incomplete", "session_id", rep.SessionID, "failures", len(rep.Failures))
		}
	}

	err := s.sup.Shutdown(ctx)
	if s.sink != nil {
		if serr := s.sink.Close(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

// Health reports engine readiness, registry counts, and capabilities.
func (s *Service) Health() Health {
	sessions, tabs := s.store.Counts()
	return Health{
		EngineReady:  s.sup.Ready(),
		Sessions:     sessions,
		Tabs:         tabs,
		Capabilities: capabilities,
	}
}

// CreateSession opens an isolated browsing context. clientID may supply the
// session id; empty allocates one.
func (s *Service) CreateSession(ctx context.Context, clientID string) (SessionInfo, error) {
	eng, err := s.sup.Engine()
	if err != nil {
		return SessionInfo{}, err
	}
	bctx, err := eng.NewContext(ctx)
	if err != nil {
		return SessionInfo{}, s.sup.Confirm(ctx, fmt.Errorf("browserd: create context: %w", err))
	}
	info, err := s.store.CreateSession(clientID, bctx)
	if err != nil {
		if cerr := bctx.Close(ctx); cerr != nil {
			s.logger.Warn("orphan context close failed", "error", cerr)
		}
		return SessionInfo{}, err
	}
	if s.sink != nil {
		s.sink.RecordEvent("session_created", info.ID, "", "")
	}
	s.logger.Info("session created", "session_id", info.ID)
	return info, nil
}

// GetSession returns a snapshot of a live session.
func (s *Service) GetSession(id string) (SessionInfo, error) {
	return s.store.GetSession(id)
}

// ListSessions returns snapshots of all live sessions, oldest first.
func (s *Service) ListSessions() []SessionInfo {
	return s.store.ListSessions()
}

// SessionHistory returns the session's navigation log in append order.
func (s *Service) SessionHistory(id string) ([]NavigationEvent, error) {
	return s.store.SessionHistory(id)
}

// CloseSession tears down a session and everything in it. The report lists
// tabs deregistered and any engine-side closures that failed.
func (s *Service) CloseSession(ctx context.Context, id string) (*CleanupReport, error) {
	return s.cleanup.CleanupSession(ctx, id)
}

// CreateTab opens a page inside a session's context. A non-empty initialURL
// triggers an immediate navigation whose result is returned alongside the
// tab; a failed initial navigation still leaves a usable tab.
func (s *Service) CreateTab(ctx context.Context, sessionID, initialURL string) (TabInfo, *NavResult, error) {
	if _, err := s.sup.Engine(); err != nil {
		return TabInfo{}, nil, err
	}
	bctx, err := s.store.SessionContext(sessionID)
	if err != nil {
		return TabInfo{}, nil, err
	}
	page, err := bctx.NewPage(ctx)
	if err != nil {
		return TabInfo{}, nil, s.sup.Confirm(ctx, fmt.Errorf("browserd: open page: %w", err))
	}
	info, err := s.store.CreateTab(sessionID, page)
	if err != nil {
		// Session vanished between lookup and registration.
		if cerr := page.Close(ctx); cerr != nil {
			s.logger.Warn("orphan page close failed", "error", cerr)
		}
		return TabInfo{}, nil, err
	}
	if s.sink != nil {
		s.sink.RecordEvent("tab_created", sessionID, info.ID, "")
	}

	var navRes *NavResult
	if initialURL != "" {
		navRes, err = s.nav.Navigate(ctx, info.ID, initialURL)
		if err != nil {
			// The tab is registered and usable; the caller decides what
			// to do with the failed initial load.
			return info, nil, err
		}
		if refreshed, gerr := s.store.GetTab(info.ID); gerr == nil {
			info = refreshed
		}
	}
	return info, navRes, nil
}

// GetTabInfo returns a snapshot of a live tab.
func (s *Service) GetTabInfo(id string) (TabInfo, error) {
	return s.store.GetTab(id)
}

// UpdateTab changes a tab's pinned flag and/or group. Nil leaves a field
// untouched.
func (s *Service) UpdateTab(id string, pinned *bool, groupID *string) (TabInfo, error) {
	return s.store.UpdateTab(id, pinned, groupID)
}

// CloseTab closes the underlying page and removes the tab. The cleanup
// coordinator records the tab_closed event.
func (s *Service) CloseTab(ctx context.Context, id string) error {
	return s.cleanup.CleanupTab(ctx, id)
}

// Navigate drives a tab to url.
func (s *Service) Navigate(ctx context.Context, tabID, url string) (*NavResult, error) {
	return s.nav.Navigate(ctx, tabID, url)
}

// Back navigates to the tab's previous history entry, if any.
func (s *Service) Back(ctx context.Context, tabID string) (*NavResult, error) {
	return s.nav.Back(ctx, tabID)
}

// Forward navigates to the tab's next history entry, if any.
func (s *Service) Forward(ctx context.Context, tabID string) (*NavResult, error) {
	return s.nav.Forward(ctx, tabID)
}

// Reload re-navigates the tab's current document.
func (s *Service) Reload(ctx context.Context, tabID string) (*NavResult, error) {
	return s.nav.Reload(ctx, tabID)
}

// GetContent captures the tab's document in the requested format.
func (s *Service) GetContent(ctx context.Context, tabID string, format Format) (*Snapshot, error) {
	return s.content.Content(ctx, tabID, format)
}

// Evaluate runs a script expression in the tab. Script exceptions come back
// as error-status results; the tab stays usable.
func (s *Service) Evaluate(ctx context.Context, tabID, expr string) (*EvalResult, error) {
	return s.content.Evaluate(ctx, tabID, expr)
}

// Screenshot captures the tab's viewport, or the full page.
func (s *Service) Screenshot(ctx context.Context, tabID string, fullPage bool) (*ShotResult, error) {
	return s.content.Screenshot(ctx, tabID, fullPage)
}

// PDF exports the tab's document as a validated PDF.
func (s *Service) PDF(ctx context.Context, tabID string) (*PDFResult, error) {
	return s.content.PDF(ctx, tabID)
}

// RunSteps executes an automation sequence against one tab, stopping at the
// first failing step.
func (s *Service) RunSteps(ctx context.Context, tabID string, seq []Step) ([]StepResult, error) {
	return s.steps.Run(ctx, tabID, seq)
}

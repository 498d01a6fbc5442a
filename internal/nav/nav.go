// Package nav drives the per-tab navigation state machine against the
// engine: navigate, reload, and history back/forward. Engine failures and
// timeouts become structured results, never faults that could take down
// sibling tabs.
package nav

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/quarev/browserd/internal/engine"
	"github.com/quarev/browserd/internal/track"
)

// Status of a navigation outcome.
type Status string

const (
	StatusLoaded    Status = "loaded"
	StatusFailed    Status = "failed"
	StatusNoHistory Status = "no_history"
)

// Error kinds carried by failed results.
const (
	KindNavigationTimeout = "navigation_timeout"
	KindNavigationFailed  = "navigation_failed"
)

// Result is the structured outcome of a navigation operation.
type Result struct {
	TabID     string `json:"tab_id"`
	URL       string `json:"url,omitempty"`
	Title     string `json:"title,omitempty"`
	Status    Status `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Recorder receives successful navigations, e.g. for optional history
// persistence. Implementations must not block.
type Recorder interface {
	RecordNavigation(sessionID, tabID, url, title string)
}

// Controller executes navigations on tabs tracked by the store.
type Controller struct {
	store    *track.Store
	sup      *engine.Supervisor
	timeout  time.Duration
	recorder Recorder
	logger   *slog.Logger
}

// NewController creates a Controller. timeout bounds every load-completion
// wait; recorder may be nil.
func NewController(store *track.Store, sup *engine.Supervisor, timeout time.Duration, recorder Recorder, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Controller{store: store, sup: sup, timeout: timeout, recorder: recorder, logger: logger}
}

// Navigate drives a tab to url. The tab moves Idle|Loaded|Failed ->
// Navigating, then Loaded on load completion within the timeout or Failed
// on timeout/engine error. Exactly one NavigationEvent is appended per
// transition into Loaded.
func (c *Controller) Navigate(ctx context.Context, tabID, url string) (*Result, error) {
	if _, err := c.sup.Engine(); err != nil {
		return nil, err
	}
	h, err := c.store.BeginNavigation(tabID)
	if err != nil {
		return nil, err
	}
	return c.drive(ctx, h, url, func(navCtx context.Context) error {
		return h.Page.Goto(navCtx, url)
	})
}

// Reload re-navigates the tab's current document through the same state
// machine as Navigate.
func (c *Controller) Reload(ctx context.Context, tabID string) (*Result, error) {
	if _, err := c.sup.Engine(); err != nil {
		return nil, err
	}
	h, err := c.store.BeginNavigation(tabID)
	if err != nil {
		return nil, err
	}
	return c.drive(ctx, h, h.URL, func(navCtx context.Context) error {
		return h.Page.Reload(navCtx)
	})
}

// Back navigates to the prior history entry for this tab. When none
// exists the result reports no_history with a nil error.
func (c *Controller) Back(ctx context.Context, tabID string) (*Result, error) {
	return c.history(ctx, tabID, track.DirBack)
}

// Forward navigates to the next history entry for this tab.
func (c *Controller) Forward(ctx context.Context, tabID string) (*Result, error) {
	return c.history(ctx, tabID, track.DirForward)
}

func (c *Controller) history(ctx context.Context, tabID string, dir track.Direction) (*Result, error) {
	if _, err := c.sup.Engine(); err != nil {
		return nil, err
	}
	h, ev, idx, err := c.store.BeginHistoryNavigation(tabID, dir)
	if errors.Is(err, track.ErrNoHistory) {
		return &Result{TabID: tabID, Status: StatusNoHistory}, nil
	}
	if err != nil {
		return nil, err
	}

	navCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := h.Page.Goto(navCtx, ev.URL); err != nil {
		return c.fail(ctx, h, ev.URL, err)
	}

	title := ev.Title
	if info, infoErr := h.Page.Info(ctx); infoErr == nil {
		title = info.Title
	}
	if !c.store.RepositionNavigation(tabID, idx, ev.URL, title) {
		return nil, track.ErrTabNotFound
	}
	return &Result{TabID: tabID, URL: ev.URL, Title: title, Status: StatusLoaded}, nil
}

// drive runs one armed navigation to completion. The gate is already held;
// every exit path releases it via Complete/Fail, except when the tab was
// closed mid-flight, in which case the outcome is deliberately dropped.
func (c *Controller) drive(ctx context.Context, h track.NavHandle, url string, do func(context.Context) error) (*Result, error) {
	navCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := do(navCtx); err != nil {
		return c.fail(ctx, h, url, err)
	}

	title := ""
	if info, infoErr := h.Page.Info(ctx); infoErr == nil {
		title = info.Title
		if info.URL != "" {
			url = info.URL
		}
	}

	if !c.store.CompleteNavigation(h.TabID, url, title) {
		return nil, track.ErrTabNotFound
	}
	if c.recorder != nil {
		c.recorder.RecordNavigation(h.SessionID, h.TabID, url, title)
	}
	return &Result{TabID: h.TabID, URL: url, Title: title, Status: StatusLoaded}, nil
}

func (c *Controller) fail(ctx context.Context, h track.NavHandle, url string, navErr error) (*Result, error) {
	c.store.FailNavigation(h.TabID)

	// A dead engine surfaces as EngineUnavailable, not as a per-tab failure.
	if err := c.sup.Confirm(ctx, navErr); errors.Is(err, engine.ErrUnavailable) {
		return nil, err
	}

	kind := KindNavigationFailed
	if errors.Is(navErr, context.DeadlineExceeded) {
		kind = KindNavigationTimeout
	}
	c.logger.Warn("nav: navigation failed", "tab", h.TabID, "url", url, "kind", kind, "error", navErr)
	return &Result{
		TabID:     h.TabID,
		URL:       url,
		Status:    StatusFailed,
		ErrorKind: kind,
		Error:     navErr.Error(),
	}, nil
}

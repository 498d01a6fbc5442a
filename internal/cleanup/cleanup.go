// Package cleanup tears down tabs, sessions, or every session at once, with
// best-effort resource release: individual engine-side failures are
// collected and reported, but bookkeeping entries are always removed so the
// registries never retain references to resources the engine has already
// discarded.
package cleanup

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quarev/browserd/internal/engine"
	"github.com/quarev/browserd/internal/track"
)

// Failure itemizes one engine-side release that errored during teardown.
type Failure struct {
	SessionID string `json:"session_id,omitempty"`
	TabID     string `json:"tab_id,omitempty"`
	Stage     string `json:"stage"` // "close_page" or "close_context"
	Error     string `json:"error"`
}

// Report summarizes one session teardown: which tabs were deregistered and
// which engine-side closures failed along the way.
type Report struct {
	SessionID  string    `json:"session_id"`
	ClosedTabs []string  `json:"closed_tabs"`
	Failures   []Failure `json:"failures,omitempty"`
}

// Recorder receives teardown lifecycle events for optional persistence.
type Recorder interface {
	RecordEvent(kind, sessionID, tabID, detail string)
}

// Coordinator executes teardown against the store. It deliberately favors
// completeness of deregistration over strict error propagation.
type Coordinator struct {
	store    *track.Store
	timeout  time.Duration
	recorder Recorder
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator. timeout bounds each engine-side
// close so teardown can proceed even when in-flight operations never
// report back; recorder may be nil.
func NewCoordinator(store *track.Store, timeout time.Duration, recorder Recorder, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Coordinator{store: store, timeout: timeout, recorder: recorder, logger: logger}
}

// CleanupTab closes a single tab: the underlying page is closed best-effort
// and the tab is always deregistered. Unknown ids are an explicit error on
// this direct path.
func (c *Coordinator) CleanupTab(ctx context.Context, tabID string) error {
	page, err := c.store.RemoveTab(tabID)
	if err != nil {
		return err
	}

	closeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := page.Close(closeCtx); err != nil {
		// Bookkeeping is already gone; the page is the engine's problem now.
		c.logger.Warn("cleanup: close page failed", "tab", tabID, "error", err)
	}
	if c.recorder != nil {
		c.recorder.RecordEvent("tab_closed", "", tabID, "")
	}
	return nil
}

// CleanupSession closes every tab owned by the session, then releases the
// underlying engine context, then marks the session Closed and deregisters
// it. Individual closures may fail; their failures are itemized in the
// report while deregistration always completes.
func (c *Coordinator) CleanupSession(ctx context.Context, sessionID string) (*Report, error) {
	tabIDs, bctx, err := c.store.MarkClosing(sessionID)
	if err != nil {
		return nil, err
	}
	report := c.teardown(ctx, sessionID, tabIDs, bctx)
	return report, nil
}

// CleanupAll tears down every live session in parallel and returns the
// per-session reports. Tolerant end to end: missing entries and failing
// closures never stop the sweep, and the registries end empty.
func (c *Coordinator) CleanupAll(ctx context.Context) []*Report {
	ids := c.store.SessionIDs()
	sort.Strings(ids)

	var (
		mu      sync.Mutex
		reports []*Report
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error {
			report, err := c.CleanupSession(gctx, id)
			if err != nil {
				// Session vanished out from under the sweep; nothing to release.
				return nil
			}
			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(reports, func(i, j int) bool { return reports[i].SessionID < reports[j].SessionID })
	return reports
}

func (c *Coordinator) teardown(ctx context.Context, sessionID string, tabIDs []string, bctx engine.Context) *Report {
	report := &Report{SessionID: sessionID, ClosedTabs: make([]string, 0, len(tabIDs))}

	for _, tabID := range tabIDs {
		page, err := c.store.RemoveTab(tabID)
		if err != nil {
			// Already gone; deregistration is what matters.
			continue
		}
		closeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err = page.Close(closeCtx)
		cancel()
		if err != nil {
			report.Failures = append(report.Failures, Failure{
				SessionID: sessionID, TabID: tabID, Stage: "close_page", Error: err.Error(),
			})
			c.logger.Warn("cleanup: close page failed", "session", sessionID, "tab", tabID, "error", err)
		}
		report.ClosedTabs = append(report.ClosedTabs, tabID)
	}

	if bctx != nil {
		closeCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := bctx.Close(closeCtx)
		cancel()
		if err != nil {
			report.Failures = append(report.Failures, Failure{
				SessionID: sessionID, Stage: "close_context", Error: err.Error(),
			})
			c.logger.Warn("cleanup: close context failed", "session", sessionID, "error", err)
		}
	}

	c.store.RemoveSession(sessionID)
	if c.recorder != nil {
		c.recorder.RecordEvent("session_closed", sessionID, "", "")
	}
	return report
}

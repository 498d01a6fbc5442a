// Package steps executes a short sequence of automation steps against one
// tab. Step kinds form a closed set dispatched exhaustively: adding a kind
// is a compile-time decision, never a stringly-typed fallthrough.
package steps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quarev/browserd/internal/content"
	"github.com/quarev/browserd/internal/engine"
	"github.com/quarev/browserd/internal/nav"
	"github.com/quarev/browserd/internal/track"
)

// Kind is the closed set of step kinds.
type Kind string

const (
	KindNavigate Kind = "navigate"
	KindClick    Kind = "click"
	KindFill     Kind = "fill"
	KindWait     Kind = "wait"
	KindExtract  Kind = "extract"
)

// Step is one tagged automation instruction.
type Step struct {
	Kind     Kind           `json:"kind"`
	URL      string         `json:"url,omitempty"`      // navigate
	Selector string         `json:"selector,omitempty"` // click, fill, wait
	Value    string         `json:"value,omitempty"`    // fill
	Format   content.Format `json:"format,omitempty"`   // extract
}

// Validate rejects malformed steps before any engine call is made.
func (s Step) Validate() error {
	switch s.Kind {
	case KindNavigate:
		if s.URL == "" {
			return fmt.Errorf("steps: navigate requires url")
		}
	case KindClick, KindWait:
		if s.Selector == "" {
			return fmt.Errorf("steps: %s requires selector", s.Kind)
		}
	case KindFill:
		if s.Selector == "" || s.Value == "" {
			return fmt.Errorf("steps: fill requires selector and value")
		}
	case KindExtract:
	default:
		return fmt.Errorf("steps: unknown kind %q", s.Kind)
	}
	return nil
}

// Result is the outcome of one executed step.
type Result struct {
	Kind      Kind              `json:"kind"`
	Status    string            `json:"status"` // "ok", "error", "skipped"
	Error     string            `json:"error,omitempty"`
	Nav       *nav.Result       `json:"nav,omitempty"`
	Extracted *content.Snapshot `json:"extracted,omitempty"`
}

// Runner executes validated step sequences.
type Runner struct {
	store     *track.Store
	sup       *engine.Supervisor
	nav       *nav.Controller
	extractor *content.Extractor
	timeout   time.Duration
	logger    *slog.Logger
}

// NewRunner creates a Runner. timeout bounds each click/fill/wait call.
func NewRunner(store *track.Store, sup *engine.Supervisor, navc *nav.Controller, extractor *content.Extractor, timeout time.Duration, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Runner{store: store, sup: sup, nav: navc, extractor: extractor, timeout: timeout, logger: logger}
}

// Run validates the whole sequence, then executes it step by step against
// the tab, stopping at the first failure. Remaining steps are reported as
// skipped so callers see exactly where the sequence broke.
func (r *Runner) Run(ctx context.Context, tabID string, seq []Step) ([]Result, error) {
	for i, s := range seq {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}
	if _, err := r.sup.Engine(); err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(seq))
	failed := false
	for _, s := range seq {
		if failed {
			results = append(results, Result{Kind: s.Kind, Status: "skipped"})
			continue
		}
		res := r.run(ctx, tabID, s)
		if res.Status == "error" {
			failed = true
		}
		results = append(results, res)
	}
	return results, nil
}

// run dispatches one step. The switch is exhaustive over Kind; Validate
// already rejected anything outside the closed set.
func (r *Runner) run(ctx context.Context, tabID string, s Step) Result {
	res := Result{Kind: s.Kind, Status: "ok"}

	switch s.Kind {
	case KindNavigate:
		navRes, err := r.nav.Navigate(ctx, tabID, s.URL)
		if err != nil {
			return Result{Kind: s.Kind, Status: "error", Error: err.Error()}
		}
		res.Nav = navRes
		if navRes.Status != nav.StatusLoaded {
			res.Status = "error"
			res.Error = navRes.Error
		}

	case KindClick:
		if err := r.onPage(ctx, tabID, func(opCtx context.Context, page engine.Page) error {
			return page.Click(opCtx, s.Selector)
		}); err != nil {
			return Result{Kind: s.Kind, Status: "error", Error: err.Error()}
		}

	case KindFill:
		if err := r.onPage(ctx, tabID, func(opCtx context.Context, page engine.Page) error {
			return page.Fill(opCtx, s.Selector, s.Value)
		}); err != nil {
			return Result{Kind: s.Kind, Status: "error", Error: err.Error()}
		}

	case KindWait:
		if err := r.onPage(ctx, tabID, func(opCtx context.Context, page engine.Page) error {
			return page.WaitVisible(opCtx, s.Selector)
		}); err != nil {
			return Result{Kind: s.Kind, Status: "error", Error: err.Error()}
		}

	case KindExtract:
		snap, err := r.extractor.Content(ctx, tabID, s.Format)
		if err != nil {
			return Result{Kind: s.Kind, Status: "error", Error: err.Error()}
		}
		res.Extracted = snap
		if snap.Status != "ok" {
			res.Status = "error"
			res.Error = snap.Error
		}
	}
	return res
}

func (r *Runner) onPage(ctx context.Context, tabID string, do func(context.Context, engine.Page) error) error {
	page, err := r.store.Page(tabID)
	if err != nil {
		return err
	}
	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return do(opCtx, page)
}

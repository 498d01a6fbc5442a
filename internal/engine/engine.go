// Package engine abstracts the external headless browser process behind a
// small capability contract: isolated browsing contexts, navigable pages,
// script evaluation, and capture. Any automation engine satisfying the
// contract is substitutable; the rod adapter is the production one.
//
// Every method crossing into the engine is asynchronous on the engine side
// and must be called with a deadline-carrying context. The Supervisor owns
// the process itself; no other component may create or destroy it.
package engine

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when the engine process is not running or not
// ready. Recovery requires an explicit re-initialize; there is no silent
// auto-restart, so systemic failures stay visible.
var ErrUnavailable = errors.New("engine: unavailable")

// ScriptError reports a script that threw or failed to compile inside the
// page. It is a structured evaluation outcome, not an engine fault: the
// page remains usable afterwards.
type ScriptError struct {
	Message string
}

func (e *ScriptError) Error() string { return "engine: script error: " + e.Message }

// PageInfo is a point-in-time view of a page's identity.
type PageInfo struct {
	URL   string
	Title string
}

// Engine is a running headless browser process.
type Engine interface {
	// NewContext creates an isolated browsing context (own cookies/storage).
	NewContext(ctx context.Context) (Context, error)
	// Ping checks process liveness with a cheap protocol round-trip.
	Ping(ctx context.Context) error
	// Close terminates the process. Only the Supervisor calls this.
	Close(ctx context.Context) error
}

// Context is an isolated browsing context grouping zero or more pages.
type Context interface {
	NewPage(ctx context.Context) (Page, error)
	Close(ctx context.Context) error
}

// Page is a single navigable page inside a Context.
type Page interface {
	// Goto navigates and waits for load completion.
	Goto(ctx context.Context, url string) error
	// Reload re-navigates the current document and waits for load.
	Reload(ctx context.Context) error
	// Eval evaluates a JavaScript expression and returns its JSON value.
	// A throwing expression yields *ScriptError.
	Eval(ctx context.Context, expr string) (any, error)
	// Screenshot captures the viewport, or the whole document when fullPage.
	Screenshot(ctx context.Context, fullPage bool) ([]byte, error)
	// PDF renders the current document to PDF bytes.
	PDF(ctx context.Context) ([]byte, error)
	// HTML returns the serialized DOM of the current document.
	HTML(ctx context.Context) (string, error)
	// Info reports the page's current URL and title.
	Info(ctx context.Context) (PageInfo, error)
	// Click resolves a CSS selector and clicks it.
	Click(ctx context.Context, selector string) error
	// Fill resolves a CSS selector and types the value into it.
	Fill(ctx context.Context, selector, value string) error
	// WaitVisible blocks until the selector resolves to a visible element.
	WaitVisible(ctx context.Context, selector string) error
	Close(ctx context.Context) error
}

// Launcher starts an engine process. Injected into the Supervisor so tests
// can substitute a fake engine for the real browser.
type Launcher func(ctx context.Context) (Engine, error)

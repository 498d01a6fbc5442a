// Package enginetest provides an in-memory fake of the engine contract so
// registry, navigation, and cleanup logic can be tested without a browser.
package enginetest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quarev/browserd/internal/engine"
)

// Engine is a fake engine. Zero value is a healthy engine with no contexts.
type Engine struct {
	mu sync.Mutex

	Contexts []*Context

	NewContextErr error
	PingErr       error
	Closed        bool
}

// Launcher returns an engine.Launcher handing out this fake.
func (e *Engine) Launcher() engine.Launcher {
	return func(context.Context) (engine.Engine, error) { return e, nil }
}

// FailingLauncher returns a Launcher that always fails with err.
func FailingLauncher(err error) engine.Launcher {
	return func(context.Context) (engine.Engine, error) { return nil, err }
}

func (e *Engine) NewContext(context.Context) (engine.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.NewContextErr != nil {
		return nil, e.NewContextErr
	}
	c := &Context{eng: e}
	e.Contexts = append(e.Contexts, c)
	return c, nil
}

func (e *Engine) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.PingErr
}

func (e *Engine) Close(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Closed = true
	return nil
}

// Context is a fake isolated browsing context.
type Context struct {
	mu  sync.Mutex
	eng *Engine

	Pages []*Page

	NewPageErr error
	// NewPageGotoErr is copied onto every page this context creates, so a
	// tab's first navigation can be made to fail.
	NewPageGotoErr error
	CloseErr       error
	Closed         bool
}

func (c *Context) NewPage(context.Context) (engine.Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.NewPageErr != nil {
		return nil, c.NewPageErr
	}
	p := &Page{GotoErr: c.NewPageGotoErr}
	c.Pages = append(c.Pages, p)
	return p, nil
}

func (c *Context) Close(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return c.CloseErr
}

// Page is a fake page. Navigation records URLs; titles default to
// "Title of <url>" unless Titles overrides them.
type Page struct {
	mu sync.Mutex

	URL         string
	Navigations []string
	Titles      map[string]string

	// GotoDelay simulates a slow load; Goto blocks for the delay or until
	// the context deadline, whichever comes first.
	GotoDelay time.Duration
	// GotoGate, when non-nil, blocks Goto until the channel is closed.
	// Used to hold a navigation in flight for busy-gate tests.
	GotoGate chan struct{}

	GotoErr   error
	ReloadErr error
	EvalFn    func(expr string) (any, error)
	ShotErr   error
	PDFData   []byte
	PDFErr    error
	Body      string
	CloseErr  error
	Closed    bool

	Clicked []string
	Filled  map[string]string
}

func (p *Page) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	gate := p.GotoGate
	delay := p.GotoDelay
	gotoErr := p.GotoErr
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if gotoErr != nil {
		return gotoErr
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return fmt.Errorf("enginetest: page closed")
	}
	p.URL = url
	p.Navigations = append(p.Navigations, url)
	return nil
}

func (p *Page) Reload(ctx context.Context) error {
	p.mu.Lock()
	reloadErr := p.ReloadErr
	url := p.URL
	p.mu.Unlock()
	if reloadErr != nil {
		return reloadErr
	}
	return p.Goto(ctx, url)
}

func (p *Page) Eval(_ context.Context, expr string) (any, error) {
	p.mu.Lock()
	fn := p.EvalFn
	p.mu.Unlock()
	if fn != nil {
		return fn(expr)
	}
	if expr == "1+1" {
		return float64(2), nil
	}
	if strings.Contains(expr, "throw") {
		return nil, &engine.ScriptError{Message: "Uncaught Error"}
	}
	return nil, nil
}

func (p *Page) Screenshot(_ context.Context, _ bool) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ShotErr != nil {
		return nil, p.ShotErr
	}
	return []byte("\x89PNG\r\n"), nil
}

func (p *Page) PDF(context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.PDFErr != nil {
		return nil, p.PDFErr
	}
	if p.PDFData != nil {
		return p.PDFData, nil
	}
	return []byte("%PDF-1.7"), nil
}

func (p *Page) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Body != "" {
		return p.Body, nil
	}
	return "<html><head><title>" + p.title(p.URL) + "</title></head><body></body></html>", nil
}

func (p *Page) Info(context.Context) (engine.PageInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return engine.PageInfo{URL: p.URL, Title: p.title(p.URL)}, nil
}

func (p *Page) title(url string) string {
	if t, ok := p.Titles[url]; ok {
		return t
	}
	if url == "" {
		return ""
	}
	return "Title of " + url
}

func (p *Page) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Clicked = append(p.Clicked, selector)
	return nil
}

func (p *Page) Fill(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Filled == nil {
		p.Filled = make(map[string]string)
	}
	p.Filled[selector] = value
	return nil
}

func (p *Page) WaitVisible(context.Context, string) error { return nil }

func (p *Page) Close(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	return p.CloseErr
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodConfig configures the rod-backed engine adapter.
type RodConfig struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Stealth applies the stealth page bootstrap to every new page.
	Stealth bool
}

// RodLauncher returns a Launcher that starts (or connects to) Chrome via
// rod and exposes it through the Engine contract.
func RodLauncher(cfg RodConfig, logger *slog.Logger) Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context) (Engine, error) {
		var (
			wsURL string
			lnch  *launcher.Launcher
		)

		if cfg.RemoteURL != "" {
			wsURL = cfg.RemoteURL
			logger.Info("engine: connecting to remote chrome", "url", wsURL)
		} else {
			l := launcher.New().
				Headless(true).
				Set("disable-blink-features", "AutomationControlled")
			u, err := l.Launch()
			if err != nil {
				return nil, fmt.Errorf("engine: launch chrome: %w", err)
			}
			wsURL = u
			lnch = l
			logger.Info("engine: launched local chrome", "url", wsURL)
		}

		b := rod.New().ControlURL(wsURL)
		if err := b.Connect(); err != nil {
			if lnch != nil {
				lnch.Cleanup()
			}
			return nil, fmt.Errorf("engine: connect: %w", err)
		}

		if err := b.IgnoreCertErrors(true); err != nil {
			logger.Warn("engine: ignore cert errors failed", "error", err)
		}

		return &rodEngine{browser: b, lnch: lnch, stealth: cfg.Stealth, logger: logger}, nil
	}
}

type rodEngine struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	stealth bool
	logger  *slog.Logger
}

func (e *rodEngine) NewContext(ctx context.Context) (Context, error) {
	inc, err := e.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("engine: create context: %w", err)
	}
	return &rodContext{eng: e, browser: inc}, nil
}

func (e *rodEngine) Ping(ctx context.Context) error {
	_, err := proto.BrowserGetVersion{}.Call(e.browser.Context(ctx))
	return err
}

func (e *rodEngine) Close(context.Context) error {
	err := e.browser.Close()
	if e.lnch != nil {
		e.lnch.Cleanup()
	}
	return err
}

type rodContext struct {
	eng     *rodEngine
	browser *rod.Browser
}

func (c *rodContext) NewPage(ctx context.Context) (Page, error) {
	b := c.browser.Context(ctx)

	var (
		page *rod.Page
		err  error
	)
	if c.eng.stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		return nil, fmt.Errorf("engine: create page: %w", err)
	}
	return &rodPage{page: page}, nil
}

func (c *rodContext) Close(ctx context.Context) error {
	return proto.TargetDisposeBrowserContext{
		BrowserContextID: c.browser.BrowserContextID,
	}.Call(c.browser.Context(ctx))
}

type rodPage struct {
	page *rod.Page
}

func (p *rodPage) Goto(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("engine: navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("engine: wait load: %w", err)
	}
	return nil
}

func (p *rodPage) Reload(ctx context.Context) error {
	pg := p.page.Context(ctx)
	if err := pg.Reload(); err != nil {
		return fmt.Errorf("engine: reload: %w", err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("engine: wait load: %w", err)
	}
	return nil
}

func (p *rodPage) Eval(ctx context.Context, expr string) (any, error) {
	// Wrap as an arrow function so plain expressions evaluate uniformly.
	res, err := p.page.Context(ctx).Eval("() => (" + expr + ")")
	if err != nil {
		var evalErr *rod.EvalError
		if errors.As(err, &evalErr) {
			return nil, &ScriptError{Message: evalErr.Error()}
		}
		return nil, fmt.Errorf("engine: eval: %w", err)
	}
	return res.Value.Val(), nil
}

func (p *rodPage) Screenshot(ctx context.Context, fullPage bool) ([]byte, error) {
	data, err := p.page.Context(ctx).Screenshot(fullPage, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: screenshot: %w", err)
	}
	return data, nil
}

func (p *rodPage) PDF(ctx context.Context) ([]byte, error) {
	r, err := p.page.Context(ctx).PDF(&proto.PagePrintToPDF{})
	if err != nil {
		return nil, fmt.Errorf("engine: pdf: %w", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("engine: pdf read: %w", err)
	}
	return data, nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	html, err := p.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("engine: html: %w", err)
	}
	return html, nil
}

func (p *rodPage) Info(ctx context.Context) (PageInfo, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return PageInfo{}, fmt.Errorf("engine: page info: %w", err)
	}
	return PageInfo{URL: info.URL, Title: info.Title}, nil
}

func (p *rodPage) Click(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("engine: element %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("engine: click %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Fill(ctx context.Context, selector, value string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("engine: element %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("engine: fill %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) WaitVisible(ctx context.Context, selector string) error {
	el, err := p.page.Context(ctx).Element(selector)
	if err != nil {
		return fmt.Errorf("engine: element %s: %w", selector, err)
	}
	if err := el.WaitVisible(); err != nil {
		return fmt.Errorf("engine: wait visible %s: %w", selector, err)
	}
	return nil
}

func (p *rodPage) Close(context.Context) error {
	return p.page.Close()
}

// Package content retrieves rendered page content: point-in-time HTML in
// several formats, bounded script evaluation, screenshots, and PDF export.
// Snapshots are ephemeral; nothing here is cached or retained past the call
// that produced it.
package content

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"

	"github.com/quarev/browserd/internal/engine"
	"github.com/quarev/browserd/internal/track"
)

// Format selects the content rendering of a snapshot.
type Format string

const (
	FormatHTML      Format = "html"
	FormatSanitized Format = "sanitized"
	FormatText      Format = "text"
	FormatMarkdown  Format = "markdown"
)

// ErrBadFormat is returned for an unknown content format.
var ErrBadFormat = errors.New("content: unknown format")

// Error kinds carried by failed results.
const (
	KindScriptEvaluation = "script_evaluation_error"
	KindScreenshotFailed = "screenshot_failed"
	KindContentFailed    = "content_failed"
	KindPDFExportFailed  = "pdf_export_failed"
)

// Snapshot is a point-in-time content capture of a tab.
type Snapshot struct {
	TabID       string    `json:"tab_id"`
	RetrievedAt time.Time `json:"retrieved_at"`
	Format      Format    `json:"format"`
	Content     string    `json:"content,omitempty"`
	Title       string    `json:"title,omitempty"`
	Status      string    `json:"status"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// EvalResult is the structured outcome of a script evaluation. A throwing
// expression is an error-status result, not a fault: the tab stays usable.
type EvalResult struct {
	TabID     string `json:"tab_id"`
	Value     any    `json:"value,omitempty"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ShotResult is the structured outcome of a screenshot capture.
type ShotResult struct {
	TabID       string `json:"tab_id"`
	Data        []byte `json:"data,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	FullPage    bool   `json:"full_page"`
	Status      string `json:"status"`
	ErrorKind   string `json:"error_kind,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PDFResult is the structured outcome of a PDF export. Pages is reported
// from pdfcpu validation of the captured document.
type PDFResult struct {
	TabID     string `json:"tab_id"`
	Data      []byte `json:"data,omitempty"`
	Pages     int    `json:"pages,omitempty"`
	Status    string `json:"status"`
	ErrorKind string `json:"error_kind,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Extractor retrieves content from tabs tracked by the store.
type Extractor struct {
	store   *track.Store
	sup     *engine.Supervisor
	timeout time.Duration
	md      *converter.Converter
	ugc     *bluemonday.Policy
	logger  *slog.Logger
}

// NewExtractor creates an Extractor. timeout bounds every engine call.
func NewExtractor(store *track.Store, sup *engine.Supervisor, timeout time.Duration, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Extractor{
		store:   store,
		sup:     sup,
		timeout: timeout,
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		ugc:    bluemonday.UGCPolicy(),
		logger: logger,
	}
}

// Content returns a point-in-time snapshot of the tab's document in the
// requested format. No caching: every call hits the engine.
func (e *Extractor) Content(ctx context.Context, tabID string, format Format) (*Snapshot, error) {
	switch format {
	case "":
		format = FormatHTML
	case FormatHTML, FormatSanitized, FormatText, FormatMarkdown:
	default:
		return nil, ErrBadFormat
	}

	page, err := e.page(tabID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	html, err := page.HTML(opCtx)
	if err != nil {
		if supErr := e.sup.Confirm(ctx, err); errors.Is(supErr, engine.ErrUnavailable) {
			return nil, supErr
		}
		return &Snapshot{
			TabID: tabID, RetrievedAt: time.Now(), Format: format,
			Status: "error", ErrorKind: KindContentFailed, Error: err.Error(),
		}, nil
	}

	snap := &Snapshot{
		TabID:       tabID,
		RetrievedAt: time.Now(),
		Format:      format,
		Title:       htmlTitle(html),
		Status:      "ok",
	}

	switch format {
	case FormatHTML:
		snap.Content = html
	case FormatSanitized:
		snap.Content = e.ugc.Sanitize(html)
	case FormatText:
		snap.Content = htmlToText(html)
	case FormatMarkdown:
		md, convErr := e.md.ConvertString(html)
		if convErr != nil {
			snap.Status = "error"
			snap.ErrorKind = KindContentFailed
			snap.Error = convErr.Error()
			return snap, nil
		}
		snap.Content = md
	}
	return snap, nil
}

// Evaluate runs a JavaScript expression on the tab under a bounded timeout.
// A throwing or invalid expression yields a script_evaluation_error result
// rather than an engine fault; the tab remains usable afterward.
func (e *Extractor) Evaluate(ctx context.Context, tabID, expr string) (*EvalResult, error) {
	page, err := e.page(tabID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	val, err := page.Eval(opCtx, expr)
	if err != nil {
		var scriptErr *engine.ScriptError
		if errors.As(err, &scriptErr) || errors.Is(err, context.DeadlineExceeded) {
			return &EvalResult{
				TabID: tabID, Status: "error",
				ErrorKind: KindScriptEvaluation, Error: err.Error(),
			}, nil
		}
		if supErr := e.sup.Confirm(ctx, err); errors.Is(supErr, engine.ErrUnavailable) {
			return nil, supErr
		}
		return &EvalResult{
			TabID: tabID, Status: "error",
			ErrorKind: KindScriptEvaluation, Error: err.Error(),
		}, nil
	}
	return &EvalResult{TabID: tabID, Value: val, Status: "ok"}, nil
}

// Screenshot captures the tab as PNG, full document when fullPage.
func (e *Extractor) Screenshot(ctx context.Context, tabID string, fullPage bool) (*ShotResult, error) {
	page, err := e.page(tabID)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	data, err := page.Screenshot(opCtx, fullPage)
	if err != nil {
		if supErr := e.sup.Confirm(ctx, err); errors.Is(supErr, engine.ErrUnavailable) {
			return nil, supErr
		}
		return &ShotResult{
			TabID: tabID, FullPage: fullPage, Status: "error",
			ErrorKind: KindScreenshotFailed, Error: err.Error(),
		}, nil
	}
	return &ShotResult{
		TabID:       tabID,
		Data:        data,
		ContentType: "image/png",
		FullPage:    fullPage,
		Status:      "ok",
	}, nil
}

func (e *Extractor) page(tabID string) (engine.Page, error) {
	if _, err := e.sup.Engine(); err != nil {
		return nil, err
	}
	return e.store.Page(tabID)
}

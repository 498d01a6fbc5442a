package content

import (
	"bytes"
	"context"
	"errors"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/quarev/browserd/internal/engine"
)

// PDF renders the tab's current document to PDF and validates the capture
// with pdfcpu, reporting the page count. An unparseable capture is a
// structured failure, not a fault.
func (e *Extractor) PDF(ctx context.Context, tabID string) (*PDFResult, error) {
	page, err := e.page(tabID)
	if err != nil {
		return nil, err
	}

	// PDF rendering of a heavy document takes longer than a plain capture.
	opCtx, cancel := context.WithTimeout(ctx, 2*e.timeout)
	defer cancel()

	data, err := page.PDF(opCtx)
	if err != nil {
		if supErr := e.sup.Confirm(ctx, err); errors.Is(supErr, engine.ErrUnavailable) {
			return nil, supErr
		}
		return &PDFResult{
			TabID: tabID, Status: "error",
			ErrorKind: KindPDFExportFailed, Error: err.Error(),
		}, nil
	}

	pages, err := pdfPageCount(data)
	if err != nil {
		return &PDFResult{
			TabID: tabID, Status: "error",
			ErrorKind: KindPDFExportFailed, Error: err.Error(),
		}, nil
	}

	return &PDFResult{TabID: tabID, Data: data, Pages: pages, Status: "ok"}, nil
}

func pdfPageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return 0, err
	}
	return pdfCtx.PageCount, nil
}

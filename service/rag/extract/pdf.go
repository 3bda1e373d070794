package extract

import (
	"bytes"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

type PDFExtractor struct{}

func (e *PDFExtractor) CanExtract(ext string) bool {
	return ext == "pdf"
}

// Extract pulls text page by page and joins pages with newlines. Pages that
// fail to parse are skipped so one broken page does not lose the document.
func (e *PDFExtractor) Extract(data []byte) (text string) {
	// The pdf parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("pdf extraction panicked", "reason", r)
			text = ""
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		slog.Warn("failed to open pdf", "err", err)
		return ""
	}

	var pages []string
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		content, err := page.GetPlainText(nil)
		if err != nil {
			slog.Debug("skipping unreadable pdf page", "page", i, "err", err)
			continue
		}
		pages = append(pages, content)
	}

	return strings.Join(pages, "\n")
}

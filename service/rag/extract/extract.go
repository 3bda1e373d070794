// Package extract converts raw file bytes into normalized text.
package extract

import (
	"path/filepath"
	"strings"
)

// Extractor converts one file format into plain text.
type Extractor interface {
	// CanExtract reports whether the extension (without dot) is supported.
	CanExtract(ext string) bool

	// Extract is best-effort: malformed input yields partial or empty text,
	// never an error.
	Extract(data []byte) string
}

var registry = []Extractor{
	&PDFExtractor{},
	&DOCXExtractor{},
}

// Extract dispatches on the file extension. Unknown extensions fall back to
// a best-effort text decode. An empty result means no text could be
// extracted at all.
func Extract(data []byte, fileName string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), ".")
	for _, e := range registry {
		if e.CanExtract(ext) {
			return e.Extract(data)
		}
	}
	return decodeText(data)
}

// decodeText drops invalid UTF-8 sequences instead of failing.
func decodeText(data []byte) string {
	return strings.ToValidUTF8(string(data), "")
}

// Package extract converts raw documents into plain text by declared media
// type. Supported classes: PDF, Word (docx), and generic text.
package extract

import (
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/ciudadano-digital/civica/engine/domain"
)

const (
	mimePDF  = "application/pdf"
	mimeDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	mimeDoc  = "application/msword"
)

// Extractor converts document files into plain text.
type Extractor struct {
	logger *slog.Logger
}

// New creates an Extractor.
func New(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract reads the file and returns its plain text. mediaType may be empty,
// in which case it is guessed from the file extension. Unknown media types
// fail with domain.ErrUnsupportedFormat.
func (e *Extractor) Extract(path, mediaType string) (string, error) {
	if mediaType == "" {
		mediaType = mime.TypeByExtension(filepath.Ext(path))
	}
	// Strip parameters such as "; charset=utf-8".
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}

	switch {
	case mediaType == mimePDF:
		return e.extractPDF(path)
	case mediaType == mimeDocx || mediaType == mimeDoc:
		return e.extractDocx(path)
	case strings.HasPrefix(mediaType, "text/"):
		return e.extractText(path)
	default:
		return "", fmt.Errorf("extract: %s (media type %q): %w", path, mediaType, domain.ErrUnsupportedFormat)
	}
}

// extractPDF concatenates page text in page order.
func (e *Extractor) extractPDF(path string) (string, error) {
	if err := pdfapi.ValidateFile(path, nil); err != nil {
		return "", fmt.Errorf("extract: invalid pdf %s: %w", path, err)
	}

	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("extract: open pdf %s: %w", path, err)
	}
	defer f.Close()

	var b strings.Builder
	pages := r.NumPage()
	for i := 1; i <= pages; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			e.logger.Warn("extract: skipping unreadable pdf page", "path", path, "page", i, "err", err)
			continue
		}
		b.WriteString(text)
		b.WriteByte('\n')
	}

	e.logger.Info("extract: pdf done", "path", path, "pages", pages, "chars", b.Len())
	return b.String(), nil
}

// extractText reads the file as UTF-8, replacing invalid bytes instead of
// failing.
func (e *Extractor) extractText(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("extract: read %s: %w", path, err)
	}
	return strings.ToValidUTF8(string(raw), "�"), nil
}

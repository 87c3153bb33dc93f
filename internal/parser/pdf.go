package parser

import (
	"bytes"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

var pdfMagic = []byte("%PDF")

func parsePDF(data []byte) (*Content, error) {
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), pdfMagic) {
		return nil, fmt.Errorf("%w: missing PDF header", ErrCorrupt)
	}

	reader, err := newPDFReader(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	pages := reader.NumPage()
	if pages == 0 {
		return nil, fmt.Errorf("%w: PDF contains no pages", ErrCorrupt)
	}

	content := &Content{Pages: pages}
	total := 0
	for i := 1; i <= pages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page is tolerated; the document fails only
			// if nothing at all is extractable.
			slog.Warn("failed to extract page text", "page", i, "error", err)
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		content.Spans = append(content.Spans, Span{Text: text, Page: i})
		total += len(text)
	}

	if total == 0 {
		return nil, ErrNoText
	}

	extractPDFMetadata(reader, content)
	return content, nil
}

// newPDFReader wraps pdf.NewReader so a malformed xref table surfaces as an
// error instead of a panic.
func newPDFReader(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r = nil
			err = fmt.Errorf("pdf reader panic: %v", rec)
		}
	}()
	return pdf.NewReader(bytes.NewReader(data), int64(len(data)))
}

func extractPDFMetadata(reader *pdf.Reader, content *Content) {
	defer func() {
		// Metadata is best-effort; a broken Info dictionary never fails parsing.
		if rec := recover(); rec != nil {
			slog.Warn("failed to extract pdf metadata", "error", rec)
		}
	}()

	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return
	}
	content.Title = info.Key("Title").Text()
	content.Author = info.Key("Author").Text()
}

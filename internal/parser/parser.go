package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrParse is the base error for every parsing failure. Callers should match
// with errors.Is(err, ErrParse) when they only care that ingestion of the
// document cannot proceed.
var ErrParse = errors.New("document parse failed")

var (
	ErrEmpty       = fmt.Errorf("%w: empty file", ErrParse)
	ErrUnsupported = fmt.Errorf("%w: unsupported file type", ErrParse)
	ErrCorrupt     = fmt.Errorf("%w: corrupt file", ErrParse)
	ErrNoText      = fmt.Errorf("%w: no extractable text", ErrParse)
)

// Span is a run of extracted text and the page it came from. Pages are
// 1-based. Image-only pages produce no span; that alone is not an error.
type Span struct {
	Text string
	Page int
}

// Content is the parser output for one document.
type Content struct {
	Spans  []Span
	Pages  int
	Title  string
	Author string
}

// Text concatenates all spans separated by double newlines, mirroring how
// the chunker will see the document.
func (c *Content) Text() string {
	parts := make([]string, 0, len(c.Spans))
	for _, s := range c.Spans {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Parse extracts plain text with page positions from raw document bytes.
// Pure transformation: nothing is retained after return. A document whose
// pages yield zero extractable characters in total fails with ErrNoText.
func Parse(data []byte, filename string) (*Content, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".pdf":
		return parsePDF(data)
	case ".txt", ".md":
		return parseText(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, ext)
	}
}

func parseText(data []byte) (*Content, error) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, ErrNoText
	}
	return &Content{
		Spans: []Span{{Text: text, Page: 1}},
		Pages: 1,
	}, nil
}

package text

import (
	"strings"
	"unicode"

	"docchat/internal/parser"
)

// Chunk is a bounded passage of document text, the unit of embedding and
// retrieval. Start and End are rune offsets into the concatenated document
// text (parser.Content.Text), so adjacent chunks overlap by design.
type Chunk struct {
	Seq   int
	Text  string
	Start int
	End   int
	Page  int
}

// Chunker splits parsed document text into overlapping, size-bounded chunks.
// Size is the maximum chunk length in runes; Overlap is the fraction of Size
// the next chunk rewinds past the previous cut point.
type Chunker struct {
	size    int
	overlap float64
}

func NewChunker(size int, overlap float64) *Chunker {
	if size <= 0 {
		size = 1400
	}
	if overlap < 0 || overlap >= 1 {
		overlap = 0
	}
	return &Chunker{size: size, overlap: overlap}
}

type pageMark struct {
	offset int
	page   int
}

// Chunk produces an ordered sequence of chunks covering the whole document.
// Identical spans and parameters always yield identical boundaries.
func (c *Chunker) Chunk(spans []parser.Span) []Chunk {
	var sb strings.Builder
	var marks []pageMark
	offset := 0
	for i, s := range spans {
		if i > 0 {
			sb.WriteString("\n\n")
			offset += 2
		}
		marks = append(marks, pageMark{offset: offset, page: s.Page})
		offset += len([]rune(s.Text))
		sb.WriteString(s.Text)
	}

	runes := []rune(sb.String())
	if len(runes) == 0 {
		return nil
	}

	back := int(float64(c.size) * c.overlap)

	var chunks []Chunk
	start := 0
	seq := 0
	for start < len(runes) {
		end := start + c.size
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = start + cutPoint(runes[start:end])
		}

		chunks = append(chunks, Chunk{
			Seq:   seq,
			Text:  string(runes[start:end]),
			Start: start,
			End:   end,
			Page:  pageAt(marks, start),
		})
		seq++

		if end == len(runes) {
			break
		}
		next := end - back
		if next <= start {
			// Overlap would stall on a short cut; advance without it.
			next = end
		}
		start = next
	}

	return chunks
}

// cutPoint returns the length of the prefix of window to keep, preferring a
// sentence end, then any whitespace, then a hard cut at the size bound so a
// single oversized sentence can never loop forever.
func cutPoint(window []rune) int {
	if n := lastSentenceEnd(window); n > 0 {
		return n
	}
	if n := lastWhitespace(window); n > 0 {
		return n
	}
	return len(window)
}

func lastSentenceEnd(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		r := window[i]
		if r == '\n' {
			return i + 1
		}
		if r == '.' || r == '!' || r == '?' {
			// Only treat it as a sentence end when followed by whitespace or
			// the window edge, so "3.14" stays intact.
			if i == len(window)-1 || unicode.IsSpace(window[i+1]) {
				return i + 1
			}
		}
	}
	return 0
}

func lastWhitespace(window []rune) int {
	for i := len(window) - 1; i > 0; i-- {
		if unicode.IsSpace(window[i]) {
			return i + 1
		}
	}
	return 0
}

func pageAt(marks []pageMark, offset int) int {
	page := 1
	for _, m := range marks {
		if m.offset > offset {
			break
		}
		page = m.page
	}
	return page
}

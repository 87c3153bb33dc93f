package text

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"docchat/internal/parser"
)

func span(page int, text string) parser.Span {
	return parser.Span{Page: page, Text: text}
}

func TestChunk_SingleChunk(t *testing.T) {
	c := NewChunker(100, 0.15)
	chunks := c.Chunk([]parser.Span{span(1, "A short document.")})

	assert.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].Seq)
	assert.Equal(t, "A short document.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len([]rune("A short document.")), chunks[0].End)
	assert.Equal(t, 1, chunks[0].Page)
}

func TestChunk_Empty(t *testing.T) {
	c := NewChunker(100, 0)
	assert.Nil(t, c.Chunk(nil))
	assert.Nil(t, c.Chunk([]parser.Span{}))
}

func TestChunk_Coverage(t *testing.T) {
	// Every rune of the document must land in at least one chunk.
	var sb strings.Builder
	for i := 0; i < 60; i++ {
		sb.WriteString("The quick brown fox jumps over the lazy dog. ")
	}
	text := sb.String()

	c := NewChunker(120, 0.2)
	chunks := c.Chunk([]parser.Span{span(1, text)})
	assert.True(t, len(chunks) > 1)

	runes := []rune(text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(runes), chunks[len(chunks)-1].End)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Seq)
		assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text)
		assert.True(t, ch.End-ch.Start <= 120, "chunk exceeds size bound")
		if i > 0 {
			// No gap between consecutive chunks.
			assert.True(t, ch.Start <= chunks[i-1].End, "gap between chunk %d and %d", i-1, i)
			assert.True(t, ch.Start > chunks[i-1].Start, "chunker did not advance")
		}
	}
}

func TestChunk_Deterministic(t *testing.T) {
	spans := []parser.Span{
		span(1, strings.Repeat("Sentence one. Sentence two! Sentence three? ", 30)),
		span(2, strings.Repeat("Another page of text with words. ", 20)),
	}

	c := NewChunker(150, 0.15)
	a := c.Chunk(spans)
	b := c.Chunk(spans)
	assert.Equal(t, a, b)
}

func TestChunk_PrefersSentenceBoundary(t *testing.T) {
	text := "First sentence here. Second sentence follows with more words than fit."
	c := NewChunker(30, 0)
	chunks := c.Chunk([]parser.Span{span(1, text)})

	assert.True(t, len(chunks) >= 2)
	assert.Equal(t, "First sentence here.", chunks[0].Text)
}

func TestChunk_DecimalNotASentenceEnd(t *testing.T) {
	text := "The value of pi is 3.14159 which goes on and on forever and ever."
	c := NewChunker(30, 0)
	chunks := c.Chunk([]parser.Span{span(1, text)})

	for _, ch := range chunks {
		assert.NotEqual(t, "3.", ch.Text[len(ch.Text)-2:], "cut inside a number")
	}
}

func TestChunk_HardCutWithoutWhitespace(t *testing.T) {
	// A single unbroken token longer than the size bound must still chunk.
	text := strings.Repeat("x", 350)
	c := NewChunker(100, 0.5)
	chunks := c.Chunk([]parser.Span{span(1, text)})

	assert.Len(t, chunks, 6)
	for i, ch := range chunks {
		assert.Equal(t, 100, len(ch.Text), "chunk %d", i)
	}
}

func TestChunk_PageAttribution(t *testing.T) {
	spans := []parser.Span{
		span(1, "Page one content about apples."),
		span(2, "Page two content about bananas."),
		span(3, "Page three content about cherries."),
	}

	c := NewChunker(32, 0)
	chunks := c.Chunk(spans)

	pageFor := func(substr string) int {
		for _, ch := range chunks {
			if strings.Contains(ch.Text, substr) {
				return ch.Page
			}
		}
		return -1
	}

	assert.Equal(t, 1, pageFor("apples"))
	assert.Equal(t, 2, pageFor("bananas"))
	assert.Equal(t, 3, pageFor("cherries"))
}

func TestChunk_OverlapRewinds(t *testing.T) {
	var sb strings.Builder
	for i := 0; i < 40; i++ {
		sb.WriteString("Words fill the page steadily. ")
	}

	c := NewChunker(100, 0.3)
	chunks := c.Chunk([]parser.Span{span(1, sb.String())})

	assert.True(t, len(chunks) > 2)
	overlapped := false
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Start < chunks[i-1].End {
			overlapped = true
		}
	}
	assert.True(t, overlapped, "expected at least one overlapping boundary")
}

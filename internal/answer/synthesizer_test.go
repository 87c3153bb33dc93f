package answer

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docchat/internal/retrieval"
	"docchat/internal/session"
	"docchat/internal/vector"
)

// sliceStream yields fragments in order, then failErr or io.EOF.
type sliceStream struct {
	frags   []string
	pos     int
	failErr error
}

func (s *sliceStream) Next() (string, error) {
	if s.pos < len(s.frags) {
		f := s.frags[s.pos]
		s.pos++
		return f, nil
	}
	if s.failErr != nil {
		return "", s.failErr
	}
	return "", io.EOF
}

type stubGenerator struct {
	stream    TokenStream
	streamErr error
	prompt    string
}

func (g *stubGenerator) Stream(ctx context.Context, prompt string) (TokenStream, error) {
	g.prompt = prompt
	if g.streamErr != nil {
		return nil, g.streamErr
	}
	return g.stream, nil
}

func groundedResult() retrieval.Result {
	return retrieval.Result{
		Query: "apples",
		Matches: []vector.Match{
			{Entry: vector.Entry{ChunkID: "doc1#0", DocumentID: "doc1", Page: 1, Text: "Apples are fruit."}, Score: 0.9},
			{Entry: vector.Entry{ChunkID: "doc1#3", DocumentID: "doc1", Page: 2, Text: "Apples grow on trees."}, Score: 0.8},
		},
	}
}

func collect() (func(string) error, *[]string) {
	var got []string
	return func(s string) error {
		got = append(got, s)
		return nil
	}, &got
}

func TestSynthesize_CompleteAnswerWithCitations(t *testing.T) {
	gen := &stubGenerator{stream: &sliceStream{frags: []string{"Apples are fruit ", "[S1] and grow on trees [S2]."}}}
	s := NewSynthesizer(gen)
	emit, got := collect()

	turn, err := s.Synthesize(context.Background(), "what are apples?", groundedResult(), nil, emit)
	require.NoError(t, err)
	require.NotNil(t, turn)

	assert.False(t, turn.Incomplete)
	assert.Equal(t, "what are apples?", turn.UserMessage)
	assert.Equal(t, "Apples are fruit [S1] and grow on trees [S2].", turn.AssistantMessage)
	assert.Equal(t, []string{"doc1#0", "doc1#3"}, turn.CitedChunks)
	assert.Equal(t, []string{"Apples are fruit ", "[S1] and grow on trees [S2]."}, *got)

	// The prompt carries the passages and the question.
	assert.Contains(t, gen.prompt, "[S1]")
	assert.Contains(t, gen.prompt, "Apples grow on trees.")
	assert.Contains(t, gen.prompt, "Question: what are apples?")
}

func TestSynthesize_NoMarkersCitesAllChunks(t *testing.T) {
	gen := &stubGenerator{stream: &sliceStream{frags: []string{"Apples are fruit."}}}
	s := NewSynthesizer(gen)
	emit, _ := collect()

	turn, err := s.Synthesize(context.Background(), "q", groundedResult(), nil, emit)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc1#0", "doc1#3"}, turn.CitedChunks)
}

func TestSynthesize_UngroundedStreamsFixedMessage(t *testing.T) {
	gen := &stubGenerator{streamErr: errors.New("must not be called")}
	s := NewSynthesizer(gen)
	emit, got := collect()

	turn, err := s.Synthesize(context.Background(), "q", retrieval.Result{}, nil, emit)
	require.NoError(t, err)
	assert.Equal(t, NoGroundingMessage, turn.AssistantMessage)
	assert.Empty(t, turn.CitedChunks)
	assert.False(t, turn.Incomplete)
	assert.Equal(t, []string{NoGroundingMessage}, *got)
	assert.Empty(t, gen.prompt, "model must not be invoked without grounding")
}

func TestSynthesize_FailureBeforeFirstToken(t *testing.T) {
	gen := &stubGenerator{stream: &sliceStream{failErr: errors.New("boom")}}
	s := NewSynthesizer(gen)
	emit, got := collect()

	turn, err := s.Synthesize(context.Background(), "q", groundedResult(), nil, emit)
	assert.Nil(t, turn)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Empty(t, *got)
}

func TestSynthesize_StreamSetupFailure(t *testing.T) {
	gen := &stubGenerator{streamErr: errors.New("connect refused")}
	s := NewSynthesizer(gen)
	emit, _ := collect()

	turn, err := s.Synthesize(context.Background(), "q", groundedResult(), nil, emit)
	assert.Nil(t, turn)
	assert.ErrorIs(t, err, ErrGeneration)
}

func TestSynthesize_MidStreamFailureKeepsPartial(t *testing.T) {
	cause := errors.New("stream reset")
	gen := &stubGenerator{stream: &sliceStream{frags: []string{"Apples [S1] ", "are "}, failErr: cause}}
	s := NewSynthesizer(gen)
	emit, got := collect()

	turn, err := s.Synthesize(context.Background(), "q", groundedResult(), nil, emit)
	require.NotNil(t, turn)
	assert.ErrorIs(t, err, cause)

	// Exactly the delivered text, nothing more.
	assert.Equal(t, "Apples [S1] are ", turn.AssistantMessage)
	assert.True(t, turn.Incomplete)
	assert.Equal(t, []string{"Apples [S1] ", "are "}, *got)
	// Partial turns cite only markers actually emitted.
	assert.Equal(t, []string{"doc1#0"}, turn.CitedChunks)
}

func TestSynthesize_EmitFailureStopsStream(t *testing.T) {
	gen := &stubGenerator{stream: &sliceStream{frags: []string{"one ", "two ", "three "}}}
	s := NewSynthesizer(gen)

	clientGone := errors.New("client disconnected")
	calls := 0
	emit := func(string) error {
		calls++
		if calls == 2 {
			return clientGone
		}
		return nil
	}

	turn, err := s.Synthesize(context.Background(), "q", groundedResult(), nil, emit)
	require.NotNil(t, turn)
	assert.ErrorIs(t, err, clientGone)
	assert.True(t, turn.Incomplete)
	// Fragment two failed to reach the client, so only fragment one counts.
	assert.Equal(t, "one ", turn.AssistantMessage)
	assert.Empty(t, turn.CitedChunks)
}

func TestSynthesize_ContextCancelledMidStream(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	gen := &stubGenerator{stream: &sliceStream{frags: []string{"first ", "second "}}}
	s := NewSynthesizer(gen)

	emit := func(string) error {
		cancel()
		return nil
	}

	turn, err := s.Synthesize(ctx, "q", groundedResult(), nil, emit)
	require.NotNil(t, turn)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, turn.Incomplete)
	assert.Equal(t, "first ", turn.AssistantMessage)
}

func TestExtractCitations(t *testing.T) {
	labels := map[string]string{"S1": "a", "S2": "b", "S3": "c"}

	t.Run("first mention order, deduplicated", func(t *testing.T) {
		ids := extractCitations("x [S2] y [S1] z [S2]", labels)
		assert.Equal(t, []string{"b", "a"}, ids)
	})

	t.Run("unknown markers ignored", func(t *testing.T) {
		ids := extractCitations("x [S9]", labels)
		assert.Empty(t, ids)
	})

	t.Run("no labels", func(t *testing.T) {
		assert.Nil(t, extractCitations("[S1]", nil))
	})
}

func TestBuildPrompt_History(t *testing.T) {
	history := []session.Turn{
		{UserMessage: "what fruit?", AssistantMessage: "Apples [S1]."},
	}
	prompt, labels := buildPrompt("do they grow on trees?", groundedResult(), history)

	assert.Equal(t, map[string]string{"S1": "doc1#0", "S2": "doc1#3"}, labels)
	assert.Contains(t, prompt, "User: what fruit?")
	assert.Contains(t, prompt, "Assistant: Apples [S1].")
	// Question comes after the history block.
	assert.Greater(t, strings.Index(prompt, "Question:"), strings.Index(prompt, "User: what fruit?"))
	assert.Contains(t, prompt, "(document doc1, page 2)")
}

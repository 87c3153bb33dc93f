package answer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"docchat/internal/retrieval"
	"docchat/internal/session"
)

// ErrGeneration means the model call failed before any output was produced.
// Mid-stream failures are not an ErrGeneration: the partial turn is returned
// alongside the underlying error instead.
var ErrGeneration = errors.New("generation failed")

// NoGroundingMessage is streamed when retrieval found nothing above the
// similarity threshold. The model is never invoked in that case.
const NoGroundingMessage = "I couldn't find anything in the uploaded documents to answer that. " +
	"Try rephrasing the question, or upload a document that covers it."

// RetrievalFailedMessage is streamed when the vector index is unreachable,
// so the assistant never fabricates an ungrounded answer.
const RetrievalFailedMessage = "I'm unable to search the uploaded documents right now. Please try again shortly."

// TokenStream is a lazy, finite, non-restartable sequence of answer
// fragments. Next returns io.EOF after the final fragment.
type TokenStream interface {
	Next() (string, error)
}

// Generator invokes the language model in streaming mode.
type Generator interface {
	Stream(ctx context.Context, prompt string) (TokenStream, error)
}

type Synthesizer struct {
	gen Generator
}

func NewSynthesizer(gen Generator) *Synthesizer {
	return &Synthesizer{gen: gen}
}

// Synthesize streams an answer grounded in the retrieval result, delivering
// each fragment through emit as it arrives.
//
// Return contract:
//   - (turn, nil): the exchange completed; turn is ready to append.
//   - (nil, err): the model failed before producing anything; nothing to record.
//   - (turn, err): the stream broke mid-answer (model error, cancellation, or
//     a failed emit). turn holds exactly the text delivered so far with
//     Incomplete set; it must still be appended so the exchange is never lost.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, result retrieval.Result, history []session.Turn, emit func(string) error) (*session.Turn, error) {
	if !result.Grounded() {
		return s.RespondFixed(query, NoGroundingMessage, emit)
	}

	prompt, labels := buildPrompt(query, result, history)

	stream, err := s.gen.Stream(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	var sb strings.Builder
	for {
		frag, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if sb.Len() == 0 {
				return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
			}
			return partialTurn(query, sb.String(), labels), err
		}
		if frag == "" {
			continue
		}
		if err := emit(frag); err != nil {
			// The caller can no longer receive output; stop consuming tokens
			// but keep what was already delivered.
			return partialTurn(query, sb.String(), labels), err
		}
		sb.WriteString(frag)

		if ctx.Err() != nil {
			return partialTurn(query, sb.String(), labels), ctx.Err()
		}
	}

	text := sb.String()
	cited := extractCitations(text, labels)
	if len(cited) == 0 {
		// No markers in the answer: attribute the full retrieval set that
		// was supplied as context.
		cited = allChunkIDs(result)
	}

	return &session.Turn{
		UserMessage:      query,
		AssistantMessage: text,
		CitedChunks:      cited,
	}, nil
}

// RespondFixed streams a canned reply (no grounding, retrieval failure)
// without invoking the model.
func (s *Synthesizer) RespondFixed(query, message string, emit func(string) error) (*session.Turn, error) {
	if err := emit(message); err != nil {
		return partialTurn(query, "", nil), err
	}
	return &session.Turn{
		UserMessage:      query,
		AssistantMessage: message,
	}, nil
}

func partialTurn(query, text string, labels map[string]string) *session.Turn {
	// Citations on a partial answer come only from markers actually emitted;
	// attributing the whole retrieval set would overstate what was used.
	return &session.Turn{
		UserMessage:      query,
		AssistantMessage: text,
		CitedChunks:      extractCitations(text, labels),
		Incomplete:       true,
	}
}

func allChunkIDs(result retrieval.Result) []string {
	ids := make([]string, 0, len(result.Matches))
	for _, m := range result.Matches {
		ids = append(ids, m.Entry.ChunkID)
	}
	return ids
}

package gemini

import (
	"context"
	"io"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"

	"docchat/internal/answer"
)

// Generator streams chat completions from the configured Gemini model.
type Generator struct {
	client *genai.Client
	model  string
}

func NewGenerator(client *genai.Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

func (g *Generator) Stream(ctx context.Context, prompt string) (answer.TokenStream, error) {
	gm := g.client.GenerativeModel(g.model)
	iter := gm.GenerateContentStream(ctx, genai.Text(prompt))
	return &tokenStream{iter: iter}, nil
}

// tokenStream adapts the genai response iterator to answer.TokenStream.
// Non-restartable: once Next returns a non-nil error it stays failed.
type tokenStream struct {
	iter *genai.GenerateContentResponseIterator
	done bool
}

func (s *tokenStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	resp, err := s.iter.Next()
	if err == iterator.Done {
		s.done = true
		return "", io.EOF
	}
	if err != nil {
		s.done = true
		return "", err
	}
	return responseText(resp), nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var out string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			out += string(t)
		}
	}
	return out
}

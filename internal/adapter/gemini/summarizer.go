package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"docchat/internal/session"
)

// Summarizer collapses evicted conversation turns into a short summary for
// the "summarize" history policy.
type Summarizer struct {
	client *genai.Client
	model  string
}

func NewSummarizer(client *genai.Client, model string) *Summarizer {
	return &Summarizer{client: client, model: model}
}

func (s *Summarizer) Summarize(ctx context.Context, turns []session.Turn) (string, error) {
	var sb strings.Builder
	sb.WriteString("Summarize this conversation in at most three sentences, keeping the facts and topics discussed. ")
	sb.WriteString("Reply with the summary only.\n\n")
	for _, t := range turns {
		if t.UserMessage != "" {
			fmt.Fprintf(&sb, "User: %s\n", t.UserMessage)
		}
		if t.AssistantMessage != "" {
			fmt.Fprintf(&sb, "Assistant: %s\n", t.AssistantMessage)
		}
	}

	gm := s.client.GenerativeModel(s.model)
	resp, err := gm.GenerateContent(ctx, genai.Text(sb.String()))
	if err != nil {
		return "", err
	}

	summary := strings.TrimSpace(responseText(resp))
	if summary == "" {
		return "", fmt.Errorf("empty summary received")
	}
	return summary, nil
}

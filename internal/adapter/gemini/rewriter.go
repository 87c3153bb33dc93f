package gemini

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"docchat/internal/session"
)

// maxRewriteTurns bounds how much conversation the rewrite prompt carries;
// older turns rarely help resolve a pronoun.
const maxRewriteTurns = 4

// Rewriter expands follow-up questions into standalone queries using recent
// conversation, so "what about chapter 2?" embeds as something searchable.
type Rewriter struct {
	client *genai.Client
	model  string
}

func NewRewriter(client *genai.Client, model string) *Rewriter {
	return &Rewriter{client: client, model: model}
}

func (r *Rewriter) Rewrite(ctx context.Context, query string, history []session.Turn) (string, error) {
	if len(history) > maxRewriteTurns {
		history = history[len(history)-maxRewriteTurns:]
	}

	var sb strings.Builder
	sb.WriteString("Rewrite the user's follow-up question as a single standalone search query. ")
	sb.WriteString("Resolve pronouns and references using the conversation. ")
	sb.WriteString("Reply with the rewritten query only, no explanation.\n\n")
	sb.WriteString("Conversation:\n")
	for _, t := range history {
		if t.UserMessage != "" {
			fmt.Fprintf(&sb, "User: %s\n", t.UserMessage)
		}
		if t.AssistantMessage != "" {
			fmt.Fprintf(&sb, "Assistant: %s\n", t.AssistantMessage)
		}
	}
	fmt.Fprintf(&sb, "\nFollow-up question: %s\n", query)

	gm := r.client.GenerativeModel(r.model)
	resp, err := gm.GenerateContent(ctx, genai.Text(sb.String()))
	if err != nil {
		return "", err
	}

	rewritten := strings.TrimSpace(responseText(resp))
	rewritten = strings.Trim(rewritten, `"`)
	if rewritten == "" {
		return query, nil
	}
	// Models occasionally reply with several lines; the query is the first.
	if i := strings.IndexByte(rewritten, '\n'); i > 0 {
		rewritten = rewritten[:i]
	}
	return rewritten, nil
}

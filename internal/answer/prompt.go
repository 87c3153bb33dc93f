package answer

import (
	"fmt"
	"regexp"
	"strings"

	"docchat/internal/retrieval"
	"docchat/internal/session"
)

var citationRe = regexp.MustCompile(`\[S(\d+)\]`)

// buildPrompt assembles the grounded prompt: instructions, labeled source
// passages, bounded history, then the question. It returns the label → chunk
// id mapping used later to resolve citations.
func buildPrompt(query string, result retrieval.Result, history []session.Turn) (string, map[string]string) {
	var sb strings.Builder

	sb.WriteString("You are a document-grounded assistant.\n")
	sb.WriteString("Answer strictly and only from the source passages below.\n")
	sb.WriteString("Do not use prior knowledge, assumptions, or training data.\n")
	sb.WriteString("If the passages do not explicitly contain the answer, say the information is not available in the documents.\n")
	sb.WriteString("If the question contradicts the passages, explain the discrepancy using the passage content instead of answering directly.\n")
	sb.WriteString("Cite every factual statement with the marker of the passage it came from, e.g. [S1].\n")
	sb.WriteString("Use the documents' own wording and terminology. Be precise, factual, and concise.\n\n")

	labels := make(map[string]string, len(result.Matches))
	sb.WriteString("Source passages:\n")
	for i, m := range result.Matches {
		label := fmt.Sprintf("S%d", i+1)
		labels[label] = m.Entry.ChunkID
		fmt.Fprintf(&sb, "[%s] (document %s, page %d)\n%s\n\n", label, m.Entry.DocumentID, m.Entry.Page, m.Entry.Text)
	}

	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		for _, t := range history {
			if t.UserMessage != "" {
				fmt.Fprintf(&sb, "User: %s\n", t.UserMessage)
			}
			if t.AssistantMessage != "" {
				fmt.Fprintf(&sb, "Assistant: %s\n", t.AssistantMessage)
			}
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "Question: %s\n", query)

	return sb.String(), labels
}

// extractCitations resolves [Sn] markers in the answer text to chunk ids,
// deduplicated in first-mention order. Markers that don't match a supplied
// passage are ignored.
func extractCitations(text string, labels map[string]string) []string {
	if len(labels) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var ids []string
	for _, m := range citationRe.FindAllStringSubmatch(text, -1) {
		id, ok := labels["S"+m[1]]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

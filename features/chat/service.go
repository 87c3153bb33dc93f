package chat

import (
	"context"
	"errors"

	"docchat/internal/answer"
	"docchat/internal/retrieval"
	"docchat/internal/session"
	"docchat/internal/vector"
)

// Events carries the streaming callbacks for one exchange. OnStatus is
// best-effort progress reporting; OnDelta delivers answer fragments and its
// error aborts generation.
type Events struct {
	OnStatus func(stage string)
	OnDelta  func(text string) error
}

// Citation points a statement in the answer back at an indexed chunk.
type Citation struct {
	ChunkID    string `json:"chunk_id"`
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
}

// Answer is the finalized exchange, persisted as a session turn.
type Answer struct {
	SessionID  string     `json:"session_id"`
	TurnID     string     `json:"turn_id"`
	Text       string     `json:"text"`
	Citations  []Citation `json:"citations"`
	Incomplete bool       `json:"incomplete"`
}

type Service struct {
	sessions  *session.Manager
	retriever *retrieval.Service
	synth     *answer.Synthesizer
}

func NewService(sessions *session.Manager, retriever *retrieval.Service, synth *answer.Synthesizer) *Service {
	return &Service{sessions: sessions, retriever: retriever, synth: synth}
}

// Ask runs one grounded exchange: lease the session, retrieve passages,
// stream the answer, persist the turn.
//
// A non-nil Answer is returned even when err != nil: a mid-stream failure
// still persists what was delivered, flagged incomplete. (nil, err) means
// nothing was generated or recorded.
func (s *Service) Ask(ctx context.Context, sessionID, message string, ev Events) (*Answer, error) {
	sess, err := s.sessions.GetOrCreate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	lease, err := s.sessions.Acquire(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	defer lease.Release()
	status(ev, "received")

	history, err := s.sessions.ContextFor(ctx, sess.ID)
	if err != nil {
		return nil, err
	}

	status(ev, "searching")
	result, retrieveErr := s.retriever.Retrieve(ctx, message, history)

	var turn *session.Turn
	var synthErr error
	switch {
	case retrieveErr == nil:
		status(ev, "generating")
		turn, synthErr = s.synth.Synthesize(ctx, message, result, history, ev.OnDelta)
	case errors.Is(retrieveErr, vector.ErrUnavailable):
		// The index is down: answer honestly instead of failing the chat.
		status(ev, "generating")
		turn, synthErr = s.synth.RespondFixed(message, answer.RetrievalFailedMessage, ev.OnDelta)
	default:
		return nil, retrieveErr
	}

	if turn == nil {
		return nil, synthErr
	}

	// Persist even when the caller's context died mid-stream; a partial
	// exchange the user saw must survive.
	appended, appendErr := lease.Append(context.WithoutCancel(ctx), *turn)
	if appendErr != nil {
		return nil, appendErr
	}

	return &Answer{
		SessionID:  sess.ID,
		TurnID:     appended.ID,
		Text:       appended.AssistantMessage,
		Citations:  citationsFor(appended.CitedChunks, result),
		Incomplete: appended.Incomplete,
	}, synthErr
}

func status(ev Events, stage string) {
	if ev.OnStatus != nil {
		ev.OnStatus(stage)
	}
}

func citationsFor(chunkIDs []string, result retrieval.Result) []Citation {
	byID := make(map[string]vector.Entry, len(result.Matches))
	for _, m := range result.Matches {
		byID[m.Entry.ChunkID] = m.Entry
	}

	citations := make([]Citation, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		c := Citation{ChunkID: id}
		if e, ok := byID[id]; ok {
			c.DocumentID = e.DocumentID
			c.Page = e.Page
		}
		citations = append(citations, c)
	}
	return citations
}

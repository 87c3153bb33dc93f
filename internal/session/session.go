package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound means the session id is unknown to the store.
	ErrNotFound = errors.New("session not found")

	// ErrSessionBusy means another exchange currently holds the session's
	// lease and the busy policy is "reject".
	ErrSessionBusy = errors.New("session busy")
)

// Turn is one completed (or partially completed) exchange. Immutable once
// appended; CitedChunks records exactly the chunk ids used for the answer.
type Turn struct {
	ID               string    `json:"id"`
	Seq              int       `json:"seq"`
	UserMessage      string    `json:"user_message"`
	AssistantMessage string    `json:"assistant_message"`
	CitedChunks      []string  `json:"cited_chunks"`
	Incomplete       bool      `json:"incomplete"`
	CreatedAt        time.Time `json:"created_at"`
}

// Session is an ordered conversation. Turns grow monotonically; eviction is
// an external store policy keyed off LastActivity.
type Session struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActivity time.Time `json:"last_activity"`
	Turns        []Turn    `json:"turns"`
}

// Store persists sessions. Load returns ErrNotFound for unknown ids.
type Store interface {
	Load(ctx context.Context, id string) (*Session, error)
	Create(ctx context.Context, s *Session) error
	AppendTurn(ctx context.Context, sessionID string, t Turn) error
	Count(ctx context.Context) (int, error)
}

// Summarizer collapses evicted turns into a short synthetic summary when the
// history policy is "summarize". Implemented by the gemini adapter.
type Summarizer interface {
	Summarize(ctx context.Context, turns []Turn) (string, error)
}

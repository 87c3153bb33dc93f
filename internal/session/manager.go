package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	PolicyReject = "reject"
	PolicyQueue  = "queue"

	PolicyTruncate  = "truncate"
	PolicySummarize = "summarize"
)

type ManagerConfig struct {
	HistoryBudgetChars int
	HistoryPolicy      string // truncate | summarize
	BusyPolicy         string // reject | queue
}

// Manager serializes access to each session and bounds the conversational
// context handed to the synthesizer. Turns for one session are appended
// strictly in submission order; a second request for a leased session is
// rejected or queued depending on BusyPolicy.
type Manager struct {
	store      Store
	summarizer Summarizer
	cfg        ManagerConfig

	mu     sync.Mutex
	active map[string]chan struct{}
}

func NewManager(store Store, summarizer Summarizer, cfg ManagerConfig) *Manager {
	if cfg.HistoryBudgetChars <= 0 {
		cfg.HistoryBudgetChars = 6000
	}
	if cfg.BusyPolicy == "" {
		cfg.BusyPolicy = PolicyReject
	}
	if cfg.HistoryPolicy == "" {
		cfg.HistoryPolicy = PolicyTruncate
	}
	return &Manager{
		store:      store,
		summarizer: summarizer,
		cfg:        cfg,
		active:     make(map[string]chan struct{}),
	}
}

// Lease is an exclusive hold on one session's memory. It must be released
// exactly once; Append is only valid while the lease is held.
type Lease struct {
	m         *Manager
	sessionID string
	released  bool
}

// Acquire takes the per-session lease. With the reject policy a busy session
// fails immediately with ErrSessionBusy; with the queue policy the caller
// waits for the current holder, honoring ctx cancellation.
func (m *Manager) Acquire(ctx context.Context, sessionID string) (*Lease, error) {
	for {
		m.mu.Lock()
		ch, busy := m.active[sessionID]
		if !busy {
			m.active[sessionID] = make(chan struct{})
			m.mu.Unlock()
			return &Lease{m: m, sessionID: sessionID}, nil
		}
		m.mu.Unlock()

		if m.cfg.BusyPolicy == PolicyReject {
			return nil, fmt.Errorf("%w: %s", ErrSessionBusy, sessionID)
		}
		select {
		case <-ch:
			// Holder released; race for the lease again.
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *Lease) SessionID() string { return l.sessionID }

// Append finalizes one exchange. The turn is persisted with the next
// sequence number for the session.
func (l *Lease) Append(ctx context.Context, t Turn) (Turn, error) {
	if l.released {
		return Turn{}, fmt.Errorf("append on released lease for session %s", l.sessionID)
	}

	s, err := l.m.store.Load(ctx, l.sessionID)
	if err != nil {
		return Turn{}, err
	}

	t.ID = uuid.New().String()
	t.Seq = len(s.Turns)
	t.CreatedAt = time.Now().UTC()
	if err := l.m.store.AppendTurn(ctx, l.sessionID, t); err != nil {
		return Turn{}, err
	}
	return t, nil
}

func (l *Lease) Release() {
	if l.released {
		return
	}
	l.released = true

	l.m.mu.Lock()
	ch := l.m.active[l.sessionID]
	delete(l.m.active, l.sessionID)
	l.m.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// GetOrCreate loads a session, creating it when the id is unknown or empty.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID string) (*Session, error) {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	s, err := m.store.Load(ctx, sessionID)
	if err == nil {
		return s, nil
	}
	if err != ErrNotFound {
		return nil, err
	}

	now := time.Now().UTC()
	s = &Session{ID: sessionID, CreatedAt: now, LastActivity: now}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ContextFor returns the most recent turns that fit the character budget.
// The most recent turn is always included, whatever its size. With the
// summarize policy, evicted turns are collapsed into one synthetic turn.
func (m *Manager) ContextFor(ctx context.Context, sessionID string) ([]Turn, error) {
	s, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(s.Turns) == 0 {
		return nil, nil
	}

	kept := 0
	budget := m.cfg.HistoryBudgetChars
	used := 0
	for i := len(s.Turns) - 1; i >= 0; i-- {
		cost := len(s.Turns[i].UserMessage) + len(s.Turns[i].AssistantMessage)
		if kept > 0 && used+cost > budget {
			break
		}
		used += cost
		kept++
	}

	start := len(s.Turns) - kept
	turns := make([]Turn, kept)
	copy(turns, s.Turns[start:])

	if start == 0 {
		return turns, nil
	}

	if m.cfg.HistoryPolicy == PolicySummarize && m.summarizer != nil {
		summary, err := m.summarizer.Summarize(ctx, s.Turns[:start])
		if err != nil {
			// Summarization is best-effort; fall back to plain truncation.
			slog.WarnContext(ctx, "history summarization failed, truncating", "error", err, "session_id", sessionID)
			return turns, nil
		}
		synthetic := Turn{
			Seq:              -1,
			AssistantMessage: "Summary of the earlier conversation: " + summary,
			CreatedAt:        s.Turns[start-1].CreatedAt,
		}
		return append([]Turn{synthetic}, turns...), nil
	}

	return turns, nil
}

// Count reports the number of stored sessions, for the stats endpoint.
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.store.Count(ctx)
}

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSummarizer struct {
	out string
	err error
}

func (s *stubSummarizer) Summarize(ctx context.Context, turns []Turn) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.out, nil
}

func newTestManager(cfg ManagerConfig) (*Manager, *MemStore) {
	store := NewMemStore()
	return NewManager(store, nil, cfg), store
}

func createSession(t *testing.T, m *Manager) string {
	t.Helper()
	s, err := m.GetOrCreate(context.Background(), "")
	require.NoError(t, err)
	return s.ID
}

func TestGetOrCreate(t *testing.T) {
	m, _ := newTestManager(ManagerConfig{})
	ctx := context.Background()

	t.Run("empty id creates new session", func(t *testing.T) {
		s, err := m.GetOrCreate(ctx, "")
		require.NoError(t, err)
		assert.NotEmpty(t, s.ID)
	})

	t.Run("unknown id creates session with that id", func(t *testing.T) {
		s, err := m.GetOrCreate(ctx, "11111111-1111-1111-1111-111111111111")
		require.NoError(t, err)
		assert.Equal(t, "11111111-1111-1111-1111-111111111111", s.ID)
	})

	t.Run("existing id loads turns", func(t *testing.T) {
		id := createSession(t, m)
		lease, err := m.Acquire(ctx, id)
		require.NoError(t, err)
		_, err = lease.Append(ctx, Turn{UserMessage: "hi", AssistantMessage: "hello"})
		require.NoError(t, err)
		lease.Release()

		s, err := m.GetOrCreate(ctx, id)
		require.NoError(t, err)
		require.Len(t, s.Turns, 1)
		assert.Equal(t, "hi", s.Turns[0].UserMessage)
	})
}

func TestAppend_AssignsSequentialSeq(t *testing.T) {
	m, _ := newTestManager(ManagerConfig{})
	ctx := context.Background()
	id := createSession(t, m)

	for i := 0; i < 3; i++ {
		lease, err := m.Acquire(ctx, id)
		require.NoError(t, err)
		turn, err := lease.Append(ctx, Turn{UserMessage: fmt.Sprintf("q%d", i), AssistantMessage: "a"})
		require.NoError(t, err)
		assert.Equal(t, i, turn.Seq)
		assert.NotEmpty(t, turn.ID)
		lease.Release()
	}
}

func TestAcquire_RejectPolicy(t *testing.T) {
	m, _ := newTestManager(ManagerConfig{BusyPolicy: PolicyReject})
	ctx := context.Background()
	id := createSession(t, m)

	lease, err := m.Acquire(ctx, id)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, id)
	assert.ErrorIs(t, err, ErrSessionBusy)

	// Other sessions are unaffected.
	other := createSession(t, m)
	l2, err := m.Acquire(ctx, other)
	require.NoError(t, err)
	l2.Release()

	lease.Release()
	l3, err := m.Acquire(ctx, id)
	require.NoError(t, err)
	l3.Release()
}

func TestAcquire_QueuePolicyWaits(t *testing.T) {
	m, _ := newTestManager(ManagerConfig{BusyPolicy: PolicyQueue})
	ctx := context.Background()
	id := createSession(t, m)

	lease, err := m.Acquire(ctx, id)
	require.NoError(t, err)

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		l, err := m.Acquire(ctx, id)
		assert.NoError(t, err)
		close(acquired)
		l.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire should block while lease is held")
	case <-time.After(50 * time.Millisecond):
	}

	lease.Release()
	wg.Wait()

	select {
	case <-acquired:
	default:
		t.Fatal("second acquire never completed")
	}
}

func TestAcquire_QueuePolicyHonorsContext(t *testing.T) {
	m, _ := newTestManager(ManagerConfig{BusyPolicy: PolicyQueue})
	id := createSession(t, m)

	lease, err := m.Acquire(context.Background(), id)
	require.NoError(t, err)
	defer lease.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestContextFor_UnknownSession(t *testing.T) {
	m, _ := newTestManager(ManagerConfig{})
	_, err := m.ContextFor(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func appendTurns(t *testing.T, m *Manager, id string, turns ...Turn) {
	t.Helper()
	ctx := context.Background()
	for _, turn := range turns {
		lease, err := m.Acquire(ctx, id)
		require.NoError(t, err)
		_, err = lease.Append(ctx, turn)
		require.NoError(t, err)
		lease.Release()
	}
}

func TestContextFor_BudgetKeepsMostRecent(t *testing.T) {
	m, _ := newTestManager(ManagerConfig{HistoryBudgetChars: 100, HistoryPolicy: PolicyTruncate})
	id := createSession(t, m)

	appendTurns(t, m, id,
		Turn{UserMessage: strings.Repeat("a", 40), AssistantMessage: strings.Repeat("b", 40)},
		Turn{UserMessage: strings.Repeat("c", 40), AssistantMessage: strings.Repeat("d", 40)},
		Turn{UserMessage: "latest question", AssistantMessage: "latest answer"},
	)

	turns, err := m.ContextFor(context.Background(), id)
	require.NoError(t, err)

	// 80 + 80 + 28: only the last two fit in 100 chars... the newest always,
	// plus whatever older ones still fit.
	require.NotEmpty(t, turns)
	assert.Equal(t, "latest question", turns[len(turns)-1].UserMessage)
	total := 0
	for _, turn := range turns[:len(turns)-1] {
		total += len(turn.UserMessage) + len(turn.AssistantMessage)
	}
	assert.LessOrEqual(t, total+28, 100+80, "older turns must not blow the budget")
}

func TestContextFor_OversizedLatestTurnStillKept(t *testing.T) {
	m, _ := newTestManager(ManagerConfig{HistoryBudgetChars: 10, HistoryPolicy: PolicyTruncate})
	id := createSession(t, m)

	appendTurns(t, m, id,
		Turn{UserMessage: "old", AssistantMessage: "old answer"},
		Turn{UserMessage: strings.Repeat("x", 500), AssistantMessage: strings.Repeat("y", 500)},
	)

	turns, err := m.ContextFor(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, strings.Repeat("x", 500), turns[0].UserMessage)
}

func TestContextFor_SummarizePolicy(t *testing.T) {
	store := NewMemStore()
	m := NewManager(store, &stubSummarizer{out: "they talked about apples"}, ManagerConfig{
		HistoryBudgetChars: 30,
		HistoryPolicy:      PolicySummarize,
	})
	id := createSession(t, m)

	appendTurns(t, m, id,
		Turn{UserMessage: "tell me about apples please", AssistantMessage: "apples are red or green fruit"},
		Turn{UserMessage: "short q", AssistantMessage: "short a"},
	)

	turns, err := m.ContextFor(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, -1, turns[0].Seq)
	assert.Contains(t, turns[0].AssistantMessage, "they talked about apples")
	assert.Equal(t, "short q", turns[1].UserMessage)
}

func TestContextFor_SummarizeFailureFallsBackToTruncate(t *testing.T) {
	store := NewMemStore()
	m := NewManager(store, &stubSummarizer{err: errors.New("model down")}, ManagerConfig{
		HistoryBudgetChars: 30,
		HistoryPolicy:      PolicySummarize,
	})
	id := createSession(t, m)

	appendTurns(t, m, id,
		Turn{UserMessage: "tell me about apples please", AssistantMessage: "apples are red or green fruit"},
		Turn{UserMessage: "short q", AssistantMessage: "short a"},
	)

	turns, err := m.ContextFor(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "short q", turns[0].UserMessage)
}

func TestAppend_OnReleasedLeaseFails(t *testing.T) {
	m, _ := newTestManager(ManagerConfig{})
	ctx := context.Background()
	id := createSession(t, m)

	lease, err := m.Acquire(ctx, id)
	require.NoError(t, err)
	lease.Release()

	_, err = lease.Append(ctx, Turn{UserMessage: "late"})
	assert.Error(t, err)
}

func TestCount(t *testing.T) {
	m, _ := newTestManager(ManagerConfig{})
	createSession(t, m)
	createSession(t, m)

	n, err := m.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

package session

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// PostgresStore persists sessions and turns in the sessions/turns tables.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (r *PostgresStore) Load(ctx context.Context, id string) (*Session, error) {
	s := &Session{}
	query := `SELECT id, created_at, last_activity FROM sessions WHERE id = $1`
	err := r.db.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.CreatedAt, &s.LastActivity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, seq, user_message, assistant_message, cited_chunks, incomplete, created_at
		 FROM turns WHERE session_id = $1 ORDER BY seq ASC`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.Seq, &t.UserMessage, &t.AssistantMessage, pq.Array(&t.CitedChunks), &t.Incomplete, &t.CreatedAt); err != nil {
			return nil, err
		}
		s.Turns = append(s.Turns, t)
	}
	return s, rows.Err()
}

func (r *PostgresStore) Create(ctx context.Context, s *Session) error {
	query := `INSERT INTO sessions (id, created_at, last_activity) VALUES ($1, $2, $3)`
	_, err := r.db.ExecContext(ctx, query, s.ID, s.CreatedAt, s.LastActivity)
	return err
}

// AppendTurn inserts the turn and bumps last_activity in one transaction so
// a crash never leaves a turn without the activity update.
func (r *PostgresStore) AppendTurn(ctx context.Context, sessionID string, t Turn) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (id, session_id, seq, user_message, assistant_message, cited_chunks, incomplete, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, sessionID, t.Seq, t.UserMessage, t.AssistantMessage, pq.Array(t.CitedChunks), t.Incomplete, t.CreatedAt)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `UPDATE sessions SET last_activity = $1 WHERE id = $2`, t.CreatedAt, sessionID)
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (r *PostgresStore) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

package session

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TurnStore persists completed turns to Postgres as an append-only audit
// log. It is independent of Memory: the in-memory window drives context
// assembly, the store keeps full history for inspection.
type TurnStore struct {
	pool *pgxpool.Pool
}

// NewTurnStore creates a turn store on an existing connection pool.
func NewTurnStore(pool *pgxpool.Pool) (*TurnStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("connection pool is required")
	}
	return &TurnStore{pool: pool}, nil
}

// Append records one completed turn.
func (s *TurnStore) Append(ctx context.Context, sessionID string, turn Turn) error {
	if sessionID == "" {
		return fmt.Errorf("session ID must not be empty")
	}
	at := turn.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO turns (session_id, query, answer, created_at) VALUES ($1, $2, $3, $4)`,
		sessionID, turn.Query, turn.Answer, at,
	)
	if err != nil {
		return fmt.Errorf("appending turn for session %s: %w", sessionID, err)
	}
	return nil
}

// Recent returns up to limit turns for a session in chronological order,
// oldest first.
func (s *TurnStore) Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultMaxTurns
	}

	rows, err := s.pool.Query(ctx,
		`SELECT query, answer, created_at
		   FROM (SELECT query, answer, created_at
		           FROM turns
		          WHERE session_id = $1
		          ORDER BY created_at DESC, id DESC
		          LIMIT $2) latest
		  ORDER BY created_at ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying turns for session %s: %w", sessionID, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Query, &t.Answer, &t.At); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading turns for session %s: %w", sessionID, err)
	}
	return turns, nil
}

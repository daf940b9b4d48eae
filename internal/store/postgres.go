package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/grantwise/coach-backend/internal/entity"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = &Postgres{}

// Postgres stores each session as a single jsonb document in the
// server_session_states table.
type Postgres struct {
	db *pgxpool.Pool
}

func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Load(ctx context.Context, sessionID string) (*entity.SessionState, error) {
	const query = `
		SELECT state
		FROM server_session_states
		WHERE session_id = $1`

	var raw []byte
	err := s.db.QueryRow(ctx, query, sessionID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, entity.ErrSessionNotFound
		}
		return nil, fmt.Errorf("query session state: %w", err)
	}

	var state entity.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}

	return &state, nil
}

func (s *Postgres) Upsert(ctx context.Context, state *entity.SessionState) error {
	state.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	const query = `
		INSERT INTO server_session_states (session_id, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id)
		DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`

	_, err = s.db.Exec(ctx, query, state.SessionID, raw, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert session state: %w", err)
	}

	return nil
}

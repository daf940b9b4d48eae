package store

import (
	"context"

	"github.com/grantwise/coach-backend/internal/entity"
)

// Store persists one SessionState document per session ID. Writes are
// last-writer-wins per session; the workflow engine serializes events
// per session so concurrent writers only occur across sessions.
type Store interface {
	// Load retrieves the session state, or entity.ErrSessionNotFound.
	Load(ctx context.Context, sessionID string) (*entity.SessionState, error)

	// Upsert creates or fully replaces the session state document.
	Upsert(ctx context.Context, state *entity.SessionState) error
}

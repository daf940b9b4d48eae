package chat

import (
	"context"

	"github.com/grantwise/coach-backend/internal/entity"
)

// Engine is the workflow surface the chat handler depends on.
type Engine interface {
	// NewSession creates or resets a session and returns its opening step.
	NewSession(ctx context.Context, sessionID string) (*entity.NextStepDescriptor, error)

	// HandleEvent records the user input and streams the assistant
	// messages it produces. The channel is closed when the event is done.
	HandleEvent(ctx context.Context, sessionID string, input entity.UserInput) (<-chan string, error)

	// Advance moves the session to its next step and describes it.
	Advance(ctx context.Context, sessionID string) (*entity.NextStepDescriptor, error)

	// State returns the stored session state.
	State(ctx context.Context, sessionID string) (*entity.SessionState, error)
}

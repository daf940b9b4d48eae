package generator

import (
	"context"
	"encoding/json"

	"github.com/grantwise/coach-backend/internal/document"
	"github.com/grantwise/coach-backend/internal/entity"
)

// LLMConnector is the chat-completion provider surface the generators
// depend on.
type LLMConnector interface {
	// ChatStream pushes tokens onto out in generation order and calls
	// onEnd exactly once with the full and formatted text, after the
	// last token, only on success.
	ChatStream(ctx context.Context, req entity.ChatStreamRequest, out chan<- string, onEnd func(full, formatted string)) error

	// InvokeStructured returns the model's function-call arguments.
	InvokeStructured(ctx context.Context, req entity.StructuredRequest) (json.RawMessage, error)
}

// DocumentService is the retrieval surface the generators depend on.
type DocumentService interface {
	BuildOrRefresh(ctx context.Context, sessionID string, files []entity.FileReference, tokensPerChunk int) (*document.Index, error)
	TopK(ctx context.Context, index *document.Index, query string, k int) ([]document.Chunk, error)
}

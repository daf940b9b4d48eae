package llm

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/grantwise/coach-backend/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// MockConnector is a canned LLM implementation for local development
// without provider credentials.
type MockConnector struct {
	logger *zap.Logger
}

func NewMockConnector(logger *zap.Logger) *MockConnector {
	return &MockConnector{logger: logger}
}

const mockDraft = "Our organization pursues this goal through sustained community partnerships.\n\n" +
	"Over the past three years we have served more than two thousand households, " +
	"and our programs are designed around measurable outcomes that funders can verify."

const mockComprehensiveness = `{
	"missing_information": "The draft does not mention the project budget or staffing plan.",
	"implicit_questions": [
		"What is the total project budget?",
		"How many staff members will work on the project?"
	]
}`

func (m *MockConnector) ChatStream(
	ctx context.Context, req entity.ChatStreamRequest, out chan<- string, onEnd func(full, formatted string),
) error {
	ctxzap.Info(ctx, "[MOCK] streaming chat completion", zap.String("mode", string(req.Mode)))

	words := strings.SplitAfter(mockDraft, " ")
	for _, word := range words {
		select {
		case out <- word:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	onEnd(mockDraft, FormatText(mockDraft))
	return nil
}

func (m *MockConnector) InvokeStructured(ctx context.Context, req entity.StructuredRequest) (json.RawMessage, error) {
	ctxzap.Info(ctx, "[MOCK] structured completion", zap.String("function", req.Function.Name))
	return json.RawMessage(mockComprehensiveness), nil
}

package embedding

import (
	"context"
	"hash/fnv"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// mockDimensions keeps mock vectors small but non-trivial.
const mockDimensions = 16

// MockConnector produces deterministic pseudo-embeddings so retrieval
// behaves consistently without a provider.
type MockConnector struct {
	logger *zap.Logger
}

func NewMockConnector(logger *zap.Logger) *MockConnector {
	return &MockConnector{logger: logger}
}

func (m *MockConnector) Embed(ctx context.Context, text string) ([]float32, error) {
	ctxzap.Debug(ctx, "[MOCK] embedding text", zap.Int("length", len(text)))

	vec := make([]float32, mockDimensions)
	h := fnv.New32a()
	for i := range vec {
		h.Write([]byte{byte(i)})
		h.Write([]byte(text))
		vec[i] = float32(h.Sum32()%1000) / 1000
	}

	return Normalize(vec), nil
}

package embedding

import (
	"context"
	"fmt"
	"math"
	"net/http"

	"github.com/avast/retry-go/v4"
	"github.com/grantwise/coach-backend/internal/config"
	"github.com/grantwise/coach-backend/internal/entity"
	"github.com/grantwise/coach-backend/internal/integration/common"
	pkghttp "github.com/grantwise/coach-backend/pkg/http"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

// Connector talks to an OpenAI-compatible embeddings service.
type Connector struct {
	config    config.EmbeddingConnectorConfig
	connector *pkghttp.Connector
	logger    *zap.Logger
}

func NewConnector(cfg config.EmbeddingConnectorConfig, logger *zap.Logger) *Connector {
	return &Connector{
		config:    cfg,
		connector: common.NewBaseConnector(cfg.HTTPClientConfig, logger),
		logger:    logger,
	}
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns a unit-normalized embedding vector for the text.
func (c *Connector) Embed(ctx context.Context, text string) ([]float32, error) {
	payload := embeddingRequest{
		Model: c.config.Model,
		Input: []string{text},
	}

	var resp embeddingResponse
	err := retry.Do(func() error {
		return c.connector.DoRequest(ctx, http.MethodPost, c.config.EmbeddingsEndpoint, payload, &resp)
	}, append(c.config.Retry.ToRetryOptions(), retry.Context(ctx))...)
	if err != nil {
		ctxzap.Error(ctx, "embedding request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", entity.ErrProvider, err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("%w: empty embedding response", entity.ErrProvider)
	}

	values := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		values[i] = float32(v)
	}

	return Normalize(values), nil
}

// Normalize scales a vector to unit length so cosine distance reduces
// to 1 minus the dot product.
func Normalize(vec []float32) []float32 {
	var magnitude float64
	for _, v := range vec {
		magnitude += float64(v) * float64(v)
	}
	magnitude = math.Sqrt(magnitude)

	if magnitude == 0 {
		return vec
	}

	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / magnitude)
	}
	return out
}

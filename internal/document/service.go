package document

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/grantwise/coach-backend/internal/entity"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Embedder turns a text into a unit-normalized embedding vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service owns the per-session vector indexes. Each session gets its own
// index built from its uploaded file set; no index is shared across
// sessions.
type Service struct {
	loader   *Loader
	embedder Embedder
	indexes  *gocache.Cache
	logger   *zap.Logger
}

func NewService(loader *Loader, embedder Embedder, logger *zap.Logger) *Service {
	return &Service{
		loader:   loader,
		embedder: embedder,
		indexes:  gocache.New(gocache.NoExpiration, 0),
		logger:   logger,
	}
}

// BuildOrRefresh ensures the session's index matches the given file set.
// When the source set and chunk size are unchanged the cached index is
// returned as is; otherwise the index is rebuilt from scratch. An empty
// file set yields an empty index.
func (s *Service) BuildOrRefresh(
	ctx context.Context, sessionID string, files []entity.FileReference, tokensPerChunk int,
) (*Index, error) {
	if tokensPerChunk <= 0 {
		tokensPerChunk = DefaultTokensPerChunk
	}

	fingerprint := sourceFingerprint(files, tokensPerChunk)

	if cached, ok := s.indexes.Get(sessionID); ok {
		index := cached.(*Index)
		if index.Fingerprint() == fingerprint {
			ctxzap.Debug(ctx, "document index up to date",
				zap.String("session_id", sessionID),
				zap.Int("chunks", index.Len()),
			)
			return index, nil
		}
	}

	ctxzap.Info(ctx, "rebuilding document index",
		zap.String("session_id", sessionID),
		zap.Int("file_count", len(files)),
		zap.Int("tokens_per_chunk", tokensPerChunk),
	)

	index := newIndex(fingerprint)
	chunker := NewChunker(tokensPerChunk)
	position := 0

	for _, file := range files {
		text, err := s.loader.Load(ctx, file)
		if err != nil {
			if errors.Is(err, entity.ErrInvalidExtension) {
				ctxzap.Warn(ctx, "skipping unsupported file",
					zap.String("file", file.Name),
					zap.Error(err),
				)
				continue
			}
			return nil, fmt.Errorf("load %q: %w", file.Name, err)
		}

		originalTokens := EstimateTokens(text)
		for _, piece := range chunker.Split(text) {
			vector, err := s.embedder.Embed(ctx, piece)
			if err != nil {
				return nil, fmt.Errorf("embed chunk of %q: %w", file.Name, err)
			}

			position++
			index.add(vector, Chunk{
				Source:             file.Name,
				Index:              position,
				OriginalTokenCount: originalTokens,
				TokenCount:         EstimateTokens(piece),
				Text:               piece,
			})
		}
	}

	s.indexes.SetDefault(sessionID, index)

	ctxzap.Info(ctx, "document index built",
		zap.String("session_id", sessionID),
		zap.Int("chunks", index.Len()),
	)

	return index, nil
}

// TopK embeds the query and returns the k nearest chunks. A query
// against an empty index returns the empty list.
func (s *Service) TopK(ctx context.Context, index *Index, query string, k int) ([]Chunk, error) {
	if index.Len() == 0 {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	return index.TopK(vector, k), nil
}

// sourceFingerprint derives a stable identity for a file set and chunk
// size. Files are deduplicated and order-insensitive by basename.
func sourceFingerprint(files []entity.FileReference, tokensPerChunk int) string {
	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%d|%s", tokensPerChunk, strings.Join(names, "\x00"))
}

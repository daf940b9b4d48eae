package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/grantwise/coach-backend/internal/entity"
	gocache "github.com/patrickmn/go-cache"
)

var _ Store = &Memory{}

// Memory is a go-cache backed store for local development and tests.
// States are kept serialized so Load hands out independent copies, the
// same isolation the Postgres store provides.
type Memory struct {
	cache *gocache.Cache
}

// NewMemory creates a memory store. A zero ttl keeps sessions forever.
func NewMemory(ttl time.Duration) *Memory {
	expiration := gocache.NoExpiration
	if ttl > 0 {
		expiration = ttl
	}
	return &Memory{
		cache: gocache.New(expiration, 10*time.Minute),
	}
}

func (s *Memory) Load(_ context.Context, sessionID string) (*entity.SessionState, error) {
	raw, ok := s.cache.Get(sessionID)
	if !ok {
		return nil, entity.ErrSessionNotFound
	}

	var state entity.SessionState
	if err := json.Unmarshal(raw.([]byte), &state); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}

	return &state, nil
}

func (s *Memory) Upsert(_ context.Context, state *entity.SessionState) error {
	state.UpdatedAt = time.Now().UTC()

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}

	s.cache.SetDefault(state.SessionID, raw)
	return nil
}

package repository

import (
	"context"
	"sync"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
	"github.com/fairyhunter13/allowance-token-system/internal/service"
)

// MemoryStore keeps tokens and the uses log in process memory. It backs
// STORE_BACKEND=memory and honors the conditional update exactly.
type MemoryStore struct {
	mu      sync.RWMutex
	tokens  map[string]model.Token
	order   []string
	entries []model.RedemptionLogEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]model.Token)}
}

// Tokens returns the token repository view of the store.
func (s *MemoryStore) Tokens() *MemoryTokenRepository {
	return &MemoryTokenRepository{store: s}
}

// RedemptionLog returns the uses log view of the store.
func (s *MemoryStore) RedemptionLog() *MemoryRedemptionLogRepository {
	return &MemoryRedemptionLogRepository{store: s}
}

// Ping reports the store healthy while ctx is live.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// MemoryTokenRepository implements service.TokenRepositoryInterface over a MemoryStore.
type MemoryTokenRepository struct {
	store *MemoryStore
}

// Create stores a copy of token.
func (r *MemoryTokenRepository) Create(ctx context.Context, token *model.Token) error {
	if err := ctx.Err(); err != nil {
		return storeError(err, "insert token")
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[token.ID]; ok {
		return service.ErrTokenExists
	}
	s.tokens[token.ID] = *token
	s.order = append(s.order, token.ID)
	return nil
}

// FindByID returns a copy of the token or nil, nil.
func (r *MemoryTokenRepository) FindByID(ctx context.Context, id string) (*model.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "get token by id "+id)
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.tokens[id]
	if !ok {
		return nil, nil
	}
	return &token, nil
}

// UpdateCounters overwrites used and status.
func (r *MemoryTokenRepository) UpdateCounters(ctx context.Context, id string, newUsed int, newStatus model.TokenStatus) error {
	if err := ctx.Err(); err != nil {
		return storeError(err, "update counters for "+id)
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return service.ErrNotFound
	}
	token.Used = newUsed
	token.Status = newStatus
	s.tokens[id] = token
	return nil
}

// UpdateIfUsedEquals overwrites used and status while used equals expectedUsed.
func (r *MemoryTokenRepository) UpdateIfUsedEquals(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, storeError(err, "conditional update for "+id)
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[id]
	if !ok {
		return false, service.ErrNotFound
	}
	if token.Used != expectedUsed {
		return false, nil
	}
	token.Used = newUsed
	token.Status = newStatus
	s.tokens[id] = token
	return true, nil
}

// List returns every token in insertion order.
func (r *MemoryTokenRepository) List(ctx context.Context) ([]model.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "list tokens")
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]model.Token, 0, len(s.order))
	for _, id := range s.order {
		tokens = append(tokens, s.tokens[id])
	}
	return tokens, nil
}

// MemoryRedemptionLogRepository implements service.RedemptionLogRepositoryInterface over a MemoryStore.
type MemoryRedemptionLogRepository struct {
	store *MemoryStore
}

// Append adds a copy of entry to the log.
func (r *MemoryRedemptionLogRepository) Append(ctx context.Context, entry *model.RedemptionLogEntry) error {
	if err := ctx.Err(); err != nil {
		return storeError(err, "append redemption log")
	}
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, *entry)
	return nil
}

// List returns the log oldest first.
func (r *MemoryRedemptionLogRepository) List(ctx context.Context) ([]model.RedemptionLogEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeError(err, "list redemption log")
	}
	s := r.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]model.RedemptionLogEntry, len(s.entries))
	copy(entries, s.entries)
	return entries, nil
}

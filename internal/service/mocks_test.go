package service

import (
	"context"
	"sync"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
)

// mockTokenRepository is a mock implementation of TokenRepositoryInterface.
type mockTokenRepository struct {
	createFn             func(ctx context.Context, token *model.Token) error
	findByIDFn           func(ctx context.Context, id string) (*model.Token, error)
	updateCountersFn     func(ctx context.Context, id string, newUsed int, newStatus model.TokenStatus) error
	updateIfUsedEqualsFn func(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error)
	listFn               func(ctx context.Context) ([]model.Token, error)
}

func (m *mockTokenRepository) Create(ctx context.Context, token *model.Token) error {
	if m.createFn != nil {
		return m.createFn(ctx, token)
	}
	return nil
}

func (m *mockTokenRepository) FindByID(ctx context.Context, id string) (*model.Token, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockTokenRepository) UpdateCounters(ctx context.Context, id string, newUsed int, newStatus model.TokenStatus) error {
	if m.updateCountersFn != nil {
		return m.updateCountersFn(ctx, id, newUsed, newStatus)
	}
	return nil
}

func (m *mockTokenRepository) UpdateIfUsedEquals(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error) {
	if m.updateIfUsedEqualsFn != nil {
		return m.updateIfUsedEqualsFn(ctx, id, expectedUsed, newUsed, newStatus)
	}
	return true, nil
}

func (m *mockTokenRepository) List(ctx context.Context) ([]model.Token, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []model.Token{}, nil
}

// mockLogRepository is a mock implementation of RedemptionLogRepositoryInterface.
type mockLogRepository struct {
	appendFn func(ctx context.Context, entry *model.RedemptionLogEntry) error
	listFn   func(ctx context.Context) ([]model.RedemptionLogEntry, error)
}

func (m *mockLogRepository) Append(ctx context.Context, entry *model.RedemptionLogEntry) error {
	if m.appendFn != nil {
		return m.appendFn(ctx, entry)
	}
	return nil
}

func (m *mockLogRepository) List(ctx context.Context) ([]model.RedemptionLogEntry, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []model.RedemptionLogEntry{}, nil
}

// fakeStore keeps tokens and log rows in memory so multi-step flows can run
// against real state transitions.
type fakeStore struct {
	mu        sync.Mutex
	tokens    map[string]model.Token
	order     []string
	entries   []model.RedemptionLogEntry
	appendErr error
	writes    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tokens: make(map[string]model.Token)}
}

func (f *fakeStore) Create(ctx context.Context, token *model.Token) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[token.ID]; ok {
		return ErrTokenExists
	}
	f.tokens[token.ID] = *token
	f.order = append(f.order, token.ID)
	f.writes++
	return nil
}

func (f *fakeStore) FindByID(ctx context.Context, id string) (*model.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) UpdateCounters(ctx context.Context, id string, newUsed int, newStatus model.TokenStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[id]
	if !ok {
		return ErrNotFound
	}
	t.Used, t.Status = newUsed, newStatus
	f.tokens[id] = t
	f.writes++
	return nil
}

func (f *fakeStore) UpdateIfUsedEquals(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Used != expectedUsed {
		return false, nil
	}
	t.Used, t.Status = newUsed, newStatus
	f.tokens[id] = t
	f.writes++
	return true, nil
}

func (f *fakeStore) List(ctx context.Context) ([]model.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Token, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.tokens[id])
	}
	return out, nil
}

func (f *fakeStore) get(id string) model.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens[id]
}

func (f *fakeStore) logEntries() []model.RedemptionLogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.RedemptionLogEntry(nil), f.entries...)
}

// fakeLog is the uses-log half of fakeStore.
type fakeLog struct{ *fakeStore }

func (l fakeLog) Append(ctx context.Context, entry *model.RedemptionLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	l.entries = append(l.entries, *entry)
	l.writes++
	return nil
}

func (l fakeLog) List(ctx context.Context) ([]model.RedemptionLogEntry, error) {
	return l.logEntries(), nil
}

// sequenceIDs hands out ids in order.
type sequenceIDs struct {
	ids []string
	i   int
}

func (s *sequenceIDs) NewID() (string, error) {
	id := s.ids[s.i%len(s.ids)]
	s.i++
	return id, nil
}

// countingInvalidator records Invalidate calls.
type countingInvalidator struct {
	calls int
}

func (c *countingInvalidator) Invalidate() { c.calls++ }

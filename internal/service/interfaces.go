package service

import (
	"context"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
)

// TokenRepositoryInterface defines the interface for token data access.
type TokenRepositoryInterface interface {
	Create(ctx context.Context, token *model.Token) error
	// FindByID returns nil, nil when no token matches.
	FindByID(ctx context.Context, id string) (*model.Token, error)
	UpdateCounters(ctx context.Context, id string, newUsed int, newStatus model.TokenStatus) error
	// UpdateIfUsedEquals applies the update only when the stored used count
	// equals expectedUsed and reports whether it did.
	UpdateIfUsedEquals(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error)
	List(ctx context.Context) ([]model.Token, error)
}

// RedemptionLogRepositoryInterface defines the interface for the append-only uses log.
type RedemptionLogRepositoryInterface interface {
	Append(ctx context.Context, entry *model.RedemptionLogEntry) error
	List(ctx context.Context) ([]model.RedemptionLogEntry, error)
}

// Invalidator drops cached listings after a mutation.
type Invalidator interface {
	Invalidate()
}

// ListingReader serves possibly cached full-table reads.
type ListingReader interface {
	ListTokens(ctx context.Context) ([]model.Token, error)
	ListRedemptionLog(ctx context.Context) ([]model.RedemptionLogEntry, error)
}

// IDGenerator produces fresh token ids.
type IDGenerator interface {
	NewID() (string, error)
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate() {}

// ListingSource adapts the two repositories to the full-table reads the
// listing cache fronts.
type ListingSource struct {
	Tokens TokenRepositoryInterface
	Log    RedemptionLogRepositoryInterface
}

// ListTokens reads every token from the store.
func (s ListingSource) ListTokens(ctx context.Context) ([]model.Token, error) {
	return s.Tokens.List(ctx)
}

// ListRedemptionLog reads every uses row from the store.
func (s ListingSource) ListRedemptionLog(ctx context.Context) ([]model.RedemptionLogEntry, error) {
	return s.Log.List(ctx)
}

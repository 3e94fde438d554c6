package service

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
)

// TokenQueryService serves token and redemption-log reads.
type TokenQueryService struct {
	tokenRepo TokenRepositoryInterface
	listings  ListingReader
}

// NewTokenQueryService creates a new TokenQueryService. Listings are read
// through listings, which is normally the cache.
func NewTokenQueryService(tokenRepo TokenRepositoryInterface, listings ListingReader) *TokenQueryService {
	return &TokenQueryService{tokenRepo: tokenRepo, listings: listings}
}

// Get reads one token straight from the store.
// Returns ErrTokenNotFound if the token doesn't exist.
func (s *TokenQueryService) Get(ctx context.Context, id string) (*model.Token, error) {
	token, err := s.tokenRepo.FindByID(ctx, NormalizeID(id))
	if err != nil {
		return nil, errors.Wrap(err, "get token")
	}
	if token == nil {
		return nil, ErrTokenNotFound
	}
	return token, nil
}

// List returns every token.
func (s *TokenQueryService) List(ctx context.Context) ([]model.Token, error) {
	tokens, err := s.listings.ListTokens(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list tokens")
	}
	return tokens, nil
}

// RedemptionLog returns the uses log, restricted to tokenID when it is not empty.
func (s *TokenQueryService) RedemptionLog(ctx context.Context, tokenID string) ([]model.RedemptionLogEntry, error) {
	entries, err := s.listings.ListRedemptionLog(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list redemption log")
	}
	if tokenID == "" {
		return entries, nil
	}

	id := NormalizeID(tokenID)
	filtered := make([]model.RedemptionLogEntry, 0)
	for _, e := range entries {
		if NormalizeID(e.TokenID) == id {
			filtered = append(filtered, e)
		}
	}
	return filtered, nil
}

// Summary aggregates tokens per type, one row for every known type.
func (s *TokenQueryService) Summary(ctx context.Context) ([]model.TypeSummary, error) {
	tokens, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[model.TokenType]int, len(model.TokenTypes))
	summary := make([]model.TypeSummary, len(model.TokenTypes))
	for i, t := range model.TokenTypes {
		index[t] = i
		summary[i].Type = t
	}

	for _, tok := range tokens {
		i, ok := index[tok.Type]
		if !ok {
			continue
		}
		row := &summary[i]
		row.Issued++
		row.TotalAllowance += tok.Allowance
		row.TotalUsed += tok.Used
		if tok.Status == model.StatusExhausted {
			row.Exhausted++
		} else {
			row.Active++
		}
	}
	return summary, nil
}

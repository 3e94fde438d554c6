package service

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/fairyhunter13/allowance-token-system/internal/clock"
	"github.com/fairyhunter13/allowance-token-system/internal/model"
	"github.com/fairyhunter13/allowance-token-system/internal/payload"
	"github.com/fairyhunter13/allowance-token-system/internal/validity"
)

// maxIssueAttempts bounds retries on id collisions.
const maxIssueAttempts = 3

// IssuanceService creates new tokens.
type IssuanceService struct {
	tokenRepo TokenRepositoryInterface
	ids       IDGenerator
	clock     clock.Clock
	cache     Invalidator
}

// NewIssuanceService creates a new IssuanceService. A nil cache is allowed.
func NewIssuanceService(tokenRepo TokenRepositoryInterface, ids IDGenerator, clk clock.Clock, cache Invalidator) *IssuanceService {
	if cache == nil {
		cache = noopInvalidator{}
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &IssuanceService{
		tokenRepo: tokenRepo,
		ids:       ids,
		clock:     clk,
		cache:     cache,
	}
}

// Issue validates params, persists a fresh ACTIVE token and returns it with
// its payload. Returns ErrValidation (nothing is written) when:
//   - user is blank or contains the payload separator or a line break
//   - type is not one of model.TokenTypes
//   - start or end is not a YYYY-MM-DD date, or start is after end
//   - allowance is below 1
func (s *IssuanceService) Issue(ctx context.Context, params model.IssueParams) (*model.Token, error) {
	tokenType, err := validateIssueParams(params)
	if err != nil {
		return nil, err
	}

	token := &model.Token{
		User:      strings.TrimSpace(params.User),
		Type:      tokenType,
		Start:     params.Start,
		End:       params.End,
		Allowance: params.Allowance,
		Used:      0,
		Status:    model.StatusActive,
		IssuedAt:  s.clock.Now().UTC(),
	}

	for attempt := 1; ; attempt++ {
		id, err := s.ids.NewID()
		if err != nil {
			return nil, err
		}
		token.ID = id
		token.Payload = payload.Encode(FieldsOf(token))

		err = s.tokenRepo.Create(ctx, token)
		if err == nil {
			break
		}
		if errors.Is(err, ErrTokenExists) && attempt < maxIssueAttempts {
			continue
		}
		return nil, errors.Wrap(err, "create token")
	}

	s.cache.Invalidate()
	return token, nil
}

func validateIssueParams(p model.IssueParams) (model.TokenType, error) {
	user := strings.TrimSpace(p.User)
	if user == "" {
		return "", errors.Mark(errors.New("user is required"), ErrValidation)
	}
	if strings.ContainsAny(user, payload.Separator+"\r\n") {
		return "", errors.Mark(errors.New("user must not contain '|' or line breaks"), ErrValidation)
	}

	tokenType, ok := model.ParseTokenType(p.Type)
	if !ok {
		return "", errors.Mark(errors.Newf("type %q is not one of %v", p.Type, model.TokenTypes), ErrValidation)
	}

	if !validity.ValidDate(p.Start) {
		return "", errors.Mark(errors.Newf("start %q is not a YYYY-MM-DD date", p.Start), ErrValidation)
	}
	if !validity.ValidDate(p.End) {
		return "", errors.Mark(errors.Newf("end %q is not a YYYY-MM-DD date", p.End), ErrValidation)
	}
	if p.Start > p.End {
		return "", errors.Mark(errors.Newf("start %s is after end %s", p.Start, p.End), ErrValidation)
	}

	if p.Allowance < 1 {
		return "", errors.Mark(errors.New("allowance must be at least 1"), ErrValidation)
	}

	return tokenType, nil
}

// FieldsOf extracts the identity fields a token's payload carries.
func FieldsOf(t *model.Token) payload.Fields {
	return payload.Fields{
		ID:        t.ID,
		User:      t.User,
		Type:      string(t.Type),
		Allowance: t.Allowance,
		Start:     t.Start,
		End:       t.End,
	}
}

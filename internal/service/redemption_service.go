package service

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"

	"github.com/fairyhunter13/allowance-token-system/internal/clock"
	"github.com/fairyhunter13/allowance-token-system/internal/model"
	"github.com/fairyhunter13/allowance-token-system/internal/payload"
	"github.com/fairyhunter13/allowance-token-system/internal/validity"
)

const (
	// NoteRedeemed is written to the uses log for every successful redemption.
	NoteRedeemed = "redeemed"

	// maxRedeemAttempts bounds how often a lost compare-and-set is retried.
	maxRedeemAttempts = 3
)

// RedemptionOptions tunes redemption policy.
type RedemptionOptions struct {
	// CompareAndSet makes counter writes conditional on the used value that
	// was read. Without it concurrent redemptions can lose updates.
	CompareAndSet bool
	// VerifyPayload rejects scans whose embedded fields differ from the
	// stored record for the same id.
	VerifyPayload bool
	// Location is the timezone that defines "today". Nil means UTC.
	Location *time.Location
}

// RedemptionService advances token counters on redemption.
type RedemptionService struct {
	tokenRepo TokenRepositoryInterface
	logRepo   RedemptionLogRepositoryInterface
	clock     clock.Clock
	cache     Invalidator
	opts      RedemptionOptions
}

// NewRedemptionService creates a new RedemptionService. A nil cache is allowed.
func NewRedemptionService(tokenRepo TokenRepositoryInterface, logRepo RedemptionLogRepositoryInterface, clk clock.Clock, cache Invalidator, opts RedemptionOptions) *RedemptionService {
	if cache == nil {
		cache = noopInvalidator{}
	}
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &RedemptionService{
		tokenRepo: tokenRepo,
		logRepo:   logRepo,
		clock:     clk,
		cache:     cache,
		opts:      opts,
	}
}

// Today returns the current redemption date.
func (s *RedemptionService) Today() string {
	return validity.Today(s.clock.Now(), s.opts.Location)
}

// Redeem consumes one use of the token described by rawText on asOfDate
// (YYYY-MM-DD; empty means today). Returns:
//   - ErrInvalidPayload if rawText does not decode
//   - ErrTokenNotFound if no token has the decoded id
//   - ErrPayloadMismatch if verification is on and the scan differs from the record
//   - ErrTokenNotActive if the token is not ACTIVE
//   - ErrOutOfWindow if asOfDate is outside [start, end]
//   - ErrAllowanceExhausted if no uses remain
//   - ErrConcurrentUpdate if the conditional write kept losing races
//   - ErrPartialFailure, together with the result, if the counters advanced
//     but the log append failed
//
// Rejections never write to the store.
func (s *RedemptionService) Redeem(ctx context.Context, rawText, asOfDate string) (*model.RedemptionResult, error) {
	scanned, ok := payload.Decode(rawText)
	if !ok {
		return nil, ErrInvalidPayload
	}
	if asOfDate == "" {
		asOfDate = s.Today()
	}
	id := NormalizeID(scanned.ID)

	var token *model.Token
	for attempt := 1; ; attempt++ {
		var err error
		token, err = s.tokenRepo.FindByID(ctx, id)
		if err != nil {
			return nil, errors.Wrap(err, "find token")
		}
		if token == nil {
			return nil, ErrTokenNotFound
		}
		if err := s.evaluate(token, scanned, asOfDate); err != nil {
			return nil, err
		}

		newUsed := token.Used + 1
		newStatus := model.StatusFor(newUsed, token.Allowance)

		if !s.opts.CompareAndSet {
			if err := s.tokenRepo.UpdateCounters(ctx, token.ID, newUsed, newStatus); err != nil {
				return nil, errors.Wrap(err, "update counters")
			}
		} else {
			applied, err := s.tokenRepo.UpdateIfUsedEquals(ctx, token.ID, token.Used, newUsed, newStatus)
			if err != nil {
				return nil, errors.Wrap(err, "update counters")
			}
			if !applied {
				if attempt < maxRedeemAttempts {
					continue
				}
				return nil, ErrConcurrentUpdate
			}
		}

		token.Used = newUsed
		token.Status = newStatus
		break
	}

	// Counters moved; listings are stale from here on regardless of the log.
	s.cache.Invalidate()

	now := s.clock.Now().UTC()
	result := &model.RedemptionResult{
		TokenID:    token.ID,
		User:       token.User,
		Type:       token.Type,
		Used:       token.Used,
		Allowance:  token.Allowance,
		Remaining:  token.Remaining(),
		Status:     token.Status,
		RedeemedAt: now,
	}

	entry := &model.RedemptionLogEntry{
		Timestamp:   now,
		TokenID:     token.ID,
		UserScanned: token.User,
		Note:        NoteRedeemed,
	}
	if err := s.logRepo.Append(ctx, entry); err != nil {
		log.Error().
			Err(err).
			Str("token_id", token.ID).
			Int("used", token.Used).
			Time("redeemed_at", now).
			Msg("redemption log append failed, uses log needs reconciliation")
		return result, errors.Mark(errors.Wrap(err, "append redemption log"), ErrPartialFailure)
	}

	return result, nil
}

// evaluate applies the business rules in order. Status is checked before the
// window so an exhausted token keeps reporting exhaustion after it expires.
func (s *RedemptionService) evaluate(token *model.Token, scanned payload.Fields, asOfDate string) error {
	if s.opts.VerifyPayload && !scanned.Matches(FieldsOf(token)) {
		return ErrPayloadMismatch
	}
	if token.Status != model.StatusActive {
		if token.Status == model.StatusExhausted {
			return ErrAllowanceExhausted
		}
		return ErrTokenNotActive
	}
	if !validity.IsWithinWindow(asOfDate, token.Start, token.End) {
		return ErrOutOfWindow
	}
	if validity.Remaining(token.Allowance, token.Used) <= 0 {
		return ErrAllowanceExhausted
	}
	return nil
}

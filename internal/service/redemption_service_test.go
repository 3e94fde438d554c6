package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/allowance-token-system/internal/clock"
	"github.com/fairyhunter13/allowance-token-system/internal/model"
	"github.com/fairyhunter13/allowance-token-system/internal/payload"
)

var strictOpts = RedemptionOptions{CompareAndSet: true, VerifyPayload: true}

func activeToken() *model.Token {
	t := &model.Token{
		ID:        "A1B2C3D4E5",
		User:      "Asha",
		Type:      model.TokenTypeLunch,
		Start:     "2024-01-01",
		End:       "2024-01-31",
		Allowance: 2,
		Used:      0,
		Status:    model.StatusActive,
		IssuedAt:  issueTime,
	}
	t.Payload = payload.Encode(FieldsOf(t))
	return t
}

// issueLunchToken issues Asha's two-use January lunch token into a fresh fake store.
func issueLunchToken(t *testing.T) (*fakeStore, *model.Token, *clock.MockClock) {
	t.Helper()
	store := newFakeStore()
	clk := clock.NewMockClock(issueTime)
	issuer := NewIssuanceService(store, NewUUIDGenerator(DefaultIDLength), clk, nil)
	token, err := issuer.Issue(context.Background(), lunchParams())
	require.NoError(t, err)
	return store, token, clk
}

// Redeeming a two-use token until it is exhausted.
func TestRedemptionService_RedeemUntilExhausted(t *testing.T) {
	store, token, clk := issueLunchToken(t)
	inv := &countingInvalidator{}
	svc := NewRedemptionService(store, fakeLog{store}, clk, inv, strictOpts)
	ctx := context.Background()

	// first redemption leaves one use
	clk.Set(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))
	res, err := svc.Redeem(ctx, token.Payload, "2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Used)
	assert.Equal(t, 1, res.Remaining)
	assert.Equal(t, model.StatusActive, res.Status)
	assert.Equal(t, "Asha", res.User)
	assert.Equal(t, 1, store.get(token.ID).Used)
	entries := store.logEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, token.ID, entries[0].TokenID)
	assert.Equal(t, "Asha", entries[0].UserScanned)
	assert.Equal(t, NoteRedeemed, entries[0].Note)
	assert.Equal(t, clk.Now().UTC(), entries[0].Timestamp)

	// second redemption exhausts
	res, err = svc.Redeem(ctx, token.Payload, "2024-01-20")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Used)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, model.StatusExhausted, res.Status)
	assert.Equal(t, model.StatusExhausted, store.get(token.ID).Status)
	assert.Equal(t, 2, inv.calls)

	// third redemption is rejected without writes
	writes := store.writes
	res, err = svc.Redeem(ctx, token.Payload, "2024-01-25")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrAllowanceExhausted), "got %v", err)
	assert.Equal(t, writes, store.writes, "store unchanged")
	assert.Len(t, store.logEntries(), 2, "no log entry")
	assert.Equal(t, 2, inv.calls)
}

// An ACTIVE token with allowance left is rejected past its end.
func TestRedemptionService_OutOfWindow(t *testing.T) {
	store, token, clk := issueLunchToken(t)
	svc := NewRedemptionService(store, fakeLog{store}, clk, nil, strictOpts)

	_, err := svc.Redeem(context.Background(), token.Payload, "2024-01-15")
	require.NoError(t, err)

	res, err := svc.Redeem(context.Background(), token.Payload, "2024-02-05")

	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, ErrOutOfWindow))
	assert.Equal(t, 1, store.get(token.ID).Used)
	assert.Len(t, store.logEntries(), 1)
}

func TestRedemptionService_BeforeStart(t *testing.T) {
	store, token, clk := issueLunchToken(t)
	svc := NewRedemptionService(store, fakeLog{store}, clk, nil, strictOpts)

	_, err := svc.Redeem(context.Background(), token.Payload, "2023-12-31")

	assert.True(t, errors.Is(err, ErrOutOfWindow))
	assert.Equal(t, 0, store.get(token.ID).Used)
}

func TestRedemptionService_DefaultsToToday(t *testing.T) {
	store, token, clk := issueLunchToken(t)
	svc := NewRedemptionService(store, fakeLog{store}, clk, nil, strictOpts)

	// The issuance clock sits in December, before the window opens.
	_, err := svc.Redeem(context.Background(), token.Payload, "")
	assert.True(t, errors.Is(err, ErrOutOfWindow))

	clk.Set(time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC))
	res, err := svc.Redeem(context.Background(), token.Payload, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Used)
}

func TestRedemptionService_TodayUsesConfiguredZone(t *testing.T) {
	clk := clock.NewMockClock(time.Date(2024, 1, 31, 20, 0, 0, 0, time.UTC))
	opts := strictOpts
	opts.Location = time.FixedZone("UTC+5", 5*60*60)
	svc := NewRedemptionService(&mockTokenRepository{}, &mockLogRepository{}, clk, nil, opts)

	assert.Equal(t, "2024-02-01", svc.Today())
}

// Undecodable text, including a bare id, never reaches the store.
func TestRedemptionService_InvalidPayload(t *testing.T) {
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) {
			t.Fatal("store must not be consulted for an undecodable payload")
			return nil, nil
		},
	}
	svc := NewRedemptionService(repo, &mockLogRepository{}, nil, nil, strictOpts)

	for _, raw := range []string{"", "MTK|id=ABC", "hello", "MTK|id=A|user=B|type=Lunch|allow=x|start=2024-01-01|end=2024-01-31"} {
		res, err := svc.Redeem(context.Background(), raw, "2024-01-15")
		assert.Nil(t, res)
		assert.True(t, errors.Is(err, ErrInvalidPayload), "input %q", raw)
	}
}

func TestRedemptionService_TokenNotFound(t *testing.T) {
	var lookedUp string
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) {
			lookedUp = id
			return nil, nil
		},
	}
	svc := NewRedemptionService(repo, &mockLogRepository{}, nil, nil, strictOpts)
	raw := "MTK|id=deadbeef00|user=Asha|type=Lunch|allow=2|start=2024-01-01|end=2024-01-31"

	_, err := svc.Redeem(context.Background(), raw, "2024-01-15")

	assert.True(t, errors.Is(err, ErrTokenNotFound))
	assert.Equal(t, "DEADBEEF00", lookedUp, "ids are matched case-insensitively")
}

func TestRedemptionService_LowercaseIDRedeems(t *testing.T) {
	store, token, clk := issueLunchToken(t)
	svc := NewRedemptionService(store, fakeLog{store}, clk, nil, strictOpts)
	fields := FieldsOf(token)
	fields.ID = strings.ToLower(fields.ID)

	_, err := svc.Redeem(context.Background(), payload.Encode(fields), "2024-01-15")

	require.NoError(t, err)
	assert.Equal(t, 1, store.get(token.ID).Used)
}

func TestRedemptionService_PayloadMismatch(t *testing.T) {
	store, token, clk := issueLunchToken(t)
	forged := FieldsOf(token)
	forged.Allowance = 50
	forged.End = "2024-12-31"
	raw := payload.Encode(forged)

	strict := NewRedemptionService(store, fakeLog{store}, clk, nil, strictOpts)
	_, err := strict.Redeem(context.Background(), raw, "2024-01-15")
	assert.True(t, errors.Is(err, ErrPayloadMismatch))
	assert.Equal(t, 0, store.get(token.ID).Used)

	lenient := NewRedemptionService(store, fakeLog{store}, clk, nil, RedemptionOptions{CompareAndSet: true})
	res, err := lenient.Redeem(context.Background(), raw, "2024-01-15")
	require.NoError(t, err, "without verification only the id is trusted")
	assert.Equal(t, 2, res.Allowance, "stored allowance wins over scanned")
}

func TestRedemptionService_NotActive(t *testing.T) {
	tok := activeToken()
	tok.Status = "SUSPENDED"
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) { return tok, nil },
		updateIfUsedEqualsFn: func(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error) {
			t.Fatal("rejected redemption must not write")
			return false, nil
		},
	}
	svc := NewRedemptionService(repo, &mockLogRepository{}, nil, nil, strictOpts)

	_, err := svc.Redeem(context.Background(), tok.Payload, "2024-01-15")

	assert.True(t, errors.Is(err, ErrTokenNotActive))
}

func TestRedemptionService_ExhaustedOutsideWindowStaysExhausted(t *testing.T) {
	tok := activeToken()
	tok.Used, tok.Status = 2, model.StatusExhausted
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) { return tok, nil },
	}
	svc := NewRedemptionService(repo, &mockLogRepository{}, nil, nil, strictOpts)

	_, err := svc.Redeem(context.Background(), tok.Payload, "2024-03-01")

	assert.True(t, errors.Is(err, ErrAllowanceExhausted))
}

func TestRedemptionService_InconsistentActiveRowIsExhausted(t *testing.T) {
	tok := activeToken()
	tok.Used = 2 // status says ACTIVE but nothing remains
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) { return tok, nil },
	}
	svc := NewRedemptionService(repo, &mockLogRepository{}, nil, nil, strictOpts)

	_, err := svc.Redeem(context.Background(), tok.Payload, "2024-01-15")

	assert.True(t, errors.Is(err, ErrAllowanceExhausted))
}

func TestRedemptionService_CompareAndSetRetriesLostRace(t *testing.T) {
	tok := activeToken()
	finds, updates := 0, 0
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) {
			finds++
			copyTok := *tok
			return &copyTok, nil
		},
		updateIfUsedEqualsFn: func(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error) {
			updates++
			if updates == 1 {
				// Another scanner got there first.
				tok.Used = 1
				return false, nil
			}
			assert.Equal(t, 1, expectedUsed)
			assert.Equal(t, 2, newUsed)
			assert.Equal(t, model.StatusExhausted, newStatus)
			return true, nil
		},
	}
	svc := NewRedemptionService(repo, &mockLogRepository{}, nil, nil, strictOpts)

	res, err := svc.Redeem(context.Background(), tok.Payload, "2024-01-15")

	require.NoError(t, err)
	assert.Equal(t, 2, finds)
	assert.Equal(t, 2, res.Used)
	assert.Equal(t, model.StatusExhausted, res.Status)
}

func TestRedemptionService_CompareAndSetRaceEndsInExhaustion(t *testing.T) {
	tok := activeToken()
	tok.Allowance, tok.Payload = 1, ""
	tok.Payload = payload.Encode(FieldsOf(tok))
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) {
			copyTok := *tok
			return &copyTok, nil
		},
		updateIfUsedEqualsFn: func(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error) {
			tok.Used, tok.Status = 1, model.StatusExhausted
			return false, nil
		},
	}
	svc := NewRedemptionService(repo, &mockLogRepository{}, nil, nil, strictOpts)

	_, err := svc.Redeem(context.Background(), tok.Payload, "2024-01-15")

	assert.True(t, errors.Is(err, ErrAllowanceExhausted), "re-evaluation sees the winner's write")
}

func TestRedemptionService_CompareAndSetGivesUp(t *testing.T) {
	tok := activeToken()
	tok.Allowance = 100
	tok.Payload = payload.Encode(FieldsOf(tok))
	updates := 0
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) {
			copyTok := *tok
			return &copyTok, nil
		},
		updateIfUsedEqualsFn: func(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error) {
			updates++
			tok.Used++
			return false, nil
		},
	}
	appended := false
	logRepo := &mockLogRepository{
		appendFn: func(ctx context.Context, entry *model.RedemptionLogEntry) error {
			appended = true
			return nil
		},
	}
	svc := NewRedemptionService(repo, logRepo, nil, nil, strictOpts)

	_, err := svc.Redeem(context.Background(), tok.Payload, "2024-01-15")

	assert.True(t, errors.Is(err, ErrConcurrentUpdate))
	assert.Equal(t, maxRedeemAttempts, updates)
	assert.False(t, appended)
}

func TestRedemptionService_BestEffortUsesUpdateCounters(t *testing.T) {
	tok := activeToken()
	var gotUsed int
	var gotStatus model.TokenStatus
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) { return tok, nil },
		updateCountersFn: func(ctx context.Context, id string, newUsed int, newStatus model.TokenStatus) error {
			gotUsed, gotStatus = newUsed, newStatus
			return nil
		},
		updateIfUsedEqualsFn: func(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error) {
			t.Fatal("conditional update used with compare-and-set disabled")
			return false, nil
		},
	}
	svc := NewRedemptionService(repo, &mockLogRepository{}, nil, nil, RedemptionOptions{VerifyPayload: true})

	res, err := svc.Redeem(context.Background(), tok.Payload, "2024-01-15")

	require.NoError(t, err)
	assert.Equal(t, 1, gotUsed)
	assert.Equal(t, model.StatusActive, gotStatus)
	assert.Equal(t, 1, res.Remaining)
}

func TestRedemptionService_UpdateNotFound(t *testing.T) {
	tok := activeToken()
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) { return tok, nil },
		updateCountersFn: func(ctx context.Context, id string, newUsed int, newStatus model.TokenStatus) error {
			return ErrNotFound
		},
	}
	svc := NewRedemptionService(repo, &mockLogRepository{}, nil, nil, RedemptionOptions{})

	_, err := svc.Redeem(context.Background(), tok.Payload, "2024-01-15")

	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedemptionService_StoreErrorOnLookup(t *testing.T) {
	repo := &mockTokenRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Token, error) {
			return nil, ErrStore
		},
	}
	inv := &countingInvalidator{}
	svc := NewRedemptionService(repo, &mockLogRepository{}, nil, inv, strictOpts)

	_, err := svc.Redeem(context.Background(), activeToken().Payload, "2024-01-15")

	assert.True(t, errors.Is(err, ErrStore))
	assert.Equal(t, 0, inv.calls)
}

func TestRedemptionService_PartialFailure(t *testing.T) {
	store, token, clk := issueLunchToken(t)
	store.appendErr = errors.New("append row: quota exceeded")
	inv := &countingInvalidator{}
	svc := NewRedemptionService(store, fakeLog{store}, clk, inv, strictOpts)

	res, err := svc.Redeem(context.Background(), token.Payload, "2024-01-15")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPartialFailure))
	require.NotNil(t, res, "result describes the counter that did advance")
	assert.Equal(t, 1, res.Used)
	assert.Equal(t, 1, store.get(token.ID).Used)
	assert.Empty(t, store.logEntries())
	assert.Equal(t, 1, inv.calls, "cache invalidated even on partial failure")
}

// Exhaustive run: used never exceeds allowance and status tracks used.
func TestRedemptionService_CountersInvariant(t *testing.T) {
	store, token, clk := issueLunchToken(t)
	svc := NewRedemptionService(store, fakeLog{store}, clk, nil, strictOpts)

	for i := 0; i < 6; i++ {
		_, _ = svc.Redeem(context.Background(), token.Payload, "2024-01-10")
		got := store.get(token.ID)
		assert.GreaterOrEqual(t, got.Used, 0)
		assert.LessOrEqual(t, got.Used, got.Allowance)
		assert.Equal(t, got.Used == got.Allowance, got.Status == model.StatusExhausted)
	}
	assert.Len(t, store.logEntries(), token.Allowance)
}

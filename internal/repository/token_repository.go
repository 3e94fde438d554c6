package repository

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
	"github.com/fairyhunter13/allowance-token-system/internal/service"
)

// DefaultTimeout bounds every store call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Column order matches the tokens row schema.
const tokenColumns = `id, "user", type, start, "end", allowance, used, status, issued_ts, payload`

// PoolInterface defines the database operations needed by repositories.
// This allows for easier testing with mocks.
type PoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// TokenRepository provides data access for tokens using pgx.
type TokenRepository struct {
	pool    PoolInterface
	timeout time.Duration
}

// NewTokenRepository creates a new TokenRepository with the given pool.
func NewTokenRepository(pool *pgxpool.Pool, timeout time.Duration) *TokenRepository {
	return NewTokenRepositoryWithPool(pool, timeout)
}

// NewTokenRepositoryWithPool creates a new TokenRepository with a custom pool interface.
// This is primarily used for testing.
func NewTokenRepositoryWithPool(pool PoolInterface, timeout time.Duration) *TokenRepository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TokenRepository{pool: pool, timeout: timeout}
}

// Create inserts a new token row.
// Returns service.ErrTokenExists if the id is already taken.
func (r *TokenRepository) Create(ctx context.Context, token *model.Token) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO tokens (`+tokenColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		token.ID, token.User, string(token.Type), token.Start, token.End,
		token.Allowance, token.Used, string(token.Status), token.IssuedAt, token.Payload)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return service.ErrTokenExists
		}
		return storeError(err, "insert token")
	}
	return nil
}

// FindByID retrieves a token by its id.
// Returns nil, nil if the token is not found (service layer handles this).
func (r *TokenRepository) FindByID(ctx context.Context, id string) (*model.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	token, err := scanToken(r.pool.QueryRow(ctx, `SELECT `+tokenColumns+` FROM tokens WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, storeError(err, "get token by id "+id)
	}
	return token, nil
}

// UpdateCounters overwrites used and status for id.
// Returns service.ErrNotFound if no row matches.
func (r *TokenRepository) UpdateCounters(ctx context.Context, id string, newUsed int, newStatus model.TokenStatus) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE tokens SET used = $2, status = $3 WHERE id = $1`,
		id, newUsed, string(newStatus))
	if err != nil {
		return storeError(err, "update counters for "+id)
	}
	if tag.RowsAffected() == 0 {
		return service.ErrNotFound
	}
	return nil
}

// UpdateIfUsedEquals overwrites used and status only while used still equals
// expectedUsed. Returns false, nil when another writer advanced the row first
// and service.ErrNotFound if no row matches id.
func (r *TokenRepository) UpdateIfUsedEquals(ctx context.Context, id string, expectedUsed, newUsed int, newStatus model.TokenStatus) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		`UPDATE tokens SET used = $3, status = $4 WHERE id = $1 AND used = $2`,
		id, expectedUsed, newUsed, string(newStatus))
	if err != nil {
		return false, storeError(err, "conditional update for "+id)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tokens WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, storeError(err, "check token "+id)
	}
	if !exists {
		return false, service.ErrNotFound
	}
	return false, nil
}

// List retrieves every token in issuance order.
// Returns an empty slice (not nil) when no tokens exist.
func (r *TokenRepository) List(ctx context.Context) ([]model.Token, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT `+tokenColumns+` FROM tokens ORDER BY issued_ts, id`)
	if err != nil {
		return nil, storeError(err, "list tokens")
	}
	defer rows.Close()

	tokens := []model.Token{}
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, storeError(err, "scan token row")
		}
		tokens = append(tokens, *token)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "iterate token rows")
	}
	return tokens, nil
}

func scanToken(row pgx.Row) (*model.Token, error) {
	var (
		token     model.Token
		tokenType string
		status    string
	)
	err := row.Scan(
		&token.ID,
		&token.User,
		&tokenType,
		&token.Start,
		&token.End,
		&token.Allowance,
		&token.Used,
		&status,
		&token.IssuedAt,
		&token.Payload,
	)
	if err != nil {
		return nil, err
	}
	token.Type = model.TokenType(tokenType)
	token.Status = model.TokenStatus(status)
	return &token, nil
}

// storeError marks a transport, auth or timeout failure as service.ErrStore.
func storeError(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), service.ErrStore)
}

package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/allowance-token-system/internal/model"
)

// LogPoolInterface defines the database operations needed by RedemptionLogRepository.
type LogPoolInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// RedemptionLogRepository provides append-only access to the uses table.
type RedemptionLogRepository struct {
	pool    LogPoolInterface
	timeout time.Duration
}

// NewRedemptionLogRepository creates a new RedemptionLogRepository with the given pool.
func NewRedemptionLogRepository(pool *pgxpool.Pool, timeout time.Duration) *RedemptionLogRepository {
	return NewRedemptionLogRepositoryWithPool(pool, timeout)
}

// NewRedemptionLogRepositoryWithPool creates a new RedemptionLogRepository with a custom pool interface.
// This is primarily used for testing.
func NewRedemptionLogRepositoryWithPool(pool LogPoolInterface, timeout time.Duration) *RedemptionLogRepository {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &RedemptionLogRepository{pool: pool, timeout: timeout}
}

// Append inserts one uses row. Rows are never updated or deleted.
func (r *RedemptionLogRepository) Append(ctx context.Context, entry *model.RedemptionLogEntry) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.pool.Exec(ctx,
		`INSERT INTO uses (ts, token_id, user_scanned, note) VALUES ($1, $2, $3, $4)`,
		entry.Timestamp, entry.TokenID, entry.UserScanned, entry.Note)
	if err != nil {
		return storeError(err, "append redemption log")
	}
	return nil
}

// List retrieves the whole uses log, oldest first.
// On success, returns an empty slice (not nil) when the log is empty.
func (r *RedemptionLogRepository) List(ctx context.Context) ([]model.RedemptionLogEntry, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.pool.Query(ctx, `SELECT ts, token_id, user_scanned, note FROM uses ORDER BY ts`)
	if err != nil {
		return nil, storeError(err, "list redemption log")
	}
	defer rows.Close()

	entries := []model.RedemptionLogEntry{}
	for rows.Next() {
		var e model.RedemptionLogEntry
		if err := rows.Scan(&e.Timestamp, &e.TokenID, &e.UserScanned, &e.Note); err != nil {
			return nil, storeError(err, "scan uses row")
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError(err, "iterate uses rows")
	}
	return entries, nil
}

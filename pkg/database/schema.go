package database

import (
	"context"

	"github.com/cockroachdb/errors"
)

// Schema creates the tokens and uses tables. Column order follows the row
// contract: tokens(id, user, type, start, end, allowance, used, status,
// issued_ts, payload) and uses(ts, token_id, user_scanned, note).
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS tokens (
		id        TEXT PRIMARY KEY,
		"user"    TEXT NOT NULL,
		type      TEXT NOT NULL,
		start     TEXT NOT NULL,
		"end"     TEXT NOT NULL,
		allowance INTEGER NOT NULL CHECK (allowance >= 1),
		used      INTEGER NOT NULL DEFAULT 0 CHECK (used >= 0 AND used <= allowance),
		status    TEXT NOT NULL CHECK (status IN ('ACTIVE', 'EXHAUSTED')),
		issued_ts TIMESTAMPTZ NOT NULL DEFAULT now(),
		payload   TEXT NOT NULL,
		CHECK (start <= "end")
	)`,
	`CREATE TABLE IF NOT EXISTS uses (
		ts           TIMESTAMPTZ NOT NULL DEFAULT now(),
		token_id     TEXT NOT NULL REFERENCES tokens (id),
		user_scanned TEXT NOT NULL,
		note         TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS uses_token_id_idx ON uses (token_id)`,
	`CREATE INDEX IF NOT EXISTS uses_ts_idx ON uses (ts)`,
}

// EnsureSchema applies Schema. Every statement is idempotent.
func EnsureSchema(ctx context.Context, db Querier) error {
	for i, stmt := range Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return errors.Wrapf(err, "apply schema statement %d", i+1)
		}
	}
	return nil
}

package service

import "github.com/cockroachdb/errors"

// Kinds are attached to causes with errors.Mark, which keeps the cause's
// message. Classify with github.com/cockroachdb/errors.Is: the standard
// library's errors.Is and testify's assert.ErrorIs do not see marks.

// Redemption outcomes.
var (
	// ErrInvalidPayload is returned when the scanned text cannot be decoded
	ErrInvalidPayload = errors.New("invalid token payload")

	// ErrTokenNotFound is returned when no token exists for the decoded id
	ErrTokenNotFound = errors.New("token not found")

	// ErrPayloadMismatch is returned when the scanned fields differ from the stored record
	ErrPayloadMismatch = errors.New("token payload does not match issued record")

	// ErrTokenNotActive is returned when the stored status is not ACTIVE
	ErrTokenNotActive = errors.New("token not active")

	// ErrOutOfWindow is returned when the redemption date is outside [start, end]
	ErrOutOfWindow = errors.New("token outside validity window")

	// ErrAllowanceExhausted is returned when no redemptions remain
	ErrAllowanceExhausted = errors.New("token allowance exhausted")

	// ErrConcurrentUpdate is returned when the conditional update kept losing races
	ErrConcurrentUpdate = errors.New("token updated concurrently")

	// ErrPartialFailure is returned when the counters advanced but the log append failed.
	// The redemption took effect; the uses log needs manual reconciliation.
	ErrPartialFailure = errors.New("redemption recorded without log entry")
)

// Issuance outcomes.
var (
	// ErrValidation is returned when issuance input violates business rules
	ErrValidation = errors.New("validation error")

	// ErrTokenExists is returned by the store when the generated id is already taken
	ErrTokenExists = errors.New("token id already exists")
)

// Store outcomes.
var (
	// ErrNotFound is returned by the store when an update matches no row
	ErrNotFound = errors.New("token row not found")

	// ErrStore is returned for transport, auth and timeout failures
	ErrStore = errors.New("token store unavailable")
)

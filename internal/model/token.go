package model

import (
	"strings"
	"time"

	"github.com/fairyhunter13/allowance-token-system/internal/validity"
)

// TokenType is the closed set of allowance categories.
type TokenType string

const (
	TokenTypeBreakfast TokenType = "Breakfast"
	TokenTypeLunch     TokenType = "Lunch"
	TokenTypeDinner    TokenType = "Dinner"
	TokenTypeSnacks    TokenType = "Snacks"
	TokenTypeCoupon    TokenType = "Coupon"
)

// TokenTypes lists every accepted type in display order.
var TokenTypes = []TokenType{
	TokenTypeBreakfast,
	TokenTypeLunch,
	TokenTypeDinner,
	TokenTypeSnacks,
	TokenTypeCoupon,
}

// ParseTokenType matches s case-insensitively against TokenTypes and
// returns the canonical spelling.
func ParseTokenType(s string) (TokenType, bool) {
	s = strings.TrimSpace(s)
	for _, t := range TokenTypes {
		if strings.EqualFold(s, string(t)) {
			return t, true
		}
	}
	return "", false
}

// TokenStatus is persisted alongside the counters.
type TokenStatus string

const (
	StatusActive    TokenStatus = "ACTIVE"
	StatusExhausted TokenStatus = "EXHAUSTED"
)

// StatusFor derives the status a token must carry for the given counters.
func StatusFor(used, allowance int) TokenStatus {
	if used >= allowance {
		return StatusExhausted
	}
	return StatusActive
}

// Token is a redeemable grant issued to a holder.
type Token struct {
	ID        string      `json:"id"`
	User      string      `json:"user"`
	Type      TokenType   `json:"type"`
	Start     string      `json:"start"`
	End       string      `json:"end"`
	Allowance int         `json:"allowance"`
	Used      int         `json:"used"`
	Status    TokenStatus `json:"status"`
	IssuedAt  time.Time   `json:"issued_ts"`
	Payload   string      `json:"payload"`
}

// Remaining returns the number of redemptions left, never negative.
func (t *Token) Remaining() int {
	return validity.Remaining(t.Allowance, t.Used)
}

// RedemptionLogEntry is one row of the append-only uses log.
type RedemptionLogEntry struct {
	Timestamp   time.Time `json:"ts"`
	TokenID     string    `json:"token_id"`
	UserScanned string    `json:"user_scanned"`
	Note        string    `json:"note"`
}

// RedemptionResult describes a token after a successful redemption.
type RedemptionResult struct {
	TokenID    string      `json:"token_id"`
	User       string      `json:"user"`
	Type       TokenType   `json:"type"`
	Used       int         `json:"used"`
	Allowance  int         `json:"allowance"`
	Remaining  int         `json:"remaining"`
	Status     TokenStatus `json:"status"`
	RedeemedAt time.Time   `json:"redeemed_at"`
}

// IssueParams carries the issuance inputs after transport decoding.
type IssueParams struct {
	User      string
	Type      string
	Start     string
	End       string
	Allowance int
}

// TypeSummary aggregates tokens of one type for dashboards.
type TypeSummary struct {
	Type           TokenType `json:"type"`
	Issued         int       `json:"issued"`
	Active         int       `json:"active"`
	Exhausted      int       `json:"exhausted"`
	TotalAllowance int       `json:"total_allowance"`
	TotalUsed      int       `json:"total_used"`
}

// DeliveryResult is what rendering/delivery collaborators report back.
// Collaborators never return errors; failures are described in Message.
type DeliveryResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

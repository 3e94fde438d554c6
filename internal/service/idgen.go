package service

import (
	"encoding/hex"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

const (
	// MinIDLength and MaxIDLength bound token id length. The first twelve hex
	// digits of a v4 UUID are all random, so ids never include version bits.
	MinIDLength     = 8
	MaxIDLength     = 12
	DefaultIDLength = 10
)

// UUIDGenerator derives uppercase hexadecimal ids from random UUIDs.
type UUIDGenerator struct {
	length int
}

// NewUUIDGenerator creates a generator for ids of the given length, clamped
// to [MinIDLength, MaxIDLength].
func NewUUIDGenerator(length int) *UUIDGenerator {
	if length < MinIDLength {
		length = MinIDLength
	}
	if length > MaxIDLength {
		length = MaxIDLength
	}
	return &UUIDGenerator{length: length}
}

// NewID returns a fresh id.
func (g *UUIDGenerator) NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", errors.Wrap(err, "generate token id")
	}
	return strings.ToUpper(hex.EncodeToString(u[:]))[:g.length], nil
}

// NormalizeID canonicalizes a presented id for lookup.
func NormalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

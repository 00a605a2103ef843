// Package id mints account identifiers: 32 lowercase hex characters,
// the format every caller-facing endpoint validates against.
package id

import (
	"crypto/rand"
	"encoding/hex"
)

// NewAccountID returns a fresh random account identifier.
func NewAccountID() string {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

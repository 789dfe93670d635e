package phone

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize strips every non-digit character from a raw phone number.
// It never fails; a string with no digits normalizes to "".
func Normalize(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IdentityKey derives the stable client key from a raw phone number.
// Two numbers that normalize to the same digit string always produce the
// same key, regardless of formatting. The key is a one-way hash: it is safe
// to persist next to readable columns and cannot be reversed into the
// number it was derived from.
func IdentityKey(raw string) string {
	sum := sha256.Sum256([]byte(Normalize(raw)))
	return hex.EncodeToString(sum[:])
}

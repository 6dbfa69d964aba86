package util

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a 24-char hex identifier used as primary key.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// NewReference returns prefix followed by n upper-case hex characters taken
// from a random UUID (n is clamped to 1..32). Used for order numbers and
// product articles.
func NewReference(prefix string, n int) string {
	if n <= 0 {
		n = 8
	}
	if n > 32 {
		n = 32
	}
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + strings.ToUpper(raw[:n])
}

package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var (
	userIDPattern    = regexp.MustCompile(`^[0-9]{8}$`)
	adminIDPattern   = regexp.MustCompile(`^A[0-9]{4}$`)
	serviceIDPattern = regexp.MustCompile(`^CS[0-9]{4}$`)

	randInt = rand.Int
)

// NewUserID returns a random 8-digit user identifier that never starts with 0.
func NewUserID() (string, error) {
	n, err := randInt(rand.Reader, big.NewInt(90000000))
	if err != nil {
		return "", fmt.Errorf("generate user id: %w", err)
	}
	return fmt.Sprintf("%08d", n.Int64()+10000000), nil
}

// FormatAdminID renders an admin sequence number as A####.
func FormatAdminID(seq int) string {
	return fmt.Sprintf("A%04d", seq%10000)
}

// FormatServiceID renders a customer-service sequence number as CS####.
func FormatServiceID(seq int) string {
	return fmt.Sprintf("CS%04d", seq%10000)
}

func IsUserID(id string) bool    { return userIDPattern.MatchString(id) }
func IsAdminID(id string) bool   { return adminIDPattern.MatchString(id) }
func IsServiceID(id string) bool { return serviceIDPattern.MatchString(id) }

// NewSessionID returns a 32-byte random hex session identifier.
func NewSessionID() (string, error) {
	return RandomHex(32)
}

// RandomHex returns n random bytes hex-encoded.
func RandomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// IdempotencyKey joins parts into a deterministic key, e.g.
// IdempotencyKey("task_auto_confirm", 42, "12345678") -> task_auto_confirm_42_12345678.
func IdempotencyKey(prefix string, parts ...any) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteByte('_')
		fmt.Fprint(&b, p)
	}
	return b.String()
}

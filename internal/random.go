package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// NewNumericCode returns a uniformly random numeric code with the given
// number of digits, zero-padded. Uses crypto/rand; rejection-free because
// the draw is over the full 10^digits range.
func NewNumericCode(digits int) (string, error) {
	if digits < 1 || digits > 18 {
		return "", errors.New("invalid code length")
	}

	bound := big.NewInt(10)
	bound.Exp(bound, big.NewInt(int64(digits)), nil)

	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", err
	}

	code := n.String()
	if len(code) < digits {
		code = strings.Repeat("0", digits-len(code)) + code
	}
	return code, nil
}

// NewOpaqueToken returns size bytes of entropy as compact base64url.
func NewOpaqueToken(size int) (string, error) {
	if size <= 0 {
		return "", errors.New("invalid token size")
	}

	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashSecret is the canonical digest for stored secrets (one-time codes,
// blacklisted tokens). Records never hold plaintext.
func HashSecret(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

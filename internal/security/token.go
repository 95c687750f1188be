package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrEmptySecret is returned when no signing secret is configured.
	ErrEmptySecret = errors.New("secret cannot be empty")
	// ErrInvalidToken covers malformed tokens and signature mismatches.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned for a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token has expired")
)

var now = time.Now

// GenerateToken creates a relay token that authorizes sending records to
// dataset until ttl elapses. The token has the form "<expiresAt>:<hex hmac>".
func GenerateToken(secret, dataset string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	expiresAt := now().Add(ttl).Unix()
	return strconv.FormatInt(expiresAt, 10) + ":" + sign(secret, dataset, expiresAt), nil
}

// ValidateToken checks that token was issued with secret for dataset and
// has not expired.
func ValidateToken(secret, dataset, token string) error {
	if secret == "" {
		return ErrEmptySecret
	}

	expiresStr, signature, ok := strings.Cut(token, ":")
	if !ok || signature == "" {
		return fmt.Errorf("%w: expected <expires>:<signature>", ErrInvalidToken)
	}
	expiresAt, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad expiry: %v", ErrInvalidToken, err)
	}

	// Signature first so that expiry is only reported for genuine tokens
	expected := sign(secret, dataset, expiresAt)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("%w: signature mismatch", ErrInvalidToken)
	}

	if expiration := time.Unix(expiresAt, 0); now().After(expiration) {
		return fmt.Errorf("%w (expired at %s)", ErrTokenExpired, expiration.UTC().Format(time.RFC3339))
	}
	return nil
}

func sign(secret, dataset string, expiresAt int64) string {
	h := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(h, "%s:%d", dataset, expiresAt)
	return hex.EncodeToString(h.Sum(nil))
}

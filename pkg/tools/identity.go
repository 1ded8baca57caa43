package tools

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IdentityHeader carries the signed user identity assertion on dynamic
// tool calls. Downstream services verify it instead of trusting a bare
// user ID header.
const IdentityHeader = "X-User-Identity"

// IdentitySigner mints short-lived HS256 identity assertions for the
// user on whose behalf a dynamic tool is called.
type IdentitySigner struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewIdentitySigner creates a signer. TTL zero defaults to 60 seconds;
// assertions are minted per call, so they stay short.
func NewIdentitySigner(secret []byte, issuer string, ttl time.Duration) (*IdentitySigner, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("tools: identity signing secret is required")
	}
	if ttl == 0 {
		ttl = 60 * time.Second
	}
	return &IdentitySigner{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Assertion returns a signed JWT asserting the user's identity.
func (s *IdentitySigner) Assertion(user string) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user,
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("tools: sign identity assertion: %w", err)
	}
	return signed, nil
}

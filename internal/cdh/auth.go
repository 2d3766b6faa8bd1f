package cdh

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"beepsat/internal/domain"
)

// ScopeCommand is the claim scope required on privileged commands.
const ScopeCommand = "command"

// Claims are the verified fields of an uplink auth token.
type Claims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// HasScope reports whether the token carries the given scope.
func (c *Claims) HasScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Verifier checks HS256 tokens against the provisioned ground secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a verifier. An empty secret disables privileged
// commanding entirely: every privileged command is rejected.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates the token and requires the command scope.
// Every failure maps to domain.ErrAuthentication so callers cannot leak
// which check failed to the uplink.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, fmt.Errorf("%w: no command secret provisioned", domain.ErrAuthentication)
	}
	if tokenString == "" {
		return nil, fmt.Errorf("%w: missing token", domain.ErrAuthentication)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrAuthentication, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: invalid token", domain.ErrAuthentication)
	}
	if !claims.HasScope(ScopeCommand) {
		return nil, fmt.Errorf("%w: missing %q scope", domain.ErrAuthentication, ScopeCommand)
	}
	return claims, nil
}

// MintToken signs a command token. Used by the ground tooling and tests.
func MintToken(secret, subject string, scopes []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

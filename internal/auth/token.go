// Package auth verifies bearer tokens issued by the external identity
// provider and maps them onto local user profiles.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingClaims = errors.New("token is missing subject or email")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// UserMetadata is the profile data the identity provider attaches to a token
type UserMetadata struct {
	FullName  string `json:"full_name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Username  string `json:"username,omitempty"`
}

// Claims represents the claims in identity provider tokens
type Claims struct {
	Email            string       `json:"email"`
	EmailConfirmedAt *time.Time   `json:"email_confirmed_at,omitempty"`
	UserMetadata     UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// EmailConfirmed reports whether the provider confirmed the email address
func (c *Claims) EmailConfirmed() bool { return c.EmailConfirmedAt != nil }

// TokenVerifier validates HS256 tokens signed with a shared secret
type TokenVerifier struct {
	secretKey []byte
	parser    *jwt.Parser
}

// NewTokenVerifier creates a verifier for secret
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{
		secretKey: []byte(secret),
		parser:    jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

// Verify parses and validates tokenString and returns its claims
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := v.parser.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return v.secretKey, nil
	})
	if err != nil || !token.Valid {
		if err == nil {
			err = errors.New("token not valid")
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" || strings.TrimSpace(claims.Email) == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

// Sign issues a token for claims. The API never issues tokens itself; this
// serves local development and tests.
func (v *TokenVerifier) Sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

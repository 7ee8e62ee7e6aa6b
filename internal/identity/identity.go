// internal/identity/identity.go
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingUser indicates the identity has no user id.
	ErrMissingUser = errors.New("identity: missing user id")
	// ErrMissingDisplayName indicates the identity has no display name.
	ErrMissingDisplayName = errors.New("identity: missing display name")
	// ErrTokenExpired indicates the auth token's exp claim is in the past.
	ErrTokenExpired = errors.New("identity: auth token expired")
)

// Identity is what the client presents when attaching to a room. AuthToken is
// optional; rooms without auth accept anonymous identities.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	AuthToken   string `json:"authToken,omitempty"`
}

// Validate checks the identity is usable for a connection attempt. Token
// signature verification is the server's job; we only refuse to dial with a
// token we can already tell is expired, so a doomed handshake doesn't burn
// reconnect attempts.
func (id Identity) Validate(now time.Time) error {
	if id.UserID == "" {
		return ErrMissingUser
	}
	if id.DisplayName == "" {
		return ErrMissingDisplayName
	}
	if id.AuthToken == "" {
		return nil
	}
	claims, err := InspectToken(id.AuthToken)
	if err != nil {
		return err
	}
	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(now) {
		return ErrTokenExpired
	}
	return nil
}

// InspectToken decodes a JWT without verifying its signature and returns its
// registered claims. Used for client-side expiry and subject checks only.
func InspectToken(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to decode auth token: %w", err)
	}
	return claims, nil
}

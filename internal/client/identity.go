package client

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is a reporter signed in with the identity provider.
type Identity struct {
	Token         string
	Email         string
	EmailVerified bool
	Subject       string
	ExpiresAt     time.Time
}

// ParseIdentity decodes an identity provider JWT without checking its
// signature; the backend verifies it on submission. An unverified email is
// a validation error, returned together with the decoded identity.
func ParseIdentity(raw string) (*Identity, error) {
	const op = "identity"

	raw = strings.TrimSpace(raw)
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, newValidationError(op, "Identity token is not a valid JWT", err)
	}

	id := &Identity{Token: raw}
	id.Email, _ = claims["email"].(string)
	id.EmailVerified = claimBool(claims["email_verified"])
	id.Subject, _ = claims.GetSubject()
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		id.ExpiresAt = exp.Time
	}

	if id.Email == "" {
		return nil, newValidationError(op, "Identity token carries no email", errors.New("missing email claim"))
	}
	if !id.EmailVerified {
		return id, newValidationError(op, VerifyEmailMessage, nil)
	}
	return id, nil
}

// TokenInfo is what can be read from a session token without verifying it.
type TokenInfo struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry before now.
func (ti *TokenInfo) Expired(now time.Time) bool {
	return !ti.ExpiresAt.IsZero() && now.After(ti.ExpiresAt)
}

// InspectToken reads the claims of a JWT session token for display. The
// second result is false when the token is not a JWT; opaque tokens are
// valid sessions too.
func InspectToken(raw string) (*TokenInfo, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(raw), claims); err != nil {
		return nil, false
	}

	info := &TokenInfo{}
	info.Subject, _ = claims.GetSubject()
	info.Role, _ = claims["role"].(string)
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		info.ExpiresAt = exp.Time
	}
	return info, true
}

// claimBool accepts both true and "true".
func claimBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true")
	default:
		return false
	}
}

// Package session holds the bearer token that authorizes admin requests.
//
// A Session is created once at startup around a Profile and handed to every
// component that needs authorization. There is at most one token per
// profile. Nothing here inspects or expires the token; the backend is the
// only judge of whether it is still valid.
package session

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// TokenKey is the profile entry holding the bearer token.
const TokenKey = "token"

// ErrNoToken is returned when an authorized operation is attempted without
// a stored token.
var ErrNoToken = errors.New("not logged in")

// Session reads and writes the bearer token in a Profile.
type Session struct {
	profile Profile
}

// New wraps profile.
func New(profile Profile) *Session {
	return &Session{profile: profile}
}

// SetToken stores token exactly as given, replacing any previous one.
// A blank token is rejected.
func (s *Session) SetToken(token string) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("refusing to store an empty token")
	}
	if err := s.profile.Set(TokenKey, token); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	return nil
}

// Token returns the stored token, or false when there is none.
func (s *Session) Token() (string, bool) {
	token, ok := s.profile.Get(TokenKey)
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// Require returns the stored token or ErrNoToken.
func (s *Session) Require() (string, error) {
	token, ok := s.Token()
	if !ok {
		return "", ErrNoToken
	}
	return token, nil
}

// Active reports whether a token is stored.
func (s *Session) Active() bool {
	_, ok := s.Token()
	return ok
}

// Clear removes the token.
func (s *Session) Clear() error {
	if err := s.profile.Delete(TokenKey); err != nil {
		return fmt.Errorf("clearing token: %w", err)
	}
	return nil
}

// TokenSource exposes the session to oauth2.Transport. Each call reads the
// profile again, so a request built after login sees the new token.
func (s *Session) TokenSource() oauth2.TokenSource {
	return tokenSource{s: s}
}

type tokenSource struct {
	s *Session
}

func (ts tokenSource) Token() (*oauth2.Token, error) {
	token, err := ts.s.Require()
	if err != nil {
		return nil, err
	}
	return BearerToken(token), nil
}

// BearerToken wraps a raw token for oauth2 transports.
func BearerToken(token string) *oauth2.Token {
	return &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
}

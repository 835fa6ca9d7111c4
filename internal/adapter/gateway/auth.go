package gateway

import (
	"crypto/subtle"

	"wingman/internal/domain"
)

// ClientInfo holds metadata about an authenticated gateway client.
type ClientInfo struct {
	Name   string
	UserID string // owner of the orchestrator this client drives
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// TokenEntry maps one bearer token to a user.
type TokenEntry struct {
	Token  string
	Name   string
	UserID string
}

type authEntry struct {
	token []byte
	info  ClientInfo
}

// StaticTokenAuth authenticates clients against a static token list
// using constant-time comparison to prevent timing attacks.
type StaticTokenAuth struct {
	entries []authEntry
}

// NewStaticTokenAuth builds an authenticator from a set of token entries.
// An entry without a user ID is bound to the default owner.
func NewStaticTokenAuth(entries []TokenEntry) *StaticTokenAuth {
	a := &StaticTokenAuth{
		entries: make([]authEntry, len(entries)),
	}
	for i, e := range entries {
		a.entries[i] = authEntry{
			token: []byte(e.Token),
			info:  ClientInfo{Name: e.Name, UserID: domain.OwnerOrDefault(e.UserID)},
		}
	}
	return a
}

// Authenticate returns client info if the token is valid.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare(tokenBytes, e.token) == 1 {
			info := e.info
			return &info, nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}

// SingleUserAuth admits every client as one fixed user. It serves local
// single-seat installs where the gateway only listens on loopback.
type SingleUserAuth struct {
	userID string
}

// NewSingleUserAuth creates an authenticator that maps all clients to userID.
func NewSingleUserAuth(userID string) *SingleUserAuth {
	return &SingleUserAuth{userID: domain.OwnerOrDefault(userID)}
}

// Authenticate always succeeds.
func (a *SingleUserAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: a.userID, UserID: a.userID}, nil
}

// Package auth provides bearer-token authentication for the MuninDB
// HTTP API.
//
// A single configured password is stored as a bcrypt hash. Clients
// exchange the password for a random session token at the /token
// endpoint and present it as "Authorization: Bearer <token>" on query
// requests.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// Errors for authentication operations.
var (
	ErrInvalidPassword = fmt.Errorf("auth: invalid password")
	ErrInvalidToken    = fmt.Errorf("auth: invalid or expired token")
)

// Authenticator verifies passwords and issues session tokens.
type Authenticator struct {
	passwordHash []byte

	mu     sync.RWMutex
	tokens map[string]struct{}
}

// New creates an authenticator for the given password.
func New(password string) (*Authenticator, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	return &Authenticator{
		passwordHash: hash,
		tokens:       make(map[string]struct{}),
	}, nil
}

// IssueToken verifies the password and returns a fresh session token.
func (a *Authenticator) IssueToken(password string) (string, error) {
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidPassword
	}
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	token := hex.EncodeToString(raw)

	a.mu.Lock()
	a.tokens[token] = struct{}{}
	a.mu.Unlock()
	return token, nil
}

// Validate reports whether a presented token is live.
func (a *Authenticator) Validate(token string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.tokens[token]
	return ok
}

// Revoke invalidates a session token.
func (a *Authenticator) Revoke(token string) {
	a.mu.Lock()
	delete(a.tokens, token)
	a.mu.Unlock()
}

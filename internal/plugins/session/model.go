// Package session implements the server-side session model for Geek
// Console. Sessions are rows in MariaDB with a persisted expiration
// timestamp; the client holds only a signed cookie carrying the opaque
// session id. Session validity is always decided against the persisted
// expires_at -- it is never cached.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package session

import (
	"context"
	"time"
)

// Session represents one logged-in browser.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiration timestamp.
// An expired session must be treated as absent everywhere.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Viewer is the minimal view of a user the session middleware needs: enough
// to confirm the account behind a session still exists and to hand handlers
// the acting identity.
type Viewer struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// UserFinder resolves a session's user id to an account. The auth plugin
// provides the implementation; the interface lives here so this package
// does not import auth types.
type UserFinder interface {
	FindUserByID(ctx context.Context, id string) (*Viewer, error)
}

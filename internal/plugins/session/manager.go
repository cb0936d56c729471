package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

// Manager defines the session lifecycle contract. Handlers and the auth
// service call these methods -- they never touch the repository directly.
type Manager interface {
	// Create persists a new session for the user. remember selects the long
	// "remember me" TTL instead of the default.
	Create(ctx context.Context, userID string, remember bool) (*Session, error)

	// Resolve maps a session id (already extracted from a verified cookie)
	// to a live session. Unknown and expired ids both come back as
	// Unauthorized: an expired session must be indistinguishable from an
	// absent one.
	Resolve(ctx context.Context, id string) (*Session, error)

	// Destroy deletes a session. Idempotent: destroying an absent or
	// already-destroyed session succeeds.
	Destroy(ctx context.Context, id string) error

	// DestroyAllForUser deletes every session a user holds.
	DestroyAllForUser(ctx context.Context, userID string) error

	// ExpirationDate returns the expiry a session created now would get.
	// Exposed for handlers that surface the cookie lifetime to the client.
	ExpirationDate(remember bool) time.Time
}

// manager implements Manager.
type manager struct {
	repo        Repository
	ttl         time.Duration
	rememberTTL time.Duration
}

// NewManager creates a session manager with the given TTLs.
func NewManager(repo Repository, ttl, rememberTTL time.Duration) Manager {
	return &manager{
		repo:        repo,
		ttl:         ttl,
		rememberTTL: rememberTTL,
	}
}

// Create inserts a session with a fresh id and a computed expiry. Existing
// sessions for the user are left alone -- they expire independently.
func (m *manager) Create(ctx context.Context, userID string, remember bool) (*Session, error) {
	now := time.Now().UTC()
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		ExpiresAt: m.ExpirationDate(remember),
		CreatedAt: now,
	}

	if err := m.repo.Create(ctx, s); err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("creating session: %w", err))
	}

	slog.Info("session created",
		slog.String("session_id", s.ID),
		slog.String("user_id", userID),
		slog.Bool("remember", remember),
	)

	return s, nil
}

// Resolve looks up the session and enforces expiration. Expired sessions
// are deleted opportunistically so the row doesn't linger.
func (m *manager) Resolve(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, apperror.NewUnauthorized("authentication required")
	}

	s, err := m.repo.FindByID(ctx, id)
	if err != nil {
		if apperror.IsCode(err, 404) {
			return nil, apperror.NewUnauthorized("authentication required")
		}
		return nil, apperror.NewInternal(fmt.Errorf("resolving session: %w", err))
	}

	if s.Expired(time.Now().UTC()) {
		if err := m.repo.Delete(ctx, s.ID); err != nil {
			slog.Warn("failed to delete expired session",
				slog.String("session_id", s.ID),
				slog.Any("error", err),
			)
		}
		return nil, apperror.NewUnauthorized("authentication required")
	}

	return s, nil
}

// Destroy deletes the session row.
func (m *manager) Destroy(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := m.repo.Delete(ctx, id); err != nil {
		return apperror.NewInternal(fmt.Errorf("destroying session: %w", err))
	}
	return nil
}

// DestroyAllForUser deletes every session a user holds.
func (m *manager) DestroyAllForUser(ctx context.Context, userID string) error {
	if err := m.repo.DeleteForUser(ctx, userID); err != nil {
		return apperror.NewInternal(fmt.Errorf("destroying user sessions: %w", err))
	}
	return nil
}

// ExpirationDate computes "now + configured TTL" for the chosen lifetime.
func (m *manager) ExpirationDate(remember bool) time.Time {
	ttl := m.ttl
	if remember {
		ttl = m.rememberTTL
	}
	return time.Now().UTC().Add(ttl)
}

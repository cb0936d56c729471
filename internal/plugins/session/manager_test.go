package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

// mockRepository is an in-memory Repository backed by a map.
type mockRepository struct {
	sessions map[string]*Session
	deleted  []string
}

func newMockRepository() *mockRepository {
	return &mockRepository{sessions: map[string]*Session{}}
}

func (m *mockRepository) Create(ctx context.Context, s *Session) error {
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *mockRepository) FindByID(ctx context.Context, id string) (*Session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, apperror.NewNotFound("session not found")
	}
	cp := *s
	return &cp, nil
}

func (m *mockRepository) Delete(ctx context.Context, id string) error {
	delete(m.sessions, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockRepository) DeleteForUser(ctx context.Context, userID string) error {
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
			m.deleted = append(m.deleted, id)
		}
	}
	return nil
}

func (m *mockRepository) DeleteExpired(ctx context.Context) (int64, error) {
	var n int64
	now := time.Now().UTC()
	for id, s := range m.sessions {
		if s.Expired(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}

func assertUnauthorized(t *testing.T, err error) {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != 401 {
		t.Fatalf("expected 401, got %d (%s)", appErr.Code, appErr.Message)
	}
}

const (
	testTTL         = time.Hour
	testRememberTTL = 30 * 24 * time.Hour
)

func TestCreateAndResolve(t *testing.T) {
	repo := newMockRepository()
	mgr := NewManager(repo, testTTL, testRememberTTL)
	ctx := context.Background()

	s, err := mgr.Create(ctx, "user-1", false)
	if err != nil {
		t.Fatalf("creating: %v", err)
	}
	if s.ID == "" {
		t.Fatal("expected a generated session id")
	}

	got, err := mgr.Resolve(ctx, s.ID)
	if err != nil {
		t.Fatalf("resolving: %v", err)
	}
	if got.UserID != "user-1" {
		t.Fatalf("expected user-1, got %s", got.UserID)
	}
}

func TestCreateRememberUsesLongTTL(t *testing.T) {
	mgr := NewManager(newMockRepository(), testTTL, testRememberTTL)
	ctx := context.Background()

	short, err := mgr.Create(ctx, "user-1", false)
	if err != nil {
		t.Fatalf("creating: %v", err)
	}
	long, err := mgr.Create(ctx, "user-1", true)
	if err != nil {
		t.Fatalf("creating: %v", err)
	}

	if !long.ExpiresAt.After(short.ExpiresAt.Add(testRememberTTL - testTTL - time.Minute)) {
		t.Fatalf("remember session should expire much later: %v vs %v", long.ExpiresAt, short.ExpiresAt)
	}
}

func TestResolveUnknownSession(t *testing.T) {
	mgr := NewManager(newMockRepository(), testTTL, testRememberTTL)

	_, err := mgr.Resolve(context.Background(), "no-such-session")
	assertUnauthorized(t, err)
}

func TestResolveEmptyID(t *testing.T) {
	mgr := NewManager(newMockRepository(), testTTL, testRememberTTL)

	_, err := mgr.Resolve(context.Background(), "")
	assertUnauthorized(t, err)
}

func TestResolveExpiredSessionIsDeleted(t *testing.T) {
	repo := newMockRepository()
	mgr := NewManager(repo, testTTL, testRememberTTL)
	ctx := context.Background()

	repo.sessions["stale"] = &Session{
		ID:        "stale",
		UserID:    "user-1",
		ExpiresAt: time.Now().UTC().Add(-time.Minute),
		CreatedAt: time.Now().UTC().Add(-2 * time.Hour),
	}

	_, err := mgr.Resolve(ctx, "stale")
	assertUnauthorized(t, err)

	// An expired session must look exactly like an absent one, and the
	// stale row must not linger.
	if _, ok := repo.sessions["stale"]; ok {
		t.Fatal("expired session row should have been removed")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	repo := newMockRepository()
	mgr := NewManager(repo, testTTL, testRememberTTL)
	ctx := context.Background()

	s, err := mgr.Create(ctx, "user-1", false)
	if err != nil {
		t.Fatalf("creating: %v", err)
	}

	if err := mgr.Destroy(ctx, s.ID); err != nil {
		t.Fatalf("first destroy: %v", err)
	}
	if err := mgr.Destroy(ctx, s.ID); err != nil {
		t.Fatalf("second destroy should succeed: %v", err)
	}
	if err := mgr.Destroy(ctx, ""); err != nil {
		t.Fatalf("destroying an empty id should succeed: %v", err)
	}

	_, err = mgr.Resolve(ctx, s.ID)
	assertUnauthorized(t, err)
}

func TestDestroyAllForUser(t *testing.T) {
	repo := newMockRepository()
	mgr := NewManager(repo, testTTL, testRememberTTL)
	ctx := context.Background()

	a, _ := mgr.Create(ctx, "user-1", false)
	b, _ := mgr.Create(ctx, "user-1", true)
	other, _ := mgr.Create(ctx, "user-2", false)

	if err := mgr.DestroyAllForUser(ctx, "user-1"); err != nil {
		t.Fatalf("destroying all: %v", err)
	}

	for _, id := range []string{a.ID, b.ID} {
		if _, err := mgr.Resolve(ctx, id); err == nil {
			t.Fatalf("session %s should be gone", id)
		}
	}
	if _, err := mgr.Resolve(ctx, other.ID); err != nil {
		t.Fatalf("other user's session should survive: %v", err)
	}
}

func TestExpirationDate(t *testing.T) {
	mgr := NewManager(newMockRepository(), testTTL, testRememberTTL)
	now := time.Now().UTC()

	short := mgr.ExpirationDate(false)
	if short.Before(now.Add(testTTL-time.Minute)) || short.After(now.Add(testTTL+time.Minute)) {
		t.Fatalf("default expiry off: %v", short)
	}

	long := mgr.ExpirationDate(true)
	if long.Before(now.Add(testRememberTTL - time.Minute)) {
		t.Fatalf("remember expiry off: %v", long)
	}
}

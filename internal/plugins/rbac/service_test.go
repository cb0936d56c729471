package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

// --- mocks ---

type mockRoleRepo struct {
	perms       map[string][]Permission
	roles       map[string][]string
	permQueries int
	assignErr   error
}

func newMockRoleRepo() *mockRoleRepo {
	return &mockRoleRepo{perms: map[string][]Permission{}, roles: map[string][]string{}}
}

func (m *mockRoleRepo) PermissionsForUser(ctx context.Context, userID string) ([]Permission, error) {
	m.permQueries++
	return m.perms[userID], nil
}

func (m *mockRoleRepo) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	return m.roles[userID], nil
}

func (m *mockRoleRepo) AssignRole(ctx context.Context, userID, roleName string) error {
	if m.assignErr != nil {
		return m.assignErr
	}
	m.roles[userID] = append(m.roles[userID], roleName)
	return nil
}

func (m *mockRoleRepo) RevokeRole(ctx context.Context, userID, roleName string) error {
	kept := m.roles[userID][:0]
	for _, r := range m.roles[userID] {
		if r != roleName {
			kept = append(kept, r)
		}
	}
	m.roles[userID] = kept
	return nil
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func assertAppError(t *testing.T, err error, wantCode int) {
	t.Helper()
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected AppError, got %T: %v", err, err)
	}
	if appErr.Code != wantCode {
		t.Fatalf("expected code %d, got %d (%s)", wantCode, appErr.Code, appErr.Message)
	}
}

// --- evaluation ---

func TestHasPermission(t *testing.T) {
	repo := newMockRoleRepo()
	repo.perms["alice"] = []Permission{{ActionRead, "book", AccessOwn}}
	svc := NewService(repo, nil)

	ok, err := svc.HasPermission(context.Background(), "alice", Permission{ActionRead, "book", AccessOwn})
	if err != nil || !ok {
		t.Fatalf("expected grant, got %v, %v", ok, err)
	}

	ok, err = svc.HasPermission(context.Background(), "alice", Permission{ActionDelete, "book", AccessOwn})
	if err != nil || ok {
		t.Fatalf("expected deny, got %v, %v", ok, err)
	}
}

func TestHasPermissionAnyCoversOwn(t *testing.T) {
	repo := newMockRoleRepo()
	repo.perms["admin"] = []Permission{{ActionDelete, "book", AccessAny}}
	svc := NewService(repo, nil)

	ok, err := svc.HasPermission(context.Background(), "admin", Permission{ActionDelete, "book", AccessOwn})
	if err != nil || !ok {
		t.Fatalf("any grant should satisfy own request, got %v, %v", ok, err)
	}
}

func TestRequirePermissionDenied(t *testing.T) {
	svc := NewService(newMockRoleRepo(), nil)

	err := svc.RequirePermission(context.Background(), "nobody", Permission{ActionRead, "book", AccessOwn})
	assertAppError(t, err, 403)
}

func TestAssignUnknownRole(t *testing.T) {
	repo := newMockRoleRepo()
	repo.assignErr = ErrUnknownRole
	svc := NewService(repo, nil)

	err := svc.AssignRole(context.Background(), "alice", "superuser")
	assertAppError(t, err, 404)
}

func TestRequireRole(t *testing.T) {
	repo := newMockRoleRepo()
	repo.roles["alice"] = []string{RoleUser}
	svc := NewService(repo, nil)

	if err := svc.RequireRole(context.Background(), "alice", RoleUser); err != nil {
		t.Fatalf("member should pass: %v", err)
	}
	err := svc.RequireRole(context.Background(), "alice", RoleAdmin)
	assertAppError(t, err, 403)
}

// --- cache ---

func TestPermissionCacheReadsThroughOnce(t *testing.T) {
	repo := newMockRoleRepo()
	repo.perms["alice"] = []Permission{{ActionRead, "book", AccessOwn}}
	svc := NewService(repo, testRedis(t))
	ctx := context.Background()
	perm := Permission{ActionRead, "book", AccessOwn}

	for i := 0; i < 3; i++ {
		if ok, err := svc.HasPermission(ctx, "alice", perm); err != nil || !ok {
			t.Fatalf("check %d: got %v, %v", i, ok, err)
		}
	}
	if repo.permQueries != 1 {
		t.Fatalf("expected one database read, got %d", repo.permQueries)
	}
}

func TestRoleChangeInvalidatesCache(t *testing.T) {
	repo := newMockRoleRepo()
	svc := NewService(repo, testRedis(t))
	ctx := context.Background()
	perm := Permission{ActionRead, "book", AccessOwn}

	// Prime the cache with an empty grant set.
	if ok, _ := svc.HasPermission(ctx, "alice", perm); ok {
		t.Fatal("no grants yet")
	}

	// Granting a role must not leave the stale empty set behind.
	repo.perms["alice"] = []Permission{perm}
	if err := svc.AssignRole(ctx, "alice", RoleUser); err != nil {
		t.Fatalf("assigning: %v", err)
	}

	ok, err := svc.HasPermission(ctx, "alice", perm)
	if err != nil || !ok {
		t.Fatalf("expected fresh grants after role change, got %v, %v", ok, err)
	}
}

func TestNilRedisDisablesCache(t *testing.T) {
	repo := newMockRoleRepo()
	repo.perms["alice"] = []Permission{{ActionRead, "book", AccessOwn}}
	svc := NewService(repo, nil)
	ctx := context.Background()
	perm := Permission{ActionRead, "book", AccessOwn}

	svc.HasPermission(ctx, "alice", perm)
	svc.HasPermission(ctx, "alice", perm)
	if repo.permQueries != 2 {
		t.Fatalf("expected every check to hit the database, got %d reads", repo.permQueries)
	}
}

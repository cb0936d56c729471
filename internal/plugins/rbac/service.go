package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

// permCacheKeyPrefix is the Redis key prefix for cached permission sets.
const permCacheKeyPrefix = "perms:"

// permCacheTTL bounds how stale a cached permission set can be. Role changes
// invalidate the cache eagerly; the TTL is the backstop. Session validity is
// never cached here -- only role/permission lookups.
const permCacheTTL = 30 * time.Second

// forbiddenMessage is the flat message shown for any authorization failure.
const forbiddenMessage = "You are not allowed to do that."

// Service defines the permission evaluation contract. Handlers and other
// services ask it allow/deny questions; they never touch the repository
// directly.
type Service interface {
	// HasPermission reports whether the user's flattened role grants satisfy
	// the requested permission. A granted "any" access satisfies an "own"
	// request for the same action and entity.
	HasPermission(ctx context.Context, userID string, perm Permission) (bool, error)

	// RequirePermission is HasPermission hardened into a guard: it returns
	// a Forbidden error on deny.
	RequirePermission(ctx context.Context, userID string, perm Permission) error

	// HasRole reports whether the user holds the named role.
	HasRole(ctx context.Context, userID, roleName string) (bool, error)

	// RequireRole is HasRole hardened into a guard.
	RequireRole(ctx context.Context, userID, roleName string) error

	// RolesForUser returns the names of all roles the user holds.
	RolesForUser(ctx context.Context, userID string) ([]string, error)

	// AssignRole grants a role and invalidates the user's cached permissions.
	AssignRole(ctx context.Context, userID, roleName string) error

	// RevokeRole removes a role and invalidates the user's cached permissions.
	RevokeRole(ctx context.Context, userID, roleName string) error
}

// service implements Service with an optional short-TTL Redis read-through
// cache for flattened permission sets.
type service struct {
	repo  RoleRepository
	redis *redis.Client // nil disables caching.
}

// NewService creates a new permission evaluator. rdb may be nil to disable
// the permission cache (every check then hits the database).
func NewService(repo RoleRepository, rdb *redis.Client) Service {
	return &service{repo: repo, redis: rdb}
}

// HasPermission resolves the user's permission set and checks the request
// against it.
func (s *service) HasPermission(ctx context.Context, userID string, perm Permission) (bool, error) {
	perms, err := s.permissionsFor(ctx, userID)
	if err != nil {
		return false, err
	}

	for _, granted := range perms {
		if granted.Satisfies(perm) {
			return true, nil
		}
	}
	return false, nil
}

// RequirePermission returns Forbidden when the permission is not granted.
func (s *service) RequirePermission(ctx context.Context, userID string, perm Permission) error {
	ok, err := s.HasPermission(ctx, userID, perm)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("evaluating permission %s: %w", perm, err))
	}
	if !ok {
		return apperror.NewForbidden(forbiddenMessage)
	}
	return nil
}

// HasRole checks role membership. Role checks are coarse gates (e.g. "is
// admin"); fine-grained authorization goes through HasPermission.
func (s *service) HasRole(ctx context.Context, userID, roleName string) (bool, error) {
	roles, err := s.repo.RolesForUser(ctx, userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r == roleName {
			return true, nil
		}
	}
	return false, nil
}

// RequireRole returns Forbidden when the user lacks the role.
func (s *service) RequireRole(ctx context.Context, userID, roleName string) error {
	ok, err := s.HasRole(ctx, userID, roleName)
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("checking role %s: %w", roleName, err))
	}
	if !ok {
		return apperror.NewForbidden(forbiddenMessage)
	}
	return nil
}

// RolesForUser returns the names of all roles the user holds.
func (s *service) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	roles, err := s.repo.RolesForUser(ctx, userID)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing roles: %w", err))
	}
	return roles, nil
}

// AssignRole grants a role and drops the cached permission set.
func (s *service) AssignRole(ctx context.Context, userID, roleName string) error {
	if err := s.repo.AssignRole(ctx, userID, roleName); err != nil {
		if errors.Is(err, ErrUnknownRole) {
			return apperror.NewNotFound("role not found")
		}
		return apperror.NewInternal(fmt.Errorf("assigning role: %w", err))
	}
	s.invalidate(ctx, userID)
	return nil
}

// RevokeRole removes a role and drops the cached permission set.
func (s *service) RevokeRole(ctx context.Context, userID, roleName string) error {
	if err := s.repo.RevokeRole(ctx, userID, roleName); err != nil {
		return apperror.NewInternal(fmt.Errorf("revoking role: %w", err))
	}
	s.invalidate(ctx, userID)
	return nil
}

// permissionsFor returns the user's flattened permission set, read through
// the Redis cache when available.
func (s *service) permissionsFor(ctx context.Context, userID string) ([]Permission, error) {
	if s.redis == nil {
		return s.repo.PermissionsForUser(ctx, userID)
	}

	key := permCacheKeyPrefix + userID

	data, err := s.redis.Get(ctx, key).Bytes()
	if err == nil {
		var perms []Permission
		if jsonErr := json.Unmarshal(data, &perms); jsonErr == nil {
			return perms, nil
		}
		// Corrupt cache entry -- fall through to the database.
	} else if err != redis.Nil {
		// Redis being down must not take authorization down with it.
		slog.Warn("permission cache read failed, falling back to database",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}

	perms, err := s.repo.PermissionsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(perms); err == nil {
		if err := s.redis.Set(ctx, key, data, permCacheTTL).Err(); err != nil {
			slog.Warn("permission cache write failed",
				slog.String("user_id", userID),
				slog.Any("error", err),
			)
		}
	}

	return perms, nil
}

// invalidate drops the cached permission set for a user.
func (s *service) invalidate(ctx context.Context, userID string) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, permCacheKeyPrefix+userID).Err(); err != nil {
		slog.Warn("permission cache invalidation failed",
			slog.String("user_id", userID),
			slog.Any("error", err),
		)
	}
}

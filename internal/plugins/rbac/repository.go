package rbac

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUnknownRole is returned when a role name does not exist in the roles
// table. Roles are created by migrations, not at runtime.
var ErrUnknownRole = errors.New("unknown role")

// RoleRepository defines the data access contract for roles and permissions.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type RoleRepository interface {
	// PermissionsForUser returns the deduplicated set of permissions granted
	// to a user across all of their roles.
	PermissionsForUser(ctx context.Context, userID string) ([]Permission, error)

	// RolesForUser returns the names of all roles held by a user.
	RolesForUser(ctx context.Context, userID string) ([]string, error)

	// AssignRole grants a role to a user by role name. A no-op if the user
	// already holds the role.
	AssignRole(ctx context.Context, userID, roleName string) error

	// RevokeRole removes a role from a user by role name.
	RevokeRole(ctx context.Context, userID, roleName string) error
}

// roleRepository implements RoleRepository with hand-written MariaDB queries.
type roleRepository struct {
	db *sql.DB
}

// NewRoleRepository creates a new role repository backed by the given DB pool.
func NewRoleRepository(db *sql.DB) RoleRepository {
	return &roleRepository{db: db}
}

// PermissionsForUser flattens user -> roles -> permissions into a distinct
// permission set. Malformed rows are rejected rather than skipped; a bad
// permission row is a data integrity problem worth surfacing.
func (r *roleRepository) PermissionsForUser(ctx context.Context, userID string) ([]Permission, error) {
	query := `SELECT DISTINCT p.action, p.entity, p.access
	          FROM permissions p
	          JOIN role_permissions rp ON rp.permission_id = p.id
	          JOIN user_roles ur ON ur.role_id = rp.role_id
	          WHERE ur.user_id = ?`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var action, entity, access string
		if err := rows.Scan(&action, &entity, &access); err != nil {
			return nil, fmt.Errorf("scanning permission row: %w", err)
		}
		p, err := ParsePermission(action + ":" + entity + ":" + access)
		if err != nil {
			return nil, fmt.Errorf("invalid permission row for user %s: %w", userID, err)
		}
		perms = append(perms, p)
	}

	return perms, rows.Err()
}

// RolesForUser returns the names of all roles held by a user.
func (r *roleRepository) RolesForUser(ctx context.Context, userID string) ([]string, error) {
	query := `SELECT r.name
	          FROM roles r
	          JOIN user_roles ur ON ur.role_id = r.id
	          WHERE ur.user_id = ?`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("querying user roles: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning role row: %w", err)
		}
		names = append(names, name)
	}

	return names, rows.Err()
}

// AssignRole grants a role to a user. INSERT IGNORE makes repeat grants a no-op.
func (r *roleRepository) AssignRole(ctx context.Context, userID, roleName string) error {
	query := `INSERT IGNORE INTO user_roles (user_id, role_id)
	          SELECT ?, id FROM roles WHERE name = ?`

	result, err := r.db.ExecContext(ctx, query, userID, roleName)
	if err != nil {
		return fmt.Errorf("assigning role %s: %w", roleName, err)
	}

	// Zero rows with no error means the role name doesn't exist at all
	// (INSERT IGNORE also yields zero rows for duplicates, which is fine;
	// distinguishing the two requires a second query, done here).
	if n, _ := result.RowsAffected(); n == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM roles WHERE name = ?)`, roleName,
		).Scan(&exists); err != nil {
			return fmt.Errorf("checking role existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("role %q: %w", roleName, ErrUnknownRole)
		}
	}

	return nil
}

// RevokeRole removes a role from a user.
func (r *roleRepository) RevokeRole(ctx context.Context, userID, roleName string) error {
	query := `DELETE ur FROM user_roles ur
	          JOIN roles r ON r.id = ur.role_id
	          WHERE ur.user_id = ? AND r.name = ?`

	if _, err := r.db.ExecContext(ctx, query, userID, roleName); err != nil {
		return fmt.Errorf("revoking role %s: %w", roleName, err)
	}
	return nil
}

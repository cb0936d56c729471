package connections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

// Repository defines the data access contract for connections.
type Repository interface {
	// Create inserts a connection. The unique index on
	// (provider_name, provider_id) rejects identities already linked to
	// any account; that surfaces as a Conflict error.
	Create(ctx context.Context, conn *Connection) error

	// FindByProvider looks up the connection holding an external identity.
	// Returns apperror.NotFound when the identity is unlinked.
	FindByProvider(ctx context.Context, providerName, providerID string) (*Connection, error)

	// FindByID retrieves a connection by id.
	FindByID(ctx context.Context, id string) (*Connection, error)

	// ListForUser returns all of a user's connections, oldest first.
	ListForUser(ctx context.Context, userID string) ([]*Connection, error)

	// Delete removes a connection owned by the user. A no-op when it does
	// not exist or belongs to someone else.
	Delete(ctx context.Context, id, userID string) error

	// CountForUser returns how many connections the user holds.
	CountForUser(ctx context.Context, userID string) (int, error)

	// UserHasPassword reports whether the user can log in with a password.
	UserHasPassword(ctx context.Context, userID string) (bool, error)
}

type repository struct {
	db *sql.DB
}

// NewRepository creates a connection repository backed by the given pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, conn *Connection) error {
	query := `INSERT INTO connections (id, user_id, provider_name, provider_id, label, created_at)
	          VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		conn.ID, conn.UserID, conn.ProviderName, conn.ProviderID, conn.Label, conn.CreatedAt)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return apperror.NewConflict("this account is already connected")
		}
		return fmt.Errorf("inserting connection: %w", err)
	}
	return nil
}

func (r *repository) FindByProvider(ctx context.Context, providerName, providerID string) (*Connection, error) {
	query := `SELECT id, user_id, provider_name, provider_id, label, created_at
	          FROM connections WHERE provider_name = ? AND provider_id = ?`

	conn := &Connection{}
	err := r.db.QueryRowContext(ctx, query, providerName, providerID).Scan(
		&conn.ID, &conn.UserID, &conn.ProviderName, &conn.ProviderID, &conn.Label, &conn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("connection not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}

	return conn, nil
}

func (r *repository) FindByID(ctx context.Context, id string) (*Connection, error) {
	query := `SELECT id, user_id, provider_name, provider_id, label, created_at
	          FROM connections WHERE id = ?`

	conn := &Connection{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&conn.ID, &conn.UserID, &conn.ProviderName, &conn.ProviderID, &conn.Label, &conn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("connection not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying connection: %w", err)
	}

	return conn, nil
}

func (r *repository) ListForUser(ctx context.Context, userID string) ([]*Connection, error) {
	query := `SELECT id, user_id, provider_name, provider_id, label, created_at
	          FROM connections WHERE user_id = ? ORDER BY created_at`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing connections: %w", err)
	}
	defer rows.Close()

	var conns []*Connection
	for rows.Next() {
		conn := &Connection{}
		if err := rows.Scan(&conn.ID, &conn.UserID, &conn.ProviderName, &conn.ProviderID, &conn.Label, &conn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning connection: %w", err)
		}
		conns = append(conns, conn)
	}
	return conns, rows.Err()
}

func (r *repository) Delete(ctx context.Context, id, userID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM connections WHERE id = ? AND user_id = ?`, id, userID,
	); err != nil {
		return fmt.Errorf("deleting connection: %w", err)
	}
	return nil
}

func (r *repository) CountForUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM connections WHERE user_id = ?`, userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting connections: %w", err)
	}
	return count, nil
}

func (r *repository) UserHasPassword(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM passwords WHERE user_id = ?)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking password existence: %w", err)
	}
	return exists, nil
}

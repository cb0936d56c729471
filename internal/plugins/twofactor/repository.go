package twofactor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

// Repository defines the data access contract for verification secrets.
type Repository interface {
	// Upsert stores a secret for (target, type), replacing any existing one.
	Upsert(ctx context.Context, v *Verification) error

	// Find retrieves the secret for (target, type).
	// Returns apperror.NotFound when none exists.
	Find(ctx context.Context, target, typ string) (*Verification, error)

	// Delete removes the secret for (target, type). A no-op when none exists.
	Delete(ctx context.Context, target, typ string) error
}

type repository struct {
	db *sql.DB
}

// NewRepository creates a verification repository backed by the given pool.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, v *Verification) error {
	query := `INSERT INTO verifications (target, type, secret, created_at)
	          VALUES (?, ?, ?, ?)
	          ON DUPLICATE KEY UPDATE secret = VALUES(secret), created_at = VALUES(created_at)`

	if _, err := r.db.ExecContext(ctx, query, v.Target, v.Type, v.Secret, v.CreatedAt); err != nil {
		return fmt.Errorf("upserting verification: %w", err)
	}
	return nil
}

func (r *repository) Find(ctx context.Context, target, typ string) (*Verification, error) {
	query := `SELECT target, type, secret, created_at
	          FROM verifications WHERE target = ? AND type = ?`

	v := &Verification{}
	err := r.db.QueryRowContext(ctx, query, target, typ).Scan(&v.Target, &v.Type, &v.Secret, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("verification not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying verification: %w", err)
	}

	return v, nil
}

func (r *repository) Delete(ctx context.Context, target, typ string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM verifications WHERE target = ? AND type = ?`, target, typ,
	); err != nil {
		return fmt.Errorf("deleting verification: %w", err)
	}
	return nil
}

package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

// UserRepository defines the data access contract for user operations.
// All SQL lives in the concrete implementation -- no SQL leaks out.
type UserRepository interface {
	// CreateWithPassword inserts a user and their password hash in one
	// transaction, re-checking username/email uniqueness immediately before
	// the insert. Returns a field-tagged conflict error on collision.
	CreateWithPassword(ctx context.Context, user *User, passwordHash string) error

	// CreateFederated inserts a user with no password row. Used when an
	// account is created from a verified federated-identity profile.
	CreateFederated(ctx context.Context, user *User) error

	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	CountUsers(ctx context.Context) (int, error)

	// PasswordHashByUsername returns the user id and stored hash for a
	// password login check. NotFound when the user does not exist or has
	// no password (federated-only account).
	PasswordHashByUsername(ctx context.Context, username string) (userID, hash string, err error)

	// UpsertPassword replaces (or creates) the stored hash for a user.
	UpsertPassword(ctx context.Context, userID, passwordHash string) error
}

// mysqlDuplicateEntry is the MySQL/MariaDB error number for unique key violations.
const mysqlDuplicateEntry = 1062

// userRepository implements UserRepository with hand-written MariaDB queries.
type userRepository struct {
	db *sql.DB
}

// NewUserRepository creates a new user repository backed by the given DB pool.
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

// CreateWithPassword inserts the user and password rows transactionally.
// Uniqueness is checked inside the transaction right before the insert so
// two concurrent signups with the same username cannot both pass the check
// and commit; the unique indexes on users(username) and users(email) close
// the remaining window, and a duplicate-key error is mapped to the same
// field-tagged conflict the pre-check produces.
func (r *userRepository) CreateWithPassword(ctx context.Context, user *User, passwordHash string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning signup transaction: %w", err)
	}
	defer tx.Rollback()

	var usernameTaken, emailTaken bool
	err = tx.QueryRowContext(ctx,
		`SELECT
		   EXISTS(SELECT 1 FROM users WHERE LOWER(username) = LOWER(?)),
		   EXISTS(SELECT 1 FROM users WHERE email = ?)`,
		user.Username, user.Email,
	).Scan(&usernameTaken, &emailTaken)
	if err != nil {
		return fmt.Errorf("checking uniqueness: %w", err)
	}
	if usernameTaken {
		return apperror.NewFieldConflict("username", "this username is already taken")
	}
	if emailTaken {
		return apperror.NewFieldConflict("email", "an account with this email already exists")
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, username, email, name, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.Name, user.AvatarURL, user.CreatedAt,
	)
	if err != nil {
		return mapDuplicate(err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO passwords (user_id, hash) VALUES (?, ?)`,
		user.ID, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("inserting password: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing signup: %w", err)
	}
	return nil
}

// CreateFederated inserts a user row with no password.
func (r *userRepository) CreateFederated(ctx context.Context, user *User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, username, email, name, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID, user.Username, user.Email, user.Name, user.AvatarURL, user.CreatedAt,
	)
	if err != nil {
		return mapDuplicate(err)
	}
	return nil
}

// mapDuplicate converts a MariaDB duplicate-key error into the field-tagged
// conflict the caller expects, based on which unique index fired. The error
// message is "Duplicate entry '<value>' for key '<index>'"; attribution must
// key off the index name, never the message as a whole, because the
// duplicated value itself can contain the word "email".
func mapDuplicate(err error) error {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) || mysqlErr.Number != mysqlDuplicateEntry {
		return fmt.Errorf("inserting user: %w", err)
	}

	key := mysqlErr.Message
	if i := strings.LastIndex(key, "for key '"); i >= 0 {
		key = strings.TrimSuffix(key[i+len("for key '"):], "'")
	}
	// MySQL 8 qualifies the index as "users.uq_users_email".
	if strings.HasSuffix(key, "uq_users_email") {
		return apperror.NewFieldConflict("email", "an account with this email already exists")
	}
	return apperror.NewFieldConflict("username", "this username is already taken")
}

// FindByID retrieves a user by their UUID.
// Returns apperror.NotFound if no user exists with this ID.
func (r *userRepository) FindByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, username, email, name, avatar_url, created_at
	          FROM users WHERE id = ?`

	user := &User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by id: %w", err)
	}

	return user, nil
}

// FindByUsername retrieves a user by username, case-insensitively.
// Returns apperror.NotFound if no user exists with this username.
func (r *userRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT id, username, email, name, avatar_url, created_at
	          FROM users WHERE LOWER(username) = LOWER(?)`

	user := &User{}
	err := r.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.Name,
		&user.AvatarURL,
		&user.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.NewNotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by username: %w", err)
	}

	return user, nil
}

// UsernameExists returns true if a user with the given username already
// exists (case-insensitive). Used as a cheap pre-check before hashing.
func (r *userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE LOWER(username) = LOWER(?))`, username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking username existence: %w", err)
	}
	return exists, nil
}

// EmailExists returns true if a user with the given email already exists.
func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE email = ?)`, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking email existence: %w", err)
	}
	return exists, nil
}

// CountUsers returns the total number of registered users.
func (r *userRepository) CountUsers(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// PasswordHashByUsername returns the stored hash for a password login.
// A missing user and a federated-only account (no password row) are both
// NotFound -- the service maps either to the same generic credential error.
func (r *userRepository) PasswordHashByUsername(ctx context.Context, username string) (string, string, error) {
	query := `SELECT u.id, p.hash
	          FROM users u
	          JOIN passwords p ON p.user_id = u.id
	          WHERE LOWER(u.username) = LOWER(?)`

	var userID, hash string
	err := r.db.QueryRowContext(ctx, query, username).Scan(&userID, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", apperror.NewNotFound("user not found")
	}
	if err != nil {
		return "", "", fmt.Errorf("querying password hash: %w", err)
	}

	return userID, hash, nil
}

// UpsertPassword replaces the stored hash, creating the password row if the
// account was federated-only until now.
func (r *userRepository) UpsertPassword(ctx context.Context, userID, passwordHash string) error {
	query := `INSERT INTO passwords (user_id, hash) VALUES (?, ?)
	          ON DUPLICATE KEY UPDATE hash = VALUES(hash)`

	if _, err := r.db.ExecContext(ctx, query, userID, passwordHash); err != nil {
		return fmt.Errorf("upserting password: %w", err)
	}
	return nil
}

package auth

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"

	"github.com/geekconsole/geekconsole/internal/apperror"
)

// A signup that loses the race past the in-transaction checks surfaces as a
// duplicate-key error from the unique index. The conflict must be attributed
// to the field whose index fired, even when the duplicated value itself
// contains the other field's name.
func TestDuplicateKeyFieldAttribution(t *testing.T) {
	cases := []struct {
		name    string
		message string
		field   string
	}{
		{
			name:    "username index",
			message: "Duplicate entry 'kody' for key 'uq_users_username'",
			field:   "username",
		},
		{
			name:    "username containing the word email",
			message: "Duplicate entry 'email_lover' for key 'uq_users_username'",
			field:   "username",
		},
		{
			name:    "email index",
			message: "Duplicate entry 'kody@example.com' for key 'uq_users_email'",
			field:   "email",
		},
		{
			name:    "email index qualified with table name",
			message: "Duplicate entry 'kody@example.com' for key 'users.uq_users_email'",
			field:   "email",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := mapDuplicate(&mysql.MySQLError{Number: mysqlDuplicateEntry, Message: tc.message})

			var appErr *apperror.AppError
			if !errors.As(err, &appErr) {
				t.Fatalf("expected AppError, got %T: %v", err, err)
			}
			if appErr.Code != 409 {
				t.Fatalf("expected 409, got %d", appErr.Code)
			}
			if appErr.Field != tc.field {
				t.Fatalf("expected conflict on %q, got %q", tc.field, appErr.Field)
			}
		})
	}
}

func TestMapDuplicatePassesThroughOtherErrors(t *testing.T) {
	// A deadlock or any non-duplicate failure must not masquerade as a
	// conflict the user can act on.
	err := mapDuplicate(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		t.Fatalf("expected a plain error, got AppError %d", appErr.Code)
	}
}

package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/plugins/rbac"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// invalidCredentialsMessage is returned for every login failure regardless
// of cause, so responses do not reveal whether a username exists.
const invalidCredentialsMessage = "Invalid username or password"

// SecondFactorGate is the narrow slice of the two-factor plugin that login
// needs. When a user has a second factor enabled, login is staged instead
// of producing a session; the returned token identifies the staged attempt.
type SecondFactorGate interface {
	Enabled(ctx context.Context, userID string) (bool, error)
	StageLogin(ctx context.Context, userID string, remember bool) (token string, err error)
}

// ResetCodeStore issues and consumes the short-lived codes that prove
// control of an account during a password reset.
type ResetCodeStore interface {
	CreateResetCode(ctx context.Context, target string) (string, error)
	ConsumeResetCode(ctx context.Context, target, code string) error
}

// MailSender delivers password reset codes out of band. Geek Console ships
// without an SMTP integration, so the default sender logs the code; a real
// sender can be plugged in without touching the service.
type MailSender interface {
	SendPasswordReset(ctx context.Context, email, username, code string) error
}

// LoginResult is the outcome of a successful credential check. Exactly one
// of Session or TwoFactorToken is set: a token means the login is staged
// behind second-factor verification and no session exists yet.
type LoginResult struct {
	User           *User
	Session        *session.Session
	TwoFactorToken string
	Remember       bool
}

// Service defines the business logic contract for authentication.
type Service interface {
	// Signup validates the input, creates the user, and opens a session.
	// The first registered user is granted the admin role.
	Signup(ctx context.Context, input SignupInput) (*LoginResult, error)

	// Login checks credentials and either opens a session or, when the user
	// has a second factor enabled, stages the login for verification.
	Login(ctx context.Context, input LoginInput) (*LoginResult, error)

	// InitiatePasswordReset issues a reset code for the account. Unknown
	// usernames are silently accepted so the endpoint cannot be used to
	// probe which accounts exist.
	InitiatePasswordReset(ctx context.Context, username string) error

	// ResetPassword consumes a valid reset code, replaces the stored hash,
	// and destroys every session the account holds.
	ResetPassword(ctx context.Context, username, code, newPassword string) error

	// FindUserByID loads a user for display.
	FindUserByID(ctx context.Context, id string) (*User, error)
}

type service struct {
	repo     UserRepository
	sessions session.Manager
	roles    rbac.Service
	gate     SecondFactorGate // may be nil when the two-factor plugin is absent
	codes    ResetCodeStore
	mail     MailSender // may be nil; codes are then logged only
	logger   *slog.Logger
}

// NewService creates the authentication service. gate and mail may be nil.
func NewService(repo UserRepository, sessions session.Manager, roles rbac.Service, gate SecondFactorGate, codes ResetCodeStore, mail MailSender, logger *slog.Logger) Service {
	return &service{
		repo:     repo,
		sessions: sessions,
		roles:    roles,
		gate:     gate,
		codes:    codes,
		mail:     mail,
		logger:   logger,
	}
}

// Signup creates a new account with a password and opens a session for it.
func (s *service) Signup(ctx context.Context, input SignupInput) (*LoginResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.Email = strings.TrimSpace(strings.ToLower(input.Email))
	input.Name = strings.TrimSpace(input.Name)

	if err := validateUsername(input.Username); err != nil {
		return nil, err
	}
	if err := validateEmail(input.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	// Cheap pre-checks before the expensive hash. The repository re-checks
	// inside the signup transaction, so a race here only costs a hash.
	if taken, err := s.repo.UsernameExists(ctx, input.Username); err != nil {
		return nil, err
	} else if taken {
		return nil, apperror.NewFieldConflict("username", "this username is already taken")
	}
	if taken, err := s.repo.EmailExists(ctx, input.Email); err != nil {
		return nil, err
	} else if taken {
		return nil, apperror.NewFieldConflict("email", "an account with this email already exists")
	}

	hash, err := hashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		ID:        uuid.NewString(),
		Username:  input.Username,
		Email:     input.Email,
		Name:      input.Name,
		CreatedAt: time.Now().UTC(),
	}

	// Count before the insert: a count of zero means this signup creates
	// the very first account, which becomes the administrator.
	firstUser := false
	if count, err := s.repo.CountUsers(ctx); err == nil {
		firstUser = count == 0
	}

	if err := s.repo.CreateWithPassword(ctx, user, hash); err != nil {
		return nil, err
	}

	if err := s.roles.AssignRole(ctx, user.ID, rbac.RoleUser); err != nil {
		s.logger.Error("assigning default role", "user_id", user.ID, "error", err)
	}
	if firstUser {
		if err := s.roles.AssignRole(ctx, user.ID, rbac.RoleAdmin); err != nil {
			s.logger.Error("assigning admin role to first user", "user_id", user.ID, "error", err)
		}
	}

	sess, err := s.sessions.Create(ctx, user.ID, input.Remember)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user signed up", "user_id", user.ID, "username", user.Username)
	return &LoginResult{User: user, Session: sess, Remember: input.Remember}, nil
}

// Login verifies the password and opens a session, or stages the login when
// the user has a second factor enabled.
func (s *service) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	userID, hash, err := s.repo.PasswordHashByUsername(ctx, strings.TrimSpace(input.Username))
	if err != nil {
		if apperror.IsCode(err, 404) {
			// Burn roughly the cost of a real verification so unknown
			// usernames are not distinguishable by response time.
			verifyPassword(input.Password, dummyHash)
			return nil, apperror.NewUnauthorized(invalidCredentialsMessage)
		}
		return nil, err
	}

	if !verifyPassword(input.Password, hash) {
		return nil, apperror.NewUnauthorized(invalidCredentialsMessage)
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.gate != nil {
		enabled, err := s.gate.Enabled(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		if enabled {
			token, err := s.gate.StageLogin(ctx, user.ID, input.Remember)
			if err != nil {
				return nil, err
			}
			s.logger.Info("login staged for second factor", "user_id", user.ID)
			return &LoginResult{User: user, TwoFactorToken: token, Remember: input.Remember}, nil
		}
	}

	sess, err := s.sessions.Create(ctx, user.ID, input.Remember)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID)
	return &LoginResult{User: user, Session: sess, Remember: input.Remember}, nil
}

// dummyHash is a throwaway argon2id hash used to equalize the timing of
// login attempts against unknown usernames.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=4$c29tZXNhbHRzb21lc2FsdA$G2gXd1qMr8rYkWU0iW1R5U3r4V3rJ1nZbQ0X0f3hQ2E"

// InitiatePasswordReset issues a reset code. The response is identical
// whether or not the username exists.
func (s *service) InitiatePasswordReset(ctx context.Context, username string) error {
	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperror.IsCode(err, 404) {
			s.logger.Info("password reset requested for unknown username")
			return nil
		}
		return err
	}

	code, err := s.codes.CreateResetCode(ctx, user.Email)
	if err != nil {
		return err
	}

	if s.mail != nil {
		if err := s.mail.SendPasswordReset(ctx, user.Email, user.Username, code); err != nil {
			return fmt.Errorf("sending reset code: %w", err)
		}
	} else {
		// No mailer configured. Operators of single-user installs read the
		// code from the server log.
		s.logger.Info("password reset code issued", "username", user.Username, "code", code)
	}
	return nil
}

// ResetPassword consumes the code, replaces the hash, and revokes all of
// the account's sessions so stolen cookies die with the old password.
func (s *service) ResetPassword(ctx context.Context, username, code, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.repo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if apperror.IsCode(err, 404) {
			return apperror.NewBadRequest("invalid or expired reset code")
		}
		return err
	}

	if err := s.codes.ConsumeResetCode(ctx, user.Email, code); err != nil {
		return err
	}

	hash, err := hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.repo.UpsertPassword(ctx, user.ID, hash); err != nil {
		return err
	}

	if err := s.sessions.DestroyAllForUser(ctx, user.ID); err != nil {
		s.logger.Error("revoking sessions after password reset", "user_id", user.ID, "error", err)
	}

	s.logger.Info("password reset completed", "user_id", user.ID)
	return nil
}

// FindUserByID loads a user for display.
func (s *service) FindUserByID(ctx context.Context, id string) (*User, error) {
	return s.repo.FindByID(ctx, id)
}

// --- input validation ---

func validateUsername(username string) error {
	if len(username) < 3 {
		return apperror.NewValidation("username must be at least 3 characters")
	}
	if len(username) > 20 {
		return apperror.NewValidation("username must be at most 20 characters")
	}
	for _, r := range username {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_') {
			return apperror.NewValidation("username may only contain letters, numbers, and underscores")
		}
	}
	return nil
}

func validateEmail(email string) error {
	if len(email) < 3 || len(email) > 100 || !strings.Contains(email, "@") {
		return apperror.NewValidation("a valid email address is required")
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < 6 {
		return apperror.NewValidation("password must be at least 6 characters")
	}
	if len(password) > 100 {
		return apperror.NewValidation("password must be at most 100 characters")
	}
	return nil
}

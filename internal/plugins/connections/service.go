package connections

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/plugins/auth"
	"github.com/geekconsole/geekconsole/internal/plugins/rbac"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// Redis key prefixes for the transient OAuth state this plugin keeps.
const (
	oauthStateKeyPrefix = "oauth:state:"
	onboardingKeyPrefix = "oauth:onboarding:"
)

// UserDirectory is the slice of the auth plugin's user storage this plugin
// needs to create and look up accounts.
type UserDirectory interface {
	CreateFederated(ctx context.Context, user *auth.User) error
	FindByID(ctx context.Context, id string) (*auth.User, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	CountUsers(ctx context.Context) (int, error)
}

// CallbackOutcome says how a provider callback resolved.
type CallbackOutcome int

const (
	// OutcomeLogin means the identity was already linked and a session now
	// exists for its owner.
	OutcomeLogin CallbackOutcome = iota

	// OutcomeLinked means the identity was linked to the already
	// authenticated user.
	OutcomeLinked

	// OutcomeOnboarding means the identity is new and anonymous: the
	// profile is staged and the user must pick a username to finish.
	OutcomeOnboarding
)

// CallbackResult carries the outcome-specific payload: a session for
// OutcomeLogin, a staging token for OutcomeOnboarding.
type CallbackResult struct {
	Outcome         CallbackOutcome
	Session         *session.Session
	OnboardingToken string
}

// Service defines the federated login contract.
type Service interface {
	// BeginAuth issues the state for an authorization redirect and returns
	// the provider URL to send the browser to.
	BeginAuth(ctx context.Context) (authURL, state string, err error)

	// HandleCallback validates state, redeems the code, and resolves the
	// identity: log in its owner, link it to the current user, or stage
	// onboarding. currentUserID is empty for anonymous requests.
	HandleCallback(ctx context.Context, currentUserID, state, code string) (*CallbackResult, error)

	// CompleteOnboarding creates the account a staged profile was waiting
	// for and opens its first session.
	CompleteOnboarding(ctx context.Context, token string, req OnboardingRequest) (*session.Session, error)

	// List returns the user's connections.
	List(ctx context.Context, userID string) ([]*Connection, error)

	// Delete unlinks a connection, refusing when it is the user's only way
	// to log in.
	Delete(ctx context.Context, userID, connectionID string) error
}

type service struct {
	repo     Repository
	provider Provider
	users    UserDirectory
	roles    rbac.Service
	sessions session.Manager
	redis    *redis.Client
	stageTTL time.Duration
	logger   *slog.Logger
}

// NewService creates the federated login service. stageTTL bounds both the
// state handshake and a staged onboarding profile.
func NewService(repo Repository, provider Provider, users UserDirectory, roles rbac.Service, sessions session.Manager, rdb *redis.Client, stageTTL time.Duration, logger *slog.Logger) Service {
	return &service{
		repo:     repo,
		provider: provider,
		users:    users,
		roles:    roles,
		sessions: sessions,
		redis:    rdb,
		stageTTL: stageTTL,
		logger:   logger,
	}
}

func (s *service) BeginAuth(ctx context.Context) (string, string, error) {
	state := uuid.NewString()
	if err := s.redis.Set(ctx, oauthStateKeyPrefix+state, "1", s.stageTTL).Err(); err != nil {
		return "", "", fmt.Errorf("storing oauth state: %w", err)
	}
	return s.provider.AuthorizationURL(state), state, nil
}

func (s *service) HandleCallback(ctx context.Context, currentUserID, state, code string) (*CallbackResult, error) {
	// State is single-use; a replayed or forged callback dies here.
	deleted, err := s.redis.Del(ctx, oauthStateKeyPrefix+state).Result()
	if err != nil {
		return nil, fmt.Errorf("consuming oauth state: %w", err)
	}
	if state == "" || deleted == 0 {
		return nil, apperror.NewBadRequest("invalid or expired authorization state")
	}

	profile, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("oauth exchange failed", "provider", s.provider.Name(), "error", err)
		return nil, apperror.NewBadRequest("authorization with the provider failed")
	}

	conn, err := s.repo.FindByProvider(ctx, s.provider.Name(), profile.ProviderID)
	switch {
	case err == nil:
		return s.resolveExisting(ctx, currentUserID, conn)
	case apperror.IsCode(err, 404):
		// Unlinked identity, handled below.
	default:
		return nil, err
	}

	if currentUserID != "" {
		if err := s.link(ctx, currentUserID, profile); err != nil {
			return nil, err
		}
		return &CallbackResult{Outcome: OutcomeLinked}, nil
	}

	token, err := s.stageOnboarding(ctx, profile)
	if err != nil {
		return nil, err
	}
	return &CallbackResult{Outcome: OutcomeOnboarding, OnboardingToken: token}, nil
}

// resolveExisting handles callbacks for an identity that is already linked.
func (s *service) resolveExisting(ctx context.Context, currentUserID string, conn *Connection) (*CallbackResult, error) {
	if currentUserID != "" {
		if conn.UserID != currentUserID {
			return nil, apperror.NewConflict("this identity is already connected to another account")
		}
		// Re-linking their own identity is harmless.
		return &CallbackResult{Outcome: OutcomeLinked}, nil
	}

	if _, err := s.users.FindByID(ctx, conn.UserID); err != nil {
		if apperror.IsCode(err, 404) {
			// The account behind the connection is gone. Drop the orphan
			// so the identity can be used fresh.
			_ = s.repo.Delete(ctx, conn.ID, conn.UserID)
			return nil, apperror.NewUnauthorized("this connection is no longer valid")
		}
		return nil, err
	}

	sess, err := s.sessions.Create(ctx, conn.UserID, false)
	if err != nil {
		return nil, err
	}

	s.logger.Info("federated login", "provider", conn.ProviderName, "user_id", conn.UserID)
	return &CallbackResult{Outcome: OutcomeLogin, Session: sess}, nil
}

func (s *service) link(ctx context.Context, userID string, profile *Profile) error {
	conn := &Connection{
		ID:           uuid.NewString(),
		UserID:       userID,
		ProviderName: s.provider.Name(),
		ProviderID:   profile.ProviderID,
		Label:        profile.Username,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, conn); err != nil {
		return err
	}

	s.logger.Info("connection linked", "provider", conn.ProviderName, "user_id", userID)
	return nil
}

func (s *service) stageOnboarding(ctx context.Context, profile *Profile) (string, error) {
	token := uuid.NewString()
	payload, err := json.Marshal(profile)
	if err != nil {
		return "", fmt.Errorf("marshaling staged profile: %w", err)
	}
	if err := s.redis.Set(ctx, onboardingKeyPrefix+token, payload, s.stageTTL).Err(); err != nil {
		return "", fmt.Errorf("staging onboarding profile: %w", err)
	}
	return token, nil
}

func (s *service) CompleteOnboarding(ctx context.Context, token string, req OnboardingRequest) (*session.Session, error) {
	if token == "" {
		return nil, apperror.NewUnauthorized("onboarding expired, please start over")
	}

	raw, err := s.redis.Get(ctx, onboardingKeyPrefix+token).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, apperror.NewUnauthorized("onboarding expired, please start over")
		}
		return nil, fmt.Errorf("loading staged profile: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, fmt.Errorf("unmarshaling staged profile: %w", err)
	}

	username := req.Username
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if taken, err := s.users.UsernameExists(ctx, username); err != nil {
		return nil, err
	} else if taken {
		return nil, apperror.NewFieldConflict("username", "this username is already taken")
	}

	firstUser := false
	if count, err := s.users.CountUsers(ctx); err == nil {
		firstUser = count == 0
	}

	user := &auth.User{
		ID:        uuid.NewString(),
		Username:  username,
		Email:     profile.Email,
		Name:      profile.Name,
		CreatedAt: time.Now().UTC(),
	}
	if profile.AvatarURL != "" {
		user.AvatarURL = &profile.AvatarURL
	}
	if err := s.users.CreateFederated(ctx, user); err != nil {
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

	if err := s.link(ctx, user.ID, &profile); err != nil {
		return nil, err
	}

	// The staging is spent once the account exists.
	s.redis.Del(ctx, onboardingKeyPrefix+token)

	sess, err := s.sessions.Create(ctx, user.ID, req.Remember)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user onboarded from federated identity", "provider", s.provider.Name(), "user_id", user.ID)
	return sess, nil
}

func (s *service) List(ctx context.Context, userID string) ([]*Connection, error) {
	return s.repo.ListForUser(ctx, userID)
}

// Delete unlinks a connection. Refused when the user has no password and
// this is their last connection: they would be locked out of the account.
func (s *service) Delete(ctx context.Context, userID, connectionID string) error {
	conn, err := s.repo.FindByID(ctx, connectionID)
	if err != nil {
		return err
	}
	if conn.UserID != userID {
		return apperror.NewNotFound("connection not found")
	}

	hasPassword, err := s.repo.UserHasPassword(ctx, userID)
	if err != nil {
		return err
	}
	if !hasPassword {
		count, err := s.repo.CountForUser(ctx, userID)
		if err != nil {
			return err
		}
		if count <= 1 {
			return apperror.NewBadRequest("set a password before removing your only connection")
		}
	}

	return s.repo.Delete(ctx, connectionID, userID)
}

func validateUsername(username string) error {
	if len(username) < 3 || len(username) > 20 {
		return apperror.NewValidation("username must be between 3 and 20 characters")
	}
	for _, r := range username {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_') {
			return apperror.NewValidation("username may only contain letters, numbers, and underscores")
		}
	}
	return nil
}

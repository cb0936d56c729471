package twofactor

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// issuer is the name authenticator apps display for enrolled accounts.
const issuer = "Geek Console"

// Redis key prefixes for the transient state this plugin keeps. Nothing
// here is a session: staged logins and recent-verification marks are
// short-lived coordination state, which is exactly what Redis is for.
const (
	stagedLoginKeyPrefix = "2fa:login:"
	attemptsKeyPrefix    = "2fa:attempts:"
	recentKeyPrefix      = "2fa:recent:"
)

// maxCodeAttempts bounds guesses against a single staged login. Exceeding
// it voids the staging; the user starts over at the password prompt.
const maxCodeAttempts = 5

// invalidCodeMessage is the flat message for any rejected code.
const invalidCodeMessage = "Invalid verification code"

// stagedLogin is the state parked in Redis between the password check and
// the code check.
type stagedLogin struct {
	UserID   string `json:"user_id"`
	Remember bool   `json:"remember"`
}

// Service defines the second-factor contract. It doubles as the gate the
// auth plugin consults during login and the reset-code store behind
// password resets.
type Service interface {
	// Enabled reports whether the user has a confirmed second factor.
	Enabled(ctx context.Context, userID string) (bool, error)

	// StageLogin parks a password-verified login and returns the opaque
	// token that identifies it. No session exists yet.
	StageLogin(ctx context.Context, userID string, remember bool) (string, error)

	// CompleteLogin checks the code against the staged login's secret and,
	// on success, consumes the staging and opens the session the password
	// check earned. The remember choice made at the password prompt is
	// honored here.
	CompleteLogin(ctx context.Context, token, code string) (*session.Session, bool, error)

	// BeginSetup starts enrollment: a fresh secret stored as unconfirmed,
	// returned once for the user to load into their authenticator.
	BeginSetup(ctx context.Context, userID, account string) (*SetupResponse, error)

	// ConfirmSetup proves the user can produce codes from the pending
	// secret and promotes it to an active second factor.
	ConfirmSetup(ctx context.Context, sessionID, userID, code string) error

	// Disable removes the active second factor. The session must have
	// verified a code recently.
	Disable(ctx context.Context, sessionID, userID string) error

	// VerifyCode rechecks the active second factor for a sensitive action
	// and marks the session as recently verified.
	VerifyCode(ctx context.Context, sessionID, userID, code string) error

	// RecentlyVerified reports whether the session passed a code check
	// within the recent-verification window.
	RecentlyVerified(ctx context.Context, sessionID string) (bool, error)

	// CreateResetCode issues a one-time password reset code for the target.
	CreateResetCode(ctx context.Context, target string) (string, error)

	// ConsumeResetCode validates and burns a reset code.
	ConsumeResetCode(ctx context.Context, target, code string) error
}

type service struct {
	repo         Repository
	redis        *redis.Client
	sessions     session.Manager
	stageTTL     time.Duration
	recentWindow time.Duration
	logger       *slog.Logger
}

// NewService creates the two-factor service. stageTTL bounds how long a
// staged login or reset code stays valid; recentWindow is how long a code
// check vouches for a session.
func NewService(repo Repository, rdb *redis.Client, sessions session.Manager, stageTTL, recentWindow time.Duration, logger *slog.Logger) Service {
	return &service{
		repo:         repo,
		redis:        rdb,
		sessions:     sessions,
		stageTTL:     stageTTL,
		recentWindow: recentWindow,
		logger:       logger,
	}
}

func (s *service) Enabled(ctx context.Context, userID string) (bool, error) {
	_, err := s.repo.Find(ctx, userID, TypeTwoFactor)
	if err != nil {
		if apperror.IsCode(err, 404) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *service) StageLogin(ctx context.Context, userID string, remember bool) (string, error) {
	token, err := randomToken()
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(stagedLogin{UserID: userID, Remember: remember})
	if err != nil {
		return "", fmt.Errorf("marshaling staged login: %w", err)
	}

	if err := s.redis.Set(ctx, stagedLoginKeyPrefix+token, payload, s.stageTTL).Err(); err != nil {
		return "", fmt.Errorf("staging login: %w", err)
	}
	return token, nil
}

func (s *service) CompleteLogin(ctx context.Context, token, code string) (*session.Session, bool, error) {
	if token == "" {
		return nil, false, apperror.NewUnauthorized("verification expired, please log in again")
	}

	raw, err := s.redis.Get(ctx, stagedLoginKeyPrefix+token).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, apperror.NewUnauthorized("verification expired, please log in again")
		}
		return nil, false, fmt.Errorf("loading staged login: %w", err)
	}

	var staged stagedLogin
	if err := json.Unmarshal([]byte(raw), &staged); err != nil {
		return nil, false, fmt.Errorf("unmarshaling staged login: %w", err)
	}

	v, err := s.repo.Find(ctx, staged.UserID, TypeTwoFactor)
	if err != nil {
		return nil, false, err
	}

	if !validTOTP(v.Secret, code, time.Now()) {
		attempts, err := s.redis.Incr(ctx, attemptsKeyPrefix+token).Result()
		if err == nil {
			s.redis.Expire(ctx, attemptsKeyPrefix+token, s.stageTTL)
			if attempts >= maxCodeAttempts {
				s.redis.Del(ctx, stagedLoginKeyPrefix+token, attemptsKeyPrefix+token)
				s.logger.Warn("staged login voided after repeated bad codes", "user_id", staged.UserID)
				return nil, false, apperror.NewUnauthorized("too many attempts, please log in again")
			}
		}
		return nil, false, apperror.NewUnauthorized(invalidCodeMessage)
	}

	// Code accepted: burn the staging before the session exists so the
	// token cannot be replayed.
	s.redis.Del(ctx, stagedLoginKeyPrefix+token, attemptsKeyPrefix+token)

	sess, err := s.sessions.Create(ctx, staged.UserID, staged.Remember)
	if err != nil {
		return nil, false, err
	}

	s.markRecent(ctx, sess.ID)
	s.logger.Info("second factor verified", "user_id", staged.UserID)
	return sess, staged.Remember, nil
}

func (s *service) BeginSetup(ctx context.Context, userID, account string) (*SetupResponse, error) {
	secret, err := generateTOTPSecret()
	if err != nil {
		return nil, err
	}

	v := &Verification{
		Target:    userID,
		Type:      TypeTwoFactorSetup,
		Secret:    secret,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, v); err != nil {
		return nil, err
	}

	return &SetupResponse{
		Secret:     secret,
		OtpauthURL: otpauthURL(issuer, account, secret),
	}, nil
}

func (s *service) ConfirmSetup(ctx context.Context, sessionID, userID, code string) error {
	v, err := s.repo.Find(ctx, userID, TypeTwoFactorSetup)
	if err != nil {
		if apperror.IsCode(err, 404) {
			return apperror.NewBadRequest("no enrollment in progress")
		}
		return err
	}

	if !validTOTP(v.Secret, code, time.Now()) {
		return apperror.NewUnauthorized(invalidCodeMessage)
	}

	if err := s.repo.Upsert(ctx, &Verification{
		Target:    userID,
		Type:      TypeTwoFactor,
		Secret:    v.Secret,
		CreatedAt: time.Now().UTC(),
	}); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, TypeTwoFactorSetup); err != nil {
		return err
	}

	s.markRecent(ctx, sessionID)
	s.logger.Info("second factor enabled", "user_id", userID)
	return nil
}

func (s *service) Disable(ctx context.Context, sessionID, userID string) error {
	recent, err := s.RecentlyVerified(ctx, sessionID)
	if err != nil {
		return err
	}
	if !recent {
		return apperror.NewForbidden("please verify a code before disabling two-factor authentication")
	}

	if err := s.repo.Delete(ctx, userID, TypeTwoFactor); err != nil {
		return err
	}

	s.logger.Info("second factor disabled", "user_id", userID)
	return nil
}

func (s *service) VerifyCode(ctx context.Context, sessionID, userID, code string) error {
	v, err := s.repo.Find(ctx, userID, TypeTwoFactor)
	if err != nil {
		if apperror.IsCode(err, 404) {
			return apperror.NewBadRequest("two-factor authentication is not enabled")
		}
		return err
	}

	if !validTOTP(v.Secret, code, time.Now()) {
		return apperror.NewUnauthorized(invalidCodeMessage)
	}

	s.markRecent(ctx, sessionID)
	return nil
}

func (s *service) RecentlyVerified(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	n, err := s.redis.Exists(ctx, recentKeyPrefix+sessionID).Result()
	if err != nil {
		return false, fmt.Errorf("checking recent verification: %w", err)
	}
	return n > 0, nil
}

// markRecent records that the session just passed a code check. Failure is
// tolerable: the user gets asked again.
func (s *service) markRecent(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := s.redis.Set(ctx, recentKeyPrefix+sessionID, "1", s.recentWindow).Err(); err != nil {
		s.logger.Warn("marking recent verification", "error", err)
	}
}

// --- password reset codes ---

func (s *service) CreateResetCode(ctx context.Context, target string) (string, error) {
	code, err := randomDigits(6)
	if err != nil {
		return "", err
	}

	// Only the digest is stored. A database leak does not leak live codes.
	v := &Verification{
		Target:    target,
		Type:      TypeResetPassword,
		Secret:    hashCode(code),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Upsert(ctx, v); err != nil {
		return "", err
	}
	return code, nil
}

func (s *service) ConsumeResetCode(ctx context.Context, target, code string) error {
	v, err := s.repo.Find(ctx, target, TypeResetPassword)
	if err != nil {
		if apperror.IsCode(err, 404) {
			return apperror.NewBadRequest("invalid or expired reset code")
		}
		return err
	}

	if time.Since(v.CreatedAt) > s.stageTTL {
		_ = s.repo.Delete(ctx, target, TypeResetPassword)
		return apperror.NewBadRequest("invalid or expired reset code")
	}

	if subtle.ConstantTimeCompare([]byte(v.Secret), []byte(hashCode(code))) != 1 {
		return apperror.NewBadRequest("invalid or expired reset code")
	}

	return s.repo.Delete(ctx, target, TypeResetPassword)
}

// --- helpers ---

func randomToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func randomDigits(n int) (string, error) {
	digits := make([]byte, n)
	for i := range digits {
		d, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generating code: %w", err)
		}
		digits[i] = byte('0' + d.Int64())
	}
	return string(digits), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

package twofactor

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/geekconsole/geekconsole/internal/apperror"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
)

// --- mocks ---

type mockRepo struct {
	rows map[string]*Verification // keyed by target + "|" + type
}

func newMockRepo() *mockRepo {
	return &mockRepo{rows: map[string]*Verification{}}
}

func (m *mockRepo) Upsert(ctx context.Context, v *Verification) error {
	m.rows[v.Target+"|"+v.Type] = v
	return nil
}

func (m *mockRepo) Find(ctx context.Context, target, typ string) (*Verification, error) {
	v, ok := m.rows[target+"|"+typ]
	if !ok {
		return nil, apperror.NewNotFound("verification not found")
	}
	return v, nil
}

func (m *mockRepo) Delete(ctx context.Context, target, typ string) error {
	delete(m.rows, target+"|"+typ)
	return nil
}

type mockSessions struct {
	created []string
}

func (m *mockSessions) Create(ctx context.Context, userID string, remember bool) (*session.Session, error) {
	m.created = append(m.created, userID)
	return &session.Session{ID: "sess-1", UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (m *mockSessions) Resolve(ctx context.Context, id string) (*session.Session, error) {
	return nil, apperror.NewUnauthorized("no session")
}

func (m *mockSessions) Destroy(ctx context.Context, id string) error              { return nil }
func (m *mockSessions) DestroyAllForUser(ctx context.Context, userID string) error { return nil }
func (m *mockSessions) ExpirationDate(remember bool) time.Time                     { return time.Now().Add(time.Hour) }

func newTestService(t *testing.T, repo Repository, sessions session.Manager) Service {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewService(repo, rdb, sessions, 10*time.Minute, 5*time.Minute, slog.New(slog.DiscardHandler))
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

func enroll(t *testing.T, repo *mockRepo, userID string) string {
	t.Helper()
	secret, err := generateTOTPSecret()
	if err != nil {
		t.Fatalf("generating secret: %v", err)
	}
	repo.rows[userID+"|"+TypeTwoFactor] = &Verification{
		Target: userID, Type: TypeTwoFactor, Secret: secret, CreatedAt: time.Now(),
	}
	return secret
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totpCode(secret, time.Now())
	if err != nil {
		t.Fatalf("computing code: %v", err)
	}
	return code
}

// --- staged login ---

func TestStagedLoginRoundTrip(t *testing.T) {
	repo := newMockRepo()
	secret := enroll(t, repo, "user-1")
	sessions := &mockSessions{}
	svc := newTestService(t, repo, sessions)

	enabled, err := svc.Enabled(context.Background(), "user-1")
	if err != nil || !enabled {
		t.Fatalf("expected enabled, got %v, %v", enabled, err)
	}

	token, err := svc.StageLogin(context.Background(), "user-1", true)
	if err != nil {
		t.Fatalf("staging: %v", err)
	}
	if len(sessions.created) != 0 {
		t.Fatal("staging must not create a session")
	}

	sess, remember, err := svc.CompleteLogin(context.Background(), token, currentCode(t, secret))
	if err != nil {
		t.Fatalf("completing: %v", err)
	}
	if sess == nil || sess.UserID != "user-1" {
		t.Fatalf("expected session for user-1, got %+v", sess)
	}
	if !remember {
		t.Fatal("remember choice lost across staging")
	}
}

func TestCompleteLoginTokenNotReplayable(t *testing.T) {
	repo := newMockRepo()
	secret := enroll(t, repo, "user-1")
	svc := newTestService(t, repo, &mockSessions{})

	token, err := svc.StageLogin(context.Background(), "user-1", false)
	if err != nil {
		t.Fatalf("staging: %v", err)
	}

	if _, _, err := svc.CompleteLogin(context.Background(), token, currentCode(t, secret)); err != nil {
		t.Fatalf("first completion: %v", err)
	}

	_, _, err = svc.CompleteLogin(context.Background(), token, currentCode(t, secret))
	assertAppError(t, err, 401)
}

func TestCompleteLoginWrongCode(t *testing.T) {
	repo := newMockRepo()
	enroll(t, repo, "user-1")
	sessions := &mockSessions{}
	svc := newTestService(t, repo, sessions)

	token, _ := svc.StageLogin(context.Background(), "user-1", false)

	_, _, err := svc.CompleteLogin(context.Background(), token, "000000")
	assertAppError(t, err, 401)
	if len(sessions.created) != 0 {
		t.Fatal("no session may be created on a bad code")
	}
}

func TestCompleteLoginAttemptsBounded(t *testing.T) {
	repo := newMockRepo()
	secret := enroll(t, repo, "user-1")
	svc := newTestService(t, repo, &mockSessions{})

	token, _ := svc.StageLogin(context.Background(), "user-1", false)

	for i := 0; i < maxCodeAttempts; i++ {
		_, _, err := svc.CompleteLogin(context.Background(), token, "000000")
		assertAppError(t, err, 401)
	}

	// The staging is gone: even the right code no longer works.
	_, _, err := svc.CompleteLogin(context.Background(), token, currentCode(t, secret))
	assertAppError(t, err, 401)
}

func TestCompleteLoginEmptyToken(t *testing.T) {
	svc := newTestService(t, newMockRepo(), &mockSessions{})
	_, _, err := svc.CompleteLogin(context.Background(), "", "123456")
	assertAppError(t, err, 401)
}

// --- enrollment ---

func TestEnrollmentFlow(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockSessions{})
	ctx := context.Background()

	resp, err := svc.BeginSetup(ctx, "user-1", "alice")
	if err != nil {
		t.Fatalf("begin setup: %v", err)
	}
	if resp.Secret == "" || resp.OtpauthURL == "" {
		t.Fatal("setup must return the secret and otpauth url")
	}

	// Not enabled until confirmed.
	if enabled, _ := svc.Enabled(ctx, "user-1"); enabled {
		t.Fatal("unconfirmed enrollment must not count as enabled")
	}

	if err := svc.ConfirmSetup(ctx, "sess-1", "user-1", currentCode(t, resp.Secret)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if enabled, _ := svc.Enabled(ctx, "user-1"); !enabled {
		t.Fatal("confirmed enrollment must count as enabled")
	}
	if _, ok := repo.rows["user-1|"+TypeTwoFactorSetup]; ok {
		t.Fatal("setup row must be removed after confirmation")
	}

	// Confirmation marks the session recently verified.
	if recent, _ := svc.RecentlyVerified(ctx, "sess-1"); !recent {
		t.Fatal("confirming should mark the session recently verified")
	}
}

func TestConfirmSetupWrongCode(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockSessions{})
	ctx := context.Background()

	if _, err := svc.BeginSetup(ctx, "user-1", "alice"); err != nil {
		t.Fatalf("begin setup: %v", err)
	}

	err := svc.ConfirmSetup(ctx, "sess-1", "user-1", "000000")
	assertAppError(t, err, 401)
	if enabled, _ := svc.Enabled(ctx, "user-1"); enabled {
		t.Fatal("a wrong code must not enable the second factor")
	}
}

func TestDisableRequiresRecentVerification(t *testing.T) {
	repo := newMockRepo()
	secret := enroll(t, repo, "user-1")
	svc := newTestService(t, repo, &mockSessions{})
	ctx := context.Background()

	err := svc.Disable(ctx, "sess-1", "user-1")
	assertAppError(t, err, 403)

	if err := svc.VerifyCode(ctx, "sess-1", "user-1", currentCode(t, secret)); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := svc.Disable(ctx, "sess-1", "user-1"); err != nil {
		t.Fatalf("disable after verification: %v", err)
	}
	if enabled, _ := svc.Enabled(ctx, "user-1"); enabled {
		t.Fatal("second factor should be gone")
	}
}

// --- reset codes ---

func TestResetCodeRoundTrip(t *testing.T) {
	svc := newTestService(t, newMockRepo(), &mockSessions{})
	ctx := context.Background()

	code, err := svc.CreateResetCode(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("creating: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected a six digit code, got %q", code)
	}

	if err := svc.ConsumeResetCode(ctx, "alice@example.com", code); err != nil {
		t.Fatalf("consuming: %v", err)
	}

	// One-time: the same code is dead after use.
	err = svc.ConsumeResetCode(ctx, "alice@example.com", code)
	assertAppError(t, err, 400)
}

func TestResetCodeWrongCode(t *testing.T) {
	svc := newTestService(t, newMockRepo(), &mockSessions{})
	ctx := context.Background()

	if _, err := svc.CreateResetCode(ctx, "alice@example.com"); err != nil {
		t.Fatalf("creating: %v", err)
	}

	err := svc.ConsumeResetCode(ctx, "alice@example.com", "999999")
	assertAppError(t, err, 400)
}

func TestResetCodeExpires(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(t, repo, &mockSessions{})
	ctx := context.Background()

	code, err := svc.CreateResetCode(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("creating: %v", err)
	}

	// Age the stored row past the validity window.
	row := repo.rows["alice@example.com|"+TypeResetPassword]
	row.CreatedAt = row.CreatedAt.Add(-time.Hour)

	err = svc.ConsumeResetCode(ctx, "alice@example.com", code)
	assertAppError(t, err, 400)
}

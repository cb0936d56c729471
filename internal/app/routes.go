package app

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/geekconsole/geekconsole/internal/cookies"
	"github.com/geekconsole/geekconsole/internal/plugins/account"
	"github.com/geekconsole/geekconsole/internal/plugins/auth"
	"github.com/geekconsole/geekconsole/internal/plugins/books"
	"github.com/geekconsole/geekconsole/internal/plugins/connections"
	"github.com/geekconsole/geekconsole/internal/plugins/rbac"
	"github.com/geekconsole/geekconsole/internal/plugins/session"
	"github.com/geekconsole/geekconsole/internal/plugins/twofactor"
)

// RegisterRoutes wires every plugin and mounts its routes. This is the
// single place where the dependency graph is assembled: repositories over
// the shared pools, services over repositories, handlers over services.
func (a *App) RegisterRoutes() {
	e := a.Echo
	cfg := a.Config
	logger := slog.Default()

	signer := cookies.NewSigner(cfg.Session.Secrets)

	// Storage layer.
	sessionRepo := session.NewRepository(a.DB)
	userRepo := auth.NewUserRepository(a.DB)
	roleRepo := rbac.NewRoleRepository(a.DB)
	verifyRepo := twofactor.NewRepository(a.DB)
	connRepo := connections.NewRepository(a.DB)
	bookRepo := books.NewRepository(a.DB)

	// Services.
	sessions := session.NewManager(sessionRepo, cfg.Session.TTL, cfg.Session.RememberTTL)
	roles := rbac.NewService(roleRepo, a.Redis)
	secondFactor := twofactor.NewService(verifyRepo, a.Redis, sessions,
		cfg.Session.VerifyTTL, cfg.Session.TwoFactorRecentWindow, logger)
	authSvc := auth.NewService(userRepo, sessions, roles, secondFactor, secondFactor, nil, logger)

	provider := connections.NewGitHubProvider(cfg.GitHub, cfg.BaseURL)
	connSvc := connections.NewService(connRepo, provider, userRepo, roles, sessions,
		a.Redis, cfg.Session.VerifyTTL, logger)

	bookSvc := books.NewService(bookRepo, roles, cfg.Upload.MaxSize, logger)

	users := auth.NewUserFinder(authSvc)
	authed := session.RequireUser(sessions, signer, users)

	// Health check endpoint for container health monitoring.
	e.GET("/healthz", func(c echo.Context) error {
		if err := a.DB.PingContext(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "db unreachable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Plugin routes.
	auth.RegisterRoutes(e, auth.NewHandler(authSvc, sessions, signer, cfg.Session), sessions, signer, users)
	twofactor.RegisterRoutes(e, twofactor.NewHandler(secondFactor, signer, cfg.Session), sessions, signer, users)
	connections.RegisterRoutes(e, connections.NewHandler(connSvc, sessions, signer, cfg.Session), sessions, signer, users)
	books.RegisterRoutes(e, books.NewHandler(bookSvc, cfg.Upload.MaxSize), roles, sessions, signer, users, cfg.Upload.MaxSize)
	rbac.RegisterRoutes(e, rbac.NewHandler(roles), sessions, signer, users)
	account.RegisterRoutes(e, account.NewHandler(authSvc, bookSvc, connSvc), authed)
}

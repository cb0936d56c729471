// Package main seeds a development database: a demo user holding the
// admin role and a shelf of example books. Roles and permissions are
// created by the migrations; this command only adds demo data.
//
// Safe to re-run: it exits without changes when the demo user exists.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/geekconsole/geekconsole/internal/config"
	"github.com/geekconsole/geekconsole/internal/database"
	"github.com/geekconsole/geekconsole/internal/plugins/auth"
	"github.com/geekconsole/geekconsole/internal/plugins/books"
	"github.com/geekconsole/geekconsole/internal/plugins/rbac"
)

const (
	demoUsername = "kody"
	demoPassword = "kodylovesyou"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.NewMariaDB(context.Background(), cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	if err := database.RunMigrations(db, "migrations"); err != nil {
		slog.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := seed(ctx, db); err != nil {
		slog.Error("seeding failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("seed complete", slog.String("username", demoUsername))
}

func seed(ctx context.Context, db *sql.DB) error {
	userRepo := auth.NewUserRepository(db)
	roleRepo := rbac.NewRoleRepository(db)
	bookRepo := books.NewRepository(db)

	exists, err := userRepo.UsernameExists(ctx, demoUsername)
	if err != nil {
		return err
	}
	if exists {
		slog.Info("demo user already present, nothing to do")
		return nil
	}

	hash, err := auth.HashPassword(demoPassword)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	user := &auth.User{
		ID:        uuid.NewString(),
		Username:  demoUsername,
		Email:     demoUsername + "@example.com",
		Name:      "Kody Koala",
		CreatedAt: now,
	}
	if err := userRepo.CreateWithPassword(ctx, user, hash); err != nil {
		return err
	}

	if err := roleRepo.AssignRole(ctx, user.ID, rbac.RoleUser); err != nil {
		return err
	}
	if err := roleRepo.AssignRole(ctx, user.ID, rbac.RoleAdmin); err != nil {
		return err
	}

	shelf := []*books.Book{
		{
			Title: "The Hitchhiker's Guide to the Galaxy", Author: "Douglas Adams",
			Year: 1979, ReadingStatus: books.StatusHaveRead,
			Description: "The misadventures of the last surviving man after Earth's demolition.",
			Comments:    "Always know where your towel is.",
		},
		{
			Title: "Snow Crash", Author: "Neal Stephenson",
			Year: 1992, ReadingStatus: books.StatusReading,
		},
		{
			Title: "The Dispossessed", Author: "Ursula K. Le Guin",
			Year: 1974, ReadingStatus: books.StatusWantToRead,
		},
	}
	for _, b := range shelf {
		b.ID = uuid.NewString()
		b.OwnerID = user.ID
		b.CreatedAt = now
		b.UpdatedAt = now
		if err := bookRepo.Create(ctx, b); err != nil {
			return err
		}
	}

	return nil
}

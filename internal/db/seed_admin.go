package db

import (
	"context"
	"time"

	"github.com/geocoder89/replayhub/internal/config"
	"github.com/geocoder89/replayhub/internal/domain/user"
	"github.com/geocoder89/replayhub/internal/security"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnsureAdminUser seeds the bootstrap admin account on startup. The
// insert is idempotent on email, so an existing account (including one
// whose password changed since) is left alone.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.Admin.Email == "" || cfg.Admin.Password == "" {
		return nil
	}

	hash, err := security.HashPassword(cfg.Admin.Password)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, role, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (email) DO NOTHING`,
		uuid.NewString(), cfg.Admin.Email, hash, cfg.Admin.Name, user.RoleAdmin, now, now,
	)
	return err
}

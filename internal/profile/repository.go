// Package profile looks up user profile records in the relational store.
package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marcogenualdo/session-coordinator/internal/config"
)

var (
	ErrNotFound  = errors.New("profile not found")
	ErrAmbiguous = errors.New("more than one profile matches")
)

// Querier is the subset of pgxpool.Pool the repository needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository struct {
	db      Querier
	timeout time.Duration
	logger  *slog.Logger
}

func NewRepository(db Querier, timeout time.Duration, logger *slog.Logger) *Repository {
	return &Repository{
		db:      db,
		timeout: timeout,
		logger:  logger.With("component", "profile_repository"),
	}
}

// NewPool opens the connection pool described by cfg and checks it answers.
func NewPool(ctx context.Context, cfg config.ProfilesConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profiles dsn: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create profiles pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.QueryTimeout)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to profiles database: %w", err)
	}

	return pool, nil
}

const emailByPhoneQuery = `SELECT COALESCE(email, '') FROM profiles WHERE mobile_number = $1 LIMIT 2`

// EmailByPhone returns the email of the single profile registered with
// phone.
func (r *Repository) EmailByPhone(ctx context.Context, phone string) (string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	rows, err := r.db.Query(ctx, emailByPhoneQuery, phone)
	if err != nil {
		return "", fmt.Errorf("failed to query profiles: %w", err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return "", fmt.Errorf("failed to scan profile: %w", err)
		}
		emails = append(emails, email)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("failed to read profiles: %w", err)
	}

	switch {
	case len(emails) == 0:
		return "", ErrNotFound
	case len(emails) > 1:
		r.logger.Warn("phone number shared by several profiles")
		return "", ErrAmbiguous
	case emails[0] == "":
		return "", ErrNotFound
	}

	return emails[0], nil
}

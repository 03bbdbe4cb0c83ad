package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore is a Postgres-backed UsageStore.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore connects to Postgres and ensures the usage schema exists.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PGStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PGStore) Close() {
	s.pool.Close()
}

func (s *PGStore) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_subscriptions (
			user_id TEXT PRIMARY KEY,
			tier TEXT NOT NULL DEFAULT 'free',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS usage_tracking (
			id BIGSERIAL PRIMARY KEY,
			usage_key TEXT NOT NULL,
			action TEXT NOT NULL,
			count INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_tracking_key_time
			ON usage_tracking (usage_key, created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure usage schema: %w", err)
		}
	}
	return nil
}

func (s *PGStore) Tier(ctx context.Context, userID string) (TierName, error) {
	var tier string
	err := s.pool.QueryRow(ctx,
		`SELECT tier FROM user_subscriptions WHERE user_id = $1`, userID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("query tier: %w", err)
	}
	if !ValidTier(tier) {
		return TierFree, nil
	}
	return TierName(tier), nil
}

// SetTier upserts a user's subscription tier.
func (s *PGStore) SetTier(ctx context.Context, userID string, tier TierName) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_subscriptions (user_id, tier, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET tier = $2, updated_at = now()`,
		userID, string(tier))
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	return nil
}

func (s *PGStore) CountSince(ctx context.Context, key string, t time.Time) (int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(count), 0) FROM usage_tracking
		 WHERE usage_key = $1 AND created_at >= $2`, key, t).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("count usage: %w", err)
	}
	return total, nil
}

func (s *PGStore) Add(ctx context.Context, key string, action Action, n int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_tracking (usage_key, action, count) VALUES ($1, $2, $3)`,
		key, string(action), n)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

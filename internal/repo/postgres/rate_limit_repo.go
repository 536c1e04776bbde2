package postgres

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const rateLimitSchema = `
CREATE TABLE IF NOT EXISTS rate_limits (
	rl_key       TEXT PRIMARY KEY,
	count        INTEGER NOT NULL,
	window_start TIMESTAMPTZ NOT NULL,
	expires_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rate_limits_expires_at ON rate_limits (expires_at);`

// The counter UPSERT: a hit inside the current window increments, a hit after
// it restarts the window at one.
const checkRateLimitQuery = `
	INSERT INTO rate_limits (rl_key, count, window_start, expires_at)
	VALUES ($1, 1, $2, $3)
	ON CONFLICT (rl_key) DO UPDATE SET
		count = CASE
			WHEN rate_limits.window_start <= $4 THEN 1
			ELSE rate_limits.count + 1
		END,
		window_start = CASE
			WHEN rate_limits.window_start <= $4 THEN $2
			ELSE rate_limits.window_start
		END,
		expires_at = $3
	RETURNING count`

type RateLimitRepo struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewRateLimitRepo(pool *pgxpool.Pool) *RateLimitRepo {
	return &RateLimitRepo{pool: pool, now: time.Now}
}

// EnsureSchema creates the rate_limits table when it does not exist.
func (r *RateLimitRepo) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := r.pool.Exec(ctx, rateLimitSchema); err != nil {
		return fmt.Errorf("create rate_limits: %w", err)
	}
	return nil
}

func (r *RateLimitRepo) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	now := r.now().UTC()
	var count int
	err := r.pool.QueryRow(ctx, checkRateLimitQuery,
		hashKey(key), now, now.Add(window), now.Add(-window),
	).Scan(&count)
	if err != nil {
		return true, fmt.Errorf("check rate limit: %w", err)
	}
	return count <= limit, nil
}

func (r *RateLimitRepo) CleanupExpired(ctx context.Context) (int64, error) {
	const q = `DELETE FROM rate_limits WHERE expires_at < now()`

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	result, err := r.pool.Exec(ctx, q)
	if err != nil {
		return 0, fmt.Errorf("cleanup rate limits: %w", err)
	}
	return result.RowsAffected(), nil
}

func (r *RateLimitRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// hashKey keeps client IPs and usernames out of the table.
func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return fmt.Sprintf("%x", sum)
}

package limiter

import (
	"context"
	"errors"
	"time"

	"live-bidding/internal/clock"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PG is a PostgreSQL-backed limiter. The gate is one conditional upsert keyed
// by (user_id, auction_id), so concurrent attempts across processes serialize
// on the row.
type PG struct {
	pool     pgxQuerier
	clock    clock.Clock
	cooldown time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q pgxQuerier, clk clock.Clock, cooldown time.Duration) *PG {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &PG{pool: q, clock: clk, cooldown: cooldown}
}

func (l *PG) TryAcquire(ctx context.Context, userID, auctionID string) (bool, time.Duration, error) {
	now := l.clock.Now()

	const acquire = `
INSERT INTO bid_rate_limits (user_id, auction_id, last_attempt)
VALUES ($1,$2,$3)
ON CONFLICT (user_id, auction_id) DO UPDATE
SET last_attempt = EXCLUDED.last_attempt
WHERE bid_rate_limits.last_attempt <= $3 - $4::interval
RETURNING last_attempt`
	var recorded time.Time
	err := l.pool.QueryRow(ctx, acquire, userID, auctionID, now, l.cooldown).Scan(&recorded)
	switch {
	case err == nil:
		return true, 0, nil
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return false, 0, err
	}

	const last = `SELECT last_attempt FROM bid_rate_limits WHERE user_id=$1 AND auction_id=$2`
	var lastAttempt time.Time
	if err := l.pool.QueryRow(ctx, last, userID, auctionID).Scan(&lastAttempt); err != nil {
		return false, 0, err
	}
	wait := l.cooldown - now.Sub(lastAttempt)
	if wait < 0 {
		wait = 0
	}
	return false, wait, nil
}

// Evict deletes rows whose cooldown elapsed before now.
func (l *PG) Evict(ctx context.Context) (int64, error) {
	const stmt = `DELETE FROM bid_rate_limits WHERE last_attempt <= $1`
	tag, err := l.pool.Exec(ctx, stmt, l.clock.Now().Add(-l.cooldown))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

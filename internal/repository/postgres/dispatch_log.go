package postgres

import (
	"context"
	"time"

	model "live-bidding/internal/models"
)

// DispatchLog records dispatched notification keys so a redelivered event is
// sent at most once across processes.
type DispatchLog struct{ db *DB }

// NewDispatchLog constructs a PostgreSQL-backed dispatch log.
func NewDispatchLog(db *DB) *DispatchLog { return &DispatchLog{db: db} }

// Claim records key and reports whether this caller is the first to claim it.
func (l *DispatchLog) Claim(ctx context.Context, n model.Notification, at time.Time) (bool, error) {
	const stmt = `
INSERT INTO notification_dispatches (key, kind, recipient_id, claimed_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (key) DO NOTHING`
	tag, err := l.db.Pool.Exec(ctx, stmt, n.Key, string(n.Kind), n.Recipient.UserID, at)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, internal("claim dispatch", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release forgets a claim so a failed dispatch can be retried later.
func (l *DispatchLog) Release(ctx context.Context, key string) error {
	const stmt = `DELETE FROM notification_dispatches WHERE key=$1`
	if _, err := l.db.Pool.Exec(ctx, stmt, key); err != nil {
		return internal("release dispatch", err)
	}
	return nil
}

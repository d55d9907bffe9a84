package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live-bidding/internal/biddingerrors"
	model "live-bidding/internal/models"
	"live-bidding/internal/repository"

	"github.com/jackc/pgx/v5"
)

// AuctionRepo implements repository.AuctionDB on PostgreSQL. Appends on one
// auction serialize on a row lock of that auction.
type AuctionRepo struct{ db *DB }

var _ repository.AuctionDB = (*AuctionRepo)(nil)

// NewAuctionRepo constructs an auction repository.
func NewAuctionRepo(db *DB) *AuctionRepo { return &AuctionRepo{db: db} }

const auctionColumns = `id, title, category, starting_price, minimum_increment, start_time, end_time, status, approval_status, submitter_id`

const bidColumns = `id, auction_id, user_id, amount, seq, status, created_at`

func (r *AuctionRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	q := `SELECT ` + auctionColumns + ` FROM auctions WHERE id=$1`
	a, err := scanAuction(r.db.Pool.QueryRow(ctx, q, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
		}
		return model.Auction{}, internal("get auction", err)
	}
	return a, nil
}

func (r *AuctionRepo) ListOpenAuctions(ctx context.Context) ([]model.Auction, error) {
	q := `SELECT ` + auctionColumns + ` FROM auctions
WHERE status='active' AND approval_status='approved'
ORDER BY start_time ASC, id ASC`
	return r.queryAuctions(ctx, "list open auctions", q)
}

// AppendBid locks the auction row, hands the current highest bid to admit and
// inserts the bid with the next per-auction sequence, all in one transaction.
func (r *AuctionRepo) AppendBid(ctx context.Context, bid model.Bid, admit repository.AdmitFunc) (model.Bid, error) {
	const lock = `SELECT id FROM auctions WHERE id=$1 FOR UPDATE`
	highestQ := `SELECT ` + bidColumns + ` FROM bids
WHERE auction_id=$1 AND status='active'
ORDER BY amount DESC, seq ASC LIMIT 1`
	const ins = `
INSERT INTO bids (id, auction_id, user_id, amount, seq, status, created_at)
SELECT $1, $2, $3, $4, COALESCE(MAX(seq), 0) + 1, 'active', GREATEST($5, COALESCE(MAX(created_at), $5))
FROM bids WHERE auction_id=$2
RETURNING seq, created_at`

	var admitErr error
	err := r.db.withTx(ctx, func(tx pgx.Tx) error {
		var id string
		if err := tx.QueryRow(ctx, lock, bid.AuctionID).Scan(&id); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("append bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
			}
			return internal("lock auction", err)
		}

		var highest *model.Bid
		h, err := scanBid(tx.QueryRow(ctx, highestQ, bid.AuctionID))
		switch {
		case err == nil:
			highest = &h
		case errors.Is(err, pgx.ErrNoRows):
		default:
			return internal("read highest bid", err)
		}

		if admit != nil {
			if admitErr = admit(highest); admitErr != nil {
				return admitErr
			}
		}

		if err := tx.QueryRow(ctx, ins, bid.BidID, bid.AuctionID, bid.UserID, bid.Amount, bid.CreatedAt).
			Scan(&bid.Seq, &bid.CreatedAt); err != nil {
			return internal("insert bid", err)
		}
		return nil
	})
	if err != nil {
		if admitErr != nil {
			return model.Bid{}, admitErr
		}
		if errors.Is(err, biddingerrors.ErrAuctionNotFound) || errors.Is(err, biddingerrors.ErrInternal) {
			return model.Bid{}, err
		}
		return model.Bid{}, internal("append bid", err)
	}

	bid.Status = model.BidActive
	return bid, nil
}

func (r *AuctionRepo) ListActiveBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	q := `SELECT ` + bidColumns + ` FROM bids
WHERE auction_id=$1 AND status='active'
ORDER BY seq DESC`
	rows, err := r.db.Pool.Query(ctx, q, auctionID)
	if err != nil {
		return nil, internal("list bids", err)
	}
	defer rows.Close()

	var out []model.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, internal("scan bid", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, internal("list bids", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return out, nil
}

func (r *AuctionRepo) GetHighestBid(ctx context.Context, auctionID string) (model.Bid, error) {
	q := `SELECT ` + bidColumns + ` FROM bids
WHERE auction_id=$1 AND status='active'
ORDER BY amount DESC, seq ASC LIMIT 1`
	b, err := scanBid(r.db.Pool.QueryRow(ctx, q, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
		}
		return model.Bid{}, internal("get highest bid", err)
	}
	return b, nil
}

func (r *AuctionRepo) GetUserHighestBid(ctx context.Context, userID, auctionID string) (model.Bid, error) {
	q := `SELECT ` + bidColumns + ` FROM bids
WHERE auction_id=$1 AND user_id=$2 AND status='active'
ORDER BY amount DESC, seq ASC LIMIT 1`
	b, err := scanBid(r.db.Pool.QueryRow(ctx, q, auctionID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Bid{}, fmt.Errorf("get bid of user %s for auction %s: %w", userID, auctionID, biddingerrors.ErrNoBids)
		}
		return model.Bid{}, internal("get user highest bid", err)
	}
	return b, nil
}

func (r *AuctionRepo) GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error) {
	q := `SELECT ` + auctionColumns + ` FROM auctions
WHERE id IN (SELECT DISTINCT auction_id FROM bids WHERE user_id=$1)
ORDER BY start_time ASC, id ASC`
	out, err := r.queryAuctions(ctx, "get auctions by user", q, userID)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}
	return out, nil
}

// ActivateDue is a single conditional update; rows already active are not
// matched again, so overlapping sweeps never return the same auction twice.
func (r *AuctionRepo) ActivateDue(ctx context.Context, now time.Time) ([]model.Auction, error) {
	q := `UPDATE auctions SET status='active'
WHERE status='pending' AND approval_status='approved' AND start_time <= $1
RETURNING ` + auctionColumns
	return r.queryAuctions(ctx, "activate due auctions", q, now)
}

// UpsertAuction writes an auction row. Used to seed the catalog.
func (r *AuctionRepo) UpsertAuction(ctx context.Context, a model.Auction) error {
	const stmt = `
INSERT INTO auctions (id, title, category, starting_price, minimum_increment, start_time, end_time, status, approval_status, submitter_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO UPDATE SET
  title=EXCLUDED.title, category=EXCLUDED.category,
  starting_price=EXCLUDED.starting_price, minimum_increment=EXCLUDED.minimum_increment,
  start_time=EXCLUDED.start_time, end_time=EXCLUDED.end_time,
  approval_status=EXCLUDED.approval_status, submitter_id=EXCLUDED.submitter_id`
	_, err := r.db.Pool.Exec(ctx, stmt,
		a.AuctionID, a.Title, a.Category, a.StartingPrice, a.MinimumIncrement,
		a.StartTime, a.EndTime, string(a.Status), string(a.ApprovalStatus), a.SubmitterID)
	if err != nil {
		return internal("upsert auction", err)
	}
	return nil
}

func (r *AuctionRepo) queryAuctions(ctx context.Context, op, q string, args ...any) ([]model.Auction, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, internal(op, err)
	}
	defer rows.Close()

	var out []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, internal(op, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, internal(op, err)
	}
	return out, nil
}

func scanAuction(row pgx.Row) (model.Auction, error) {
	var (
		a                      model.Auction
		status, approvalStatus string
	)
	err := row.Scan(&a.AuctionID, &a.Title, &a.Category, &a.StartingPrice, &a.MinimumIncrement,
		&a.StartTime, &a.EndTime, &status, &approvalStatus, &a.SubmitterID)
	if err != nil {
		return model.Auction{}, err
	}
	a.Status = model.AuctionStatus(status)
	a.ApprovalStatus = model.ApprovalStatus(approvalStatus)
	return a, nil
}

func scanBid(row pgx.Row) (model.Bid, error) {
	var (
		b      model.Bid
		status string
	)
	if err := row.Scan(&b.BidID, &b.AuctionID, &b.UserID, &b.Amount, &b.Seq, &status, &b.CreatedAt); err != nil {
		return model.Bid{}, err
	}
	b.Status = model.BidStatus(status)
	return b, nil
}

func internal(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, biddingerrors.ErrInternal, err)
}

package bidding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live-bidding/internal/aggregator"
	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/clock"
	"live-bidding/internal/limiter"
	"live-bidding/internal/models"
	"live-bidding/internal/repository"
	"live-bidding/utils"

	"github.com/shopspring/decimal"
)

// DefaultBidTimeout bounds the rate-limit check and the ledger append of one bid.
const DefaultBidTimeout = 3 * time.Second

// Publisher fans admitted bids out to the auction's subscribers
type Publisher interface {
	Publish(ev models.BidAccepted) int
}

// AuctionSummary is an open auction with its derived price
type AuctionSummary struct {
	models.Auction
	CurrentHighest *decimal.Decimal `json:"current_highest"`
	BidCount       int              `json:"bid_count"`
}

// BiddingService is the single write path for bids and serves the derived reads
type BiddingService struct {
	repo    repository.AuctionDB
	limiter limiter.Limiter
	agg     *aggregator.Aggregator
	pub     Publisher
	clock   clock.Clock
	timeout time.Duration
	locks   *auctionLocks
}

// Option configures a BiddingService
type Option func(*BiddingService)

// WithBidTimeout overrides DefaultBidTimeout
func WithBidTimeout(d time.Duration) Option {
	return func(s *BiddingService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(repo repository.AuctionDB, lim limiter.Limiter, agg *aggregator.Aggregator, pub Publisher, clk clock.Clock, opts ...Option) *BiddingService {
	s := &BiddingService{
		repo:    repo,
		limiter: lim,
		agg:     agg,
		pub:     pub,
		clock:   clk,
		timeout: DefaultBidTimeout,
		locks:   newAuctionLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceBid validates and admits a user's bid. The rate-limit gate runs before
// any ledger read; the read of the current highest bid and the append happen
// under the auction's lock, and the BidAccepted event is published before the
// lock is released so subscribers see admission order.
func (s *BiddingService) PlaceBid(ctx context.Context, userID, auctionID string, amount decimal.Decimal) (models.Bid, error) {
	if userID == "" {
		return models.Bid{}, fmt.Errorf("service: %w", biddingerrors.ErrAuthRequired)
	}
	if err := validateBid(auctionID, amount); err != nil {
		return models.Bid{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			return models.Bid{}, fmt.Errorf("service: %w - auction %s", biddingerrors.ErrNotFound, auctionID)
		}
		return models.Bid{}, s.storageError(ctx, "load auction", err)
	}
	now := s.clock.Now()
	if !auction.IsOpen() || (!auction.EndTime.IsZero() && !now.Before(auction.EndTime)) {
		return models.Bid{}, fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrNotFound, auctionID, auction.Status)
	}

	ok, wait, err := s.limiter.TryAcquire(ctx, userID, auctionID)
	if err != nil {
		return models.Bid{}, s.storageError(ctx, "rate limiter", err)
	}
	if !ok {
		utils.Info("bid rate limited", map[string]any{"auction_id": auctionID, "user_id": userID, "retry_after": wait.String()})
		return models.Bid{}, fmt.Errorf("service: %w", &biddingerrors.RateLimitedError{RetryAfter: wait})
	}

	unlock, err := s.locks.lock(ctx, auctionID)
	if err != nil {
		return models.Bid{}, s.storageError(ctx, "wait for auction lock", err)
	}
	defer unlock()

	bid := models.Bid{
		BidID:     utils.GenerateID(),
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		Status:    models.BidActive,
		CreatedAt: now,
	}

	// From here the append runs to completion or fails whole; the caller going
	// away must not abandon a commit in flight.
	appendCtx, cancelAppend := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancelAppend()

	bid, err = s.repo.AppendBid(appendCtx, bid, func(highest *models.Bid) error {
		required := RequiredMinimum(auction, highest)
		// a zero increment still needs to beat the highest bid
		if amount.LessThan(required) || (highest != nil && !amount.GreaterThan(highest.Amount)) {
			return &biddingerrors.BidTooLowError{Required: required}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, biddingerrors.ErrBidTooLow) {
			return models.Bid{}, fmt.Errorf("service: %w", err)
		}
		if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			return models.Bid{}, fmt.Errorf("service: %w - auction %s", biddingerrors.ErrNotFound, auctionID)
		}
		// a failed commit may still have landed; the ledger decides the next read
		s.agg.Invalidate(auctionID)
		return models.Bid{}, s.storageError(appendCtx, "append bid", err)
	}

	ev := models.BidAccepted{AuctionID: auctionID, Bid: bid}
	s.agg.Apply(ev)
	delivered := s.pub.Publish(ev)

	utils.Info("bid admitted", map[string]any{
		"bid_id":      bid.BidID,
		"auction_id":  auctionID,
		"user_id":     userID,
		"amount":      bid.Amount.String(),
		"seq":         bid.Seq,
		"subscribers": delivered,
	})
	return bid, nil
}

// RequiredMinimum is the smallest admissible amount: the starting price for the
// first bid, otherwise the current highest plus the minimum increment.
func RequiredMinimum(auction models.Auction, highest *models.Bid) decimal.Decimal {
	if highest == nil {
		return auction.StartingPrice
	}
	return highest.Amount.Add(auction.MinimumIncrement)
}

// validateBid checks input shape before anything touches storage
func validateBid(auctionID string, amount decimal.Decimal) error {
	if auctionID == "" {
		return fmt.Errorf("service: %w - missing auctionID", biddingerrors.ErrInvalidBid)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	if !amount.Equal(amount.Round(2)) {
		return fmt.Errorf("service: %w - amount has more than two decimal places", biddingerrors.ErrInvalidBid)
	}
	return nil
}

// storageError classifies a failed storage step as Timeout or Internal
func (s *BiddingService) storageError(ctx context.Context, step string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("service: %w - %s: %v", biddingerrors.ErrTimeout, step, err)
	}
	if errors.Is(err, biddingerrors.ErrInternal) {
		return fmt.Errorf("service: %s: %w", step, err)
	}
	return fmt.Errorf("service: %w - %s: %v", biddingerrors.ErrInternal, step, err)
}

// visibleAuction hides auctions that are unknown, unapproved or not yet live
func (s *BiddingService) visibleAuction(ctx context.Context, auctionID string) error {
	auction, err := s.repo.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			return fmt.Errorf("service: %w - auction %s", biddingerrors.ErrNotFound, auctionID)
		}
		return s.storageError(ctx, "load auction", err)
	}
	if !auction.IsVisible() {
		return fmt.Errorf("service: %w - auction %s is %s", biddingerrors.ErrNotFound, auctionID, auction.Status)
	}
	return nil
}

// GetBidsForAuction returns active bids for an auction, newest first
func (s *BiddingService) GetBidsForAuction(ctx context.Context, auctionID string) ([]models.Bid, error) {
	if auctionID == "" {
		return nil, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	if err := s.visibleAuction(ctx, auctionID); err != nil {
		return nil, err
	}

	bids, err := s.repo.ListActiveBids(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}

	return bids, nil
}

// GetWinningBid returns the highest bid record for an auction
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	if auctionID == "" {
		return models.Bid{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}

	if err := s.visibleAuction(ctx, auctionID); err != nil {
		return models.Bid{}, err
	}

	bid, err := s.repo.GetHighestBid(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}

	return bid, nil
}

// AuctionStats returns the current highest amount and bid count for an auction
func (s *BiddingService) AuctionStats(ctx context.Context, auctionID string) (aggregator.Stats, error) {
	if auctionID == "" {
		return aggregator.Stats{}, fmt.Errorf("service: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}
	if err := s.visibleAuction(ctx, auctionID); err != nil {
		return aggregator.Stats{}, err
	}

	stats, err := s.agg.Stats(ctx, auctionID)
	if err != nil {
		return aggregator.Stats{}, fmt.Errorf("service: failed to aggregate auction %s: %w", auctionID, err)
	}
	return stats, nil
}

// ListOpenAuctions returns approved active auctions with their current price
func (s *BiddingService) ListOpenAuctions(ctx context.Context) ([]AuctionSummary, error) {
	auctions, err := s.repo.ListOpenAuctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}

	out := make([]AuctionSummary, 0, len(auctions))
	for _, a := range auctions {
		stats, err := s.agg.Stats(ctx, a.AuctionID)
		if err != nil {
			return nil, fmt.Errorf("service: failed to aggregate auction %s: %w", a.AuctionID, err)
		}
		sum := AuctionSummary{Auction: a, BidCount: stats.Count}
		if stats.HasBids {
			h := stats.Highest
			sum.CurrentHighest = &h
		}
		out = append(out, sum)
	}
	return out, nil
}

// GetAuctionsByUser returns all auctions a user has placed bids on
func (s *BiddingService) GetAuctionsByUser(ctx context.Context, userID string) ([]models.Auction, error) {
	if userID == "" {
		return nil, fmt.Errorf("service: %w - empty user ID", biddingerrors.ErrInvalidBid)
	}

	auctions, err := s.repo.GetAuctionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get auctions for user %s: %w", userID, err)
	}

	return auctions, nil
}

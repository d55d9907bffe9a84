// Package aggregator derives the current price and bid count of each auction
// from the bid ledger and keeps them cached between admissions.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"live-bidding/internal/biddingerrors"
	model "live-bidding/internal/models"

	"github.com/shopspring/decimal"
)

// BidLister is the ledger read the aggregator recomputes from.
type BidLister interface {
	ListActiveBids(ctx context.Context, auctionID string) ([]model.Bid, error)
}

// Stats is the derived state of one auction.
type Stats struct {
	Highest decimal.Decimal `json:"highest"`
	HasBids bool            `json:"has_bids"`
	Count   int             `json:"count"`
	LastSeq int64           `json:"last_seq"`
}

// Aggregator caches Stats per auction. The ledger stays authoritative: a cache
// miss is always filled by recomputation.
type Aggregator struct {
	ledger BidLister

	mu    sync.RWMutex
	cache map[string]Stats // key: auctionID
	// highest sequence seen by Apply for auctions not cached at the time;
	// a recomputation older than this is returned but not cached.
	unseen map[string]int64
}

// New creates an aggregator over the ledger.
func New(ledger BidLister) *Aggregator {
	return &Aggregator{ledger: ledger, cache: make(map[string]Stats), unseen: make(map[string]int64)}
}

// Recompute derives Stats from the ledger and replaces the cached value.
func (a *Aggregator) Recompute(ctx context.Context, auctionID string) (Stats, error) {
	bids, err := a.ledger.ListActiveBids(ctx, auctionID)
	if err != nil && !errors.Is(err, biddingerrors.ErrNoBids) {
		return Stats{}, fmt.Errorf("aggregator: recompute %s: %w", auctionID, err)
	}

	s := FromBids(bids)

	a.mu.Lock()
	defer a.mu.Unlock()
	if s.LastSeq < a.unseen[auctionID] {
		return s, nil
	}
	delete(a.unseen, auctionID)
	if cur, ok := a.cache[auctionID]; ok && cur.LastSeq > s.LastSeq {
		return cur, nil
	}
	a.cache[auctionID] = s
	return s, nil
}

// Apply folds an admitted bid into the cache. Every admitted bid is strictly
// higher than the previous highest, so the cached price is simply replaced.
// Events at or below the cached sequence are redeliveries and are ignored.
// Auctions not yet cached are left for the next read to recompute.
func (a *Aggregator) Apply(ev model.BidAccepted) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, ok := a.cache[ev.AuctionID]
	if !ok {
		if ev.Bid.Seq > a.unseen[ev.AuctionID] {
			a.unseen[ev.AuctionID] = ev.Bid.Seq
		}
		return
	}
	if ev.Bid.Seq <= s.LastSeq || ev.Bid.Status == model.BidRetracted {
		return
	}
	s.Highest = ev.Bid.Amount
	s.HasBids = true
	s.Count++
	s.LastSeq = ev.Bid.Seq
	a.cache[ev.AuctionID] = s
}

// Stats returns cached Stats, recomputing on a miss.
func (a *Aggregator) Stats(ctx context.Context, auctionID string) (Stats, error) {
	a.mu.RLock()
	s, ok := a.cache[auctionID]
	a.mu.RUnlock()
	if ok {
		return s, nil
	}
	return a.Recompute(ctx, auctionID)
}

// CurrentHighest returns the highest active bid amount; ok is false when there are no bids.
func (a *Aggregator) CurrentHighest(ctx context.Context, auctionID string) (decimal.Decimal, bool, error) {
	s, err := a.Stats(ctx, auctionID)
	if err != nil {
		return decimal.Zero, false, err
	}
	return s.Highest, s.HasBids, nil
}

// BidCount returns the number of active bids.
func (a *Aggregator) BidCount(ctx context.Context, auctionID string) (int, error) {
	s, err := a.Stats(ctx, auctionID)
	if err != nil {
		return 0, err
	}
	return s.Count, nil
}

// Invalidate drops the cached value for an auction.
func (a *Aggregator) Invalidate(auctionID string) {
	a.mu.Lock()
	delete(a.cache, auctionID)
	a.mu.Unlock()
}

// FromBids computes Stats as max(amount) and count over active bids.
func FromBids(bids []model.Bid) Stats {
	var s Stats
	for _, b := range bids {
		if b.Status != model.BidActive {
			continue
		}
		s.Count++
		if !s.HasBids || b.Amount.GreaterThan(s.Highest) {
			s.Highest = b.Amount
			s.HasBids = true
		}
		if b.Seq > s.LastSeq {
			s.LastSeq = b.Seq
		}
	}
	return s
}

package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"live-bidding/internal/biddingerrors"
	model "live-bidding/internal/models"
)

//go:generate mockgen -destination=mock_auctiondb.go -package=repository live-bidding/internal/repository AuctionDB

// AdmitFunc decides whether a bid may be appended given the current highest
// active bid (nil when the auction has none). It runs inside the per-auction
// serialization point, so the highest bid cannot change before the append.
type AdmitFunc func(highest *model.Bid) error

// AuctionDB defines the auction catalog and bid ledger storage
type AuctionDB interface {
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	ListOpenAuctions(ctx context.Context) ([]model.Auction, error)
	AppendBid(ctx context.Context, bid model.Bid, admit AdmitFunc) (model.Bid, error)
	ListActiveBids(ctx context.Context, auctionID string) ([]model.Bid, error)
	GetHighestBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetUserHighestBid(ctx context.Context, userID, auctionID string) (model.Bid, error)
	GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error)
	ActivateDue(ctx context.Context, now time.Time) ([]model.Auction, error)
}

type ledger struct {
	mu   sync.Mutex
	bids []model.Bid // insertion order
	seq  int64
}

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionDB.
// Appends on one auction serialize on that auction's ledger lock only.
type MemoryRepo struct {
	mu           sync.RWMutex
	auctions     map[string]model.Auction // key: auctionID
	ledgers      map[string]*ledger       // key: auctionID
	userAuctions map[string][]string      // key: userID -> auctionIDs user has bid on
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions:     make(map[string]model.Auction),
		ledgers:      make(map[string]*ledger),
		userAuctions: make(map[string][]string),
	}
}

// AddAuction stores an auction in the catalog. The submission workflow owns
// auctions in production; this is used for seeding and tests.
func (r *MemoryRepo) AddAuction(a model.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.auctions[a.AuctionID] = a
	if _, ok := r.ledgers[a.AuctionID]; !ok {
		r.ledgers[a.AuctionID] = &ledger{}
	}
}

// GetAuction returns an auction by id
func (r *MemoryRepo) GetAuction(_ context.Context, auctionID string) (model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return a, nil
}

// ListOpenAuctions returns auctions that are approved and active, ordered by start time
func (r *MemoryRepo) ListOpenAuctions(_ context.Context) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Auction, 0, len(r.auctions))
	for _, a := range r.auctions {
		if a.IsOpen() {
			out = append(out, a)
		}
	}
	sortAuctions(out)
	return out, nil
}

// AppendBid appends a bid to the auction's ledger if admit accepts it.
// Seq and CreatedAt are assigned so both are non-decreasing per auction.
func (r *MemoryRepo) AppendBid(_ context.Context, bid model.Bid, admit AdmitFunc) (model.Bid, error) {
	r.mu.RLock()
	l, ok := r.ledgers[bid.AuctionID]
	r.mu.RUnlock()
	if !ok {
		return model.Bid{}, fmt.Errorf("append bid for auction %s: %w", bid.AuctionID, biddingerrors.ErrAuctionNotFound)
	}

	l.mu.Lock()
	var highest *model.Bid
	if h, found := highestActive(l.bids); found {
		highest = &h
	}
	if admit != nil {
		if err := admit(highest); err != nil {
			l.mu.Unlock()
			return model.Bid{}, err
		}
	}

	l.seq++
	bid.Seq = l.seq
	bid.Status = model.BidActive
	if n := len(l.bids); n > 0 && bid.CreatedAt.Before(l.bids[n-1].CreatedAt) {
		bid.CreatedAt = l.bids[n-1].CreatedAt
	}
	l.bids = append(l.bids, bid)
	l.mu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.userAuctions[bid.UserID] {
		if id == bid.AuctionID {
			return bid, nil
		}
	}
	r.userAuctions[bid.UserID] = append(r.userAuctions[bid.UserID], bid.AuctionID)

	return bid, nil
}

// ListActiveBids returns active bids for an auction, newest first
func (r *MemoryRepo) ListActiveBids(_ context.Context, auctionID string) ([]model.Bid, error) {
	l, err := r.ledger(auctionID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Bid, 0, len(l.bids))
	for i := len(l.bids) - 1; i >= 0; i-- {
		if l.bids[i].Status == model.BidActive {
			out = append(out, l.bids[i])
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("list bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return out, nil
}

// GetHighestBid returns the highest active bid for an auction
func (r *MemoryRepo) GetHighestBid(_ context.Context, auctionID string) (model.Bid, error) {
	l, err := r.ledger(auctionID)
	if err != nil {
		return model.Bid{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := highestActive(l.bids)
	if !ok {
		return model.Bid{}, fmt.Errorf("get highest bid for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	return h, nil
}

// GetUserHighestBid returns the user's own highest active bid on an auction
func (r *MemoryRepo) GetUserHighestBid(_ context.Context, userID, auctionID string) (model.Bid, error) {
	l, err := r.ledger(auctionID)
	if err != nil {
		return model.Bid{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	own := make([]model.Bid, 0)
	for _, b := range l.bids {
		if b.UserID == userID {
			own = append(own, b)
		}
	}
	h, ok := highestActive(own)
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid of user %s for auction %s: %w", userID, auctionID, biddingerrors.ErrNoBids)
	}
	return h, nil
}

// GetAuctionsByUser returns all auctions a user has bid on
func (r *MemoryRepo) GetAuctionsByUser(_ context.Context, userID string) ([]model.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, ok := r.userAuctions[userID]
	if !ok || len(ids) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", userID, biddingerrors.ErrUserNoBids)
	}

	out := make([]model.Auction, 0, len(ids))
	for _, id := range ids {
		if a, exists := r.auctions[id]; exists {
			out = append(out, a)
		}
	}
	return out, nil
}

// ActivateDue promotes every approved pending auction whose start time has
// passed and returns exactly the auctions changed by this call.
func (r *MemoryRepo) ActivateDue(_ context.Context, now time.Time) ([]model.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var activated []model.Auction
	for id, a := range r.auctions {
		if !a.IsDue(now) {
			continue
		}
		a.Status = model.AuctionActive
		r.auctions[id] = a
		activated = append(activated, a)
	}
	sortAuctions(activated)
	return activated, nil
}

func (r *MemoryRepo) ledger(auctionID string) (*ledger, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.ledgers[auctionID]
	if !ok {
		return nil, fmt.Errorf("ledger for auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	return l, nil
}

// highestActive picks the max amount among active bids; ties go to the earlier sequence.
func highestActive(bids []model.Bid) (model.Bid, bool) {
	var (
		winning model.Bid
		found   bool
	)
	for _, b := range bids {
		if b.Status != model.BidActive {
			continue
		}
		if !found || b.Amount.GreaterThan(winning.Amount) || (b.Amount.Equal(winning.Amount) && b.Seq < winning.Seq) {
			winning = b
			found = true
		}
	}
	return winning, found
}

func sortAuctions(a []model.Auction) {
	sort.Slice(a, func(i, j int) bool {
		if a[i].StartTime.Equal(a[j].StartTime) {
			return a[i].AuctionID < a[j].AuctionID
		}
		return a[i].StartTime.Before(a[j].StartTime)
	})
}

package notifier

import (
	"sync"

	model "live-bidding/internal/models"

	"github.com/shopspring/decimal"
)

// Watcher holds one user's watermark on one auction.
type Watcher struct {
	userID    string
	auctionID string

	mu        sync.Mutex
	lastKnown decimal.Decimal
	hasBid    bool
}

// NewWatcher creates a watcher. hasBid is false when the user has not bid yet;
// such a watcher reports nothing until the user's first bid arrives.
func NewWatcher(userID, auctionID string, lastKnown decimal.Decimal, hasBid bool) *Watcher {
	return &Watcher{userID: userID, auctionID: auctionID, lastKnown: lastKnown, hasBid: hasBid}
}

// Entry returns the current watermark.
func (w *Watcher) Entry() model.WatchEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return model.WatchEntry{UserID: w.userID, AuctionID: w.auctionID, LastKnownBid: w.lastKnown}
}

// Observe applies one BidAccepted event. It returns an OutbidEvent when
// another user's bid exceeds the watermark. The watermark only moves on the
// user's own bids, so observing the same event twice yields the same result.
func (w *Watcher) Observe(ev model.BidAccepted) (model.OutbidEvent, bool) {
	if ev.AuctionID != w.auctionID || ev.Bid.Status == model.BidRetracted {
		return model.OutbidEvent{}, false
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if ev.Bid.UserID == w.userID {
		if !w.hasBid || ev.Bid.Amount.GreaterThan(w.lastKnown) {
			w.lastKnown = ev.Bid.Amount
			w.hasBid = true
		}
		return model.OutbidEvent{}, false
	}

	if !w.hasBid || !ev.Bid.Amount.GreaterThan(w.lastKnown) {
		return model.OutbidEvent{}, false
	}

	return model.OutbidEvent{
		UserID:      w.userID,
		AuctionID:   w.auctionID,
		BidID:       ev.Bid.BidID,
		PreviousBid: w.lastKnown,
		NewBid:      ev.Bid.Amount,
	}, true
}

// Package notifier watches the bid stream of the auctions a user is invested
// in and emits one outbid notification per outbidding bid.
package notifier

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/feed"
	model "live-bidding/internal/models"
	"live-bidding/utils"

	"github.com/shopspring/decimal"
)

const defaultDispatchTimeout = 10 * time.Second

// Ledger is the bid history used to rebuild watermarks.
type Ledger interface {
	GetAuction(ctx context.Context, auctionID string) (model.Auction, error)
	GetHighestBid(ctx context.Context, auctionID string) (model.Bid, error)
	GetUserHighestBid(ctx context.Context, userID, auctionID string) (model.Bid, error)
	GetAuctionsByUser(ctx context.Context, userID string) ([]model.Auction, error)
}

// Subscriber opens a per-auction event subscription.
type Subscriber interface {
	Subscribe(auctionID string) *feed.Subscription
}

// Sender dispatches a notification at most once per key.
type Sender interface {
	Send(ctx context.Context, n model.Notification) (bool, error)
}

// Profiles resolves the addressing data of a user.
type Profiles interface {
	Profile(ctx context.Context, userID string) (model.User, error)
}

type watchKey struct {
	userID    string
	auctionID string
}

type watch struct {
	watcher *Watcher
	sub     *feed.Subscription
	done    chan struct{}
}

// Notifier owns one subscription task per watched (user, auction).
type Notifier struct {
	ledger   Ledger
	feed     Subscriber
	sender   Sender
	profiles Profiles
	timeout  time.Duration

	mu       sync.Mutex
	watches  map[watchKey]*watch
	sessions map[string]bool // users with an open session
	closed   bool
}

// New creates a notifier.
func New(ledger Ledger, f Subscriber, sender Sender, profiles Profiles) *Notifier {
	return &Notifier{
		ledger:   ledger,
		feed:     f,
		sender:   sender,
		profiles: profiles,
		timeout:  defaultDispatchTimeout,
		watches:  make(map[watchKey]*watch),
		sessions: make(map[string]bool),
	}
}

// Subscribe starts watching auctionID for userID and returns the watermark
// rebuilt from the ledger. Subscribing twice is a no-op.
func (n *Notifier) Subscribe(ctx context.Context, userID, auctionID string) (model.WatchEntry, error) {
	if userID == "" {
		return model.WatchEntry{}, fmt.Errorf("notifier: %w", biddingerrors.ErrAuthRequired)
	}
	if auctionID == "" {
		return model.WatchEntry{}, fmt.Errorf("notifier: %w - empty auction ID", biddingerrors.ErrInvalidBid)
	}
	key := watchKey{userID: userID, auctionID: auctionID}

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return model.WatchEntry{}, errors.New("notifier: closed")
	}
	if w, ok := n.watches[key]; ok {
		n.mu.Unlock()
		return w.watcher.Entry(), nil
	}
	n.mu.Unlock()

	auction, err := n.ledger.GetAuction(ctx, auctionID)
	if err != nil {
		if errors.Is(err, biddingerrors.ErrAuctionNotFound) {
			return model.WatchEntry{}, fmt.Errorf("notifier: %w - auction %s", biddingerrors.ErrNotFound, auctionID)
		}
		return model.WatchEntry{}, fmt.Errorf("notifier: load auction %s: %w", auctionID, err)
	}
	if !auction.IsOpen() {
		return model.WatchEntry{}, fmt.Errorf("notifier: %w - auction %s is %s", biddingerrors.ErrNotFound, auctionID, auction.Status)
	}

	// Subscribe before reading the watermark so no bid falls between the two;
	// replaying a bid already reflected in the watermark changes nothing.
	sub := n.feed.Subscribe(auctionID)

	lastKnown, hasBid := decimal.Zero, false
	own, err := n.ledger.GetUserHighestBid(ctx, userID, auctionID)
	switch {
	case err == nil:
		lastKnown, hasBid = own.Amount, true
	case errors.Is(err, biddingerrors.ErrNoBids):
	default:
		sub.Close()
		return model.WatchEntry{}, fmt.Errorf("notifier: load watermark for %s/%s: %w", userID, auctionID, err)
	}

	w := &watch{
		watcher: NewWatcher(userID, auctionID, lastKnown, hasBid),
		sub:     sub,
		done:    make(chan struct{}),
	}

	// A rival bid admitted before the subscription existed was never
	// published to it; catch up on the current highest.
	var missed *model.OutbidEvent
	if hasBid {
		highest, err := n.ledger.GetHighestBid(ctx, auctionID)
		switch {
		case err == nil:
			if ev, ok := w.watcher.Observe(model.BidAccepted{AuctionID: auctionID, Bid: highest}); ok {
				missed = &ev
			}
		case errors.Is(err, biddingerrors.ErrNoBids):
		default:
			sub.Close()
			return model.WatchEntry{}, fmt.Errorf("notifier: load highest bid for %s: %w", auctionID, err)
		}
	}

	n.mu.Lock()
	if existing, ok := n.watches[key]; ok || n.closed {
		n.mu.Unlock()
		sub.Close()
		if ok {
			return existing.watcher.Entry(), nil
		}
		return model.WatchEntry{}, errors.New("notifier: closed")
	}
	n.watches[key] = w
	n.mu.Unlock()

	go n.run(w)
	if missed != nil {
		n.dispatch(*missed)
	}

	utils.Info("watch started", map[string]any{
		"user_id":        userID,
		"auction_id":     auctionID,
		"last_known_bid": lastKnown.String(),
	})
	return w.watcher.Entry(), nil
}

// Unsubscribe stops watching. It has no other side effects.
func (n *Notifier) Unsubscribe(userID, auctionID string) bool {
	key := watchKey{userID: userID, auctionID: auctionID}

	n.mu.Lock()
	w, ok := n.watches[key]
	delete(n.watches, key)
	n.mu.Unlock()
	if !ok {
		return false
	}

	w.sub.Close()
	<-w.done
	utils.Info("watch stopped", map[string]any{"user_id": userID, "auction_id": auctionID})
	return true
}

// StartSession marks the user's session open and watches every open auction
// the user has bid on.
func (n *Notifier) StartSession(ctx context.Context, userID string) ([]model.WatchEntry, error) {
	if userID == "" {
		return nil, fmt.Errorf("notifier: %w", biddingerrors.ErrAuthRequired)
	}

	n.mu.Lock()
	n.sessions[userID] = true
	n.mu.Unlock()

	auctions, err := n.ledger.GetAuctionsByUser(ctx, userID)
	if err != nil && !errors.Is(err, biddingerrors.ErrUserNoBids) {
		return nil, fmt.Errorf("notifier: load auctions of %s: %w", userID, err)
	}

	entries := make([]model.WatchEntry, 0, len(auctions))
	for _, a := range auctions {
		if !a.IsOpen() {
			continue
		}
		e, err := n.Subscribe(ctx, userID, a.AuctionID)
		if err != nil {
			return entries, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// EndSession tears down every watch of the user.
func (n *Notifier) EndSession(userID string) int {
	n.mu.Lock()
	delete(n.sessions, userID)
	var auctions []string
	for k := range n.watches {
		if k.userID == userID {
			auctions = append(auctions, k.auctionID)
		}
	}
	n.mu.Unlock()

	stopped := 0
	for _, id := range auctions {
		if n.Unsubscribe(userID, id) {
			stopped++
		}
	}
	return stopped
}

// TrackBid starts watching the auction of an admitted bid when the bidder has
// an open session.
func (n *Notifier) TrackBid(ctx context.Context, bid model.Bid) {
	n.mu.Lock()
	open := n.sessions[bid.UserID]
	n.mu.Unlock()
	if !open {
		return
	}
	if _, err := n.Subscribe(ctx, bid.UserID, bid.AuctionID); err != nil {
		utils.Warn("auto watch failed", map[string]any{"user_id": bid.UserID, "auction_id": bid.AuctionID, "error": err.Error()})
	}
}

// Watches returns the user's current watch entries.
func (n *Notifier) Watches(userID string) []model.WatchEntry {
	n.mu.Lock()
	defer n.mu.Unlock()

	var out []model.WatchEntry
	for k, w := range n.watches {
		if k.userID == userID {
			out = append(out, w.watcher.Entry())
		}
	}
	return out
}

// Close stops every watch.
func (n *Notifier) Close() {
	n.mu.Lock()
	n.closed = true
	all := n.watches
	n.watches = make(map[watchKey]*watch)
	n.mu.Unlock()

	for _, w := range all {
		w.sub.Close()
		<-w.done
	}
}

func (n *Notifier) run(w *watch) {
	defer close(w.done)
	for ev := range w.sub.C() {
		outbid, ok := w.watcher.Observe(ev)
		if !ok {
			continue
		}
		n.dispatch(outbid)
	}
}

// dispatch sends one outbid notification. Failures are logged; the bid that
// caused them is already committed.
func (n *Notifier) dispatch(ev model.OutbidEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	recipient, err := n.profiles.Profile(ctx, ev.UserID)
	if err != nil {
		utils.Warn("recipient profile unavailable", map[string]any{"user_id": ev.UserID, "error": err.Error()})
		recipient = model.User{UserID: ev.UserID}
	}

	sent, err := n.sender.Send(ctx, model.Notification{
		Key:       OutbidKey(ev),
		Recipient: recipient,
		Kind:      model.KindOutbid,
		Payload:   ev,
	})
	fields := map[string]any{
		"user_id":      ev.UserID,
		"auction_id":   ev.AuctionID,
		"bid_id":       ev.BidID,
		"previous_bid": ev.PreviousBid.String(),
		"new_bid":      ev.NewBid.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		utils.Error("outbid notification failed", fields)
		return
	}
	if sent {
		utils.Info("user outbid", fields)
	}
}

// OutbidKey identifies one outbidding event for one watcher.
func OutbidKey(ev model.OutbidEvent) string {
	return fmt.Sprintf("%s:%s:%s:%s", model.KindOutbid, ev.UserID, ev.AuctionID, ev.BidID)
}

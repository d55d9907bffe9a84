// Package scheduler promotes approved auctions to active once their start
// time has passed and announces each activation once.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"live-bidding/internal/clock"
	model "live-bidding/internal/models"
	"live-bidding/utils"
)

// Store performs the conditional pending->active update.
type Store interface {
	ActivateDue(ctx context.Context, now time.Time) ([]model.Auction, error)
}

// Sender dispatches a notification at most once per key.
type Sender interface {
	Send(ctx context.Context, n model.Notification) (bool, error)
}

// Profiles resolves the addressing data of a user.
type Profiles interface {
	Profile(ctx context.Context, userID string) (model.User, error)
}

// Activator runs activation sweeps. It keeps no state between sweeps, so
// overlapping calls are safe: the store never returns an auction twice.
type Activator struct {
	store    Store
	sender   Sender
	profiles Profiles
	clock    clock.Clock
}

// NewActivator creates an activator.
func NewActivator(store Store, sender Sender, profiles Profiles, clk clock.Clock) *Activator {
	return &Activator{store: store, sender: sender, profiles: profiles, clock: clk}
}

// ActivateDue activates every approved pending auction with start_time <= now
// and returns the ids changed by this call.
func (a *Activator) ActivateDue(ctx context.Context, now time.Time) ([]string, error) {
	activated, err := a.store.ActivateDue(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("scheduler: activate due auctions: %w", err)
	}

	ids := make([]string, 0, len(activated))
	for _, auction := range activated {
		ids = append(ids, auction.AuctionID)
		a.announce(ctx, model.AuctionActivated{
			AuctionID:   auction.AuctionID,
			SubmitterID: auction.SubmitterID,
			Title:       auction.Title,
			ActivatedAt: now,
		})
	}

	if len(ids) > 0 {
		utils.Info("auctions activated", map[string]any{"count": len(ids), "auction_ids": ids})
	}
	return ids, nil
}

// Run sweeps every interval until ctx is done.
func (a *Activator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.ActivateDue(ctx, a.clock.Now()); err != nil {
				utils.Error("activation sweep failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// announce notifies the submitter that the auction is live. Failures are
// logged and never undo the activation.
func (a *Activator) announce(ctx context.Context, ev model.AuctionActivated) {
	recipient, err := a.profiles.Profile(ctx, ev.SubmitterID)
	if err != nil {
		utils.Warn("submitter profile unavailable", map[string]any{"user_id": ev.SubmitterID, "error": err.Error()})
		recipient = model.User{UserID: ev.SubmitterID}
	}

	if _, err := a.sender.Send(ctx, model.Notification{
		Key:       LiveKey(ev.AuctionID),
		Recipient: recipient,
		Kind:      model.KindAuctionLive,
		Payload:   ev,
	}); err != nil {
		utils.Error("auction live notification failed", map[string]any{
			"auction_id":   ev.AuctionID,
			"submitter_id": ev.SubmitterID,
			"error":        err.Error(),
		})
	}
}

// LiveKey identifies the one "now live" notification of an auction.
func LiveKey(auctionID string) string {
	return fmt.Sprintf("%s:%s", model.KindAuctionLive, auctionID)
}

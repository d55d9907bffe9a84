package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// BidAccepted is published once for every bid admitted to the ledger
type BidAccepted struct {
	AuctionID string `json:"auction_id"`
	Bid       Bid    `json:"bid"`
}

// OutbidEvent is emitted when a watched user's bid is surpassed by another bidder
type OutbidEvent struct {
	UserID      string          `json:"user_id"`
	AuctionID   string          `json:"auction_id"`
	BidID       string          `json:"bid_id"`
	PreviousBid decimal.Decimal `json:"previous_bid"`
	NewBid      decimal.Decimal `json:"new_bid"`
}

// AuctionActivated is emitted once when an auction goes live
type AuctionActivated struct {
	AuctionID   string    `json:"auction_id"`
	SubmitterID string    `json:"submitter_id"`
	Title       string    `json:"title"`
	ActivatedAt time.Time `json:"activated_at"`
}

// NotificationKind selects the template used by the downstream sender
type NotificationKind string

const (
	KindOutbid      NotificationKind = "outbid"
	KindAuctionLive NotificationKind = "auction-live"
)

// Notification is the request handed to the dispatcher. Key identifies the
// triggering event and is used to deduplicate redelivered dispatches.
type Notification struct {
	ID        string           `json:"id"`
	Key       string           `json:"key"`
	Recipient User             `json:"recipient"`
	Kind      NotificationKind `json:"kind"`
	Payload   any              `json:"payload"`
	CreatedAt time.Time        `json:"created_at"`
}

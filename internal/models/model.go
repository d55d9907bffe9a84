package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a participant in the auction as seen by the identity provider
type User struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// AuctionStatus is the lifecycle state of an auction
type AuctionStatus string

const (
	AuctionPending   AuctionStatus = "pending"
	AuctionActive    AuctionStatus = "active"
	AuctionEnded     AuctionStatus = "ended"
	AuctionCancelled AuctionStatus = "cancelled"
)

// ApprovalStatus is the outcome of the external approval workflow
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Auction represents a single ascending-price listing
type Auction struct {
	AuctionID        string          `json:"auction_id"`
	Title            string          `json:"title"`
	Category         string          `json:"category"`
	StartingPrice    decimal.Decimal `json:"starting_price"`
	MinimumIncrement decimal.Decimal `json:"minimum_increment"`
	StartTime        time.Time       `json:"start_time"`
	EndTime          time.Time       `json:"end_time"`
	Status           AuctionStatus   `json:"status"`
	ApprovalStatus   ApprovalStatus  `json:"approval_status"`
	SubmitterID      string          `json:"submitter_id"`
}

// IsOpen reports whether bidders may see and bid on the auction
func (a Auction) IsOpen() bool {
	return a.Status == AuctionActive && a.ApprovalStatus == ApprovalApproved
}

// IsVisible reports whether bidders may see the auction and its bids: it is
// approved and has gone live, whether or not it has ended since.
func (a Auction) IsVisible() bool {
	return a.ApprovalStatus == ApprovalApproved && (a.Status == AuctionActive || a.Status == AuctionEnded)
}

// IsDue reports whether the auction should be promoted to active at now
func (a Auction) IsDue(now time.Time) bool {
	return a.Status == AuctionPending && a.ApprovalStatus == ApprovalApproved && !a.StartTime.After(now)
}

// BidStatus is the ledger status of a bid
type BidStatus string

const (
	BidActive    BidStatus = "active"
	BidRetracted BidStatus = "retracted"
)

// Bid represents a user's bid on an auction. Seq is the per-auction insertion
// sequence assigned by the ledger and is the authoritative ordering.
type Bid struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Seq       int64           `json:"seq"`
	Status    BidStatus       `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// WatchEntry is the highest amount a user believes is currently winning on an auction
type WatchEntry struct {
	UserID       string          `json:"user_id"`
	AuctionID    string          `json:"auction_id"`
	LastKnownBid decimal.Decimal `json:"last_known_bid"`
}

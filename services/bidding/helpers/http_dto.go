package helpers

import (
	"time"

	model "live-bidding/internal/models"

	"github.com/shopspring/decimal"
)

// Request/Response DTOs
type PlaceBidRequest struct {
	AuctionID string          `json:"auction_id" binding:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type BidResponse struct {
	BidID     string          `json:"bid_id"`
	AuctionID string          `json:"auction_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Seq       int64           `json:"seq"`
	CreatedAt string          `json:"created_at"`
}

type StatsResponse struct {
	AuctionID      string           `json:"auction_id"`
	CurrentHighest *decimal.Decimal `json:"current_highest"`
	BidCount       int              `json:"bid_count"`
}

type ActivateRequest struct {
	Now *time.Time `json:"now"`
}

type ActivateResponse struct {
	Activated []string `json:"activated"`
}

// NewBidResponse converts a ledger record to its wire form
func NewBidResponse(bid model.Bid) BidResponse {
	return BidResponse{
		BidID:     bid.BidID,
		AuctionID: bid.AuctionID,
		UserID:    bid.UserID,
		Amount:    bid.Amount,
		Seq:       bid.Seq,
		CreatedAt: bid.CreatedAt.UTC().Format(time.RFC3339),
	}
}

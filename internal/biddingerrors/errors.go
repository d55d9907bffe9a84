package biddingerrors

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Repository-level errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrNoBids          = errors.New("no bids found for auction")
	ErrUserNoBids      = errors.New("user has not placed any bids")
	ErrInternal        = errors.New("internal storage failure")
)

// business logic errors
var (
	ErrAuthRequired = errors.New("authentication required")
	ErrNotFound     = errors.New("auction not found or not active")
	ErrRateLimited  = errors.New("bid rate limited")
	ErrBidTooLow    = errors.New("bid amount too low")
	ErrInvalidBid   = errors.New("invalid bid")
	ErrTimeout      = errors.New("operation timed out")
)

// BidTooLowError carries the minimum amount the bid must meet
type BidTooLowError struct {
	Required decimal.Decimal
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("%s: required minimum is %s", ErrBidTooLow, e.Required.StringFixed(2))
}

func (e *BidTooLowError) Is(target error) bool { return target == ErrBidTooLow }

// RateLimitedError carries the remaining cooldown for the (user, auction) pair
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited, e.RetryAfter.Round(time.Millisecond))
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

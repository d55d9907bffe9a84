package helpers

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"live-bidding/internal/biddingerrors"
	"live-bidding/utils"

	"github.com/gin-gonic/gin"
)

// UserIDKey is the gin context key holding the authenticated user id
const UserIDKey = "user_id"

// UserID returns the authenticated user id or "" for anonymous requests
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code, message and
// the details a client needs to correct the request
func MapErrorToHTTP(err error) (int, string, gin.H) {
	var tooLow *biddingerrors.BidTooLowError
	var limited *biddingerrors.RateLimitedError

	switch {
	case errors.Is(err, biddingerrors.ErrAuthRequired):
		return http.StatusUnauthorized, "authentication required", nil
	case errors.Is(err, biddingerrors.ErrNotFound), errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return http.StatusNotFound, "auction not found", nil
	case errors.As(err, &limited):
		return http.StatusTooManyRequests, "too many bids", gin.H{
			"retry_after_ms": limited.RetryAfter.Milliseconds(),
		}
	case errors.Is(err, biddingerrors.ErrRateLimited):
		return http.StatusTooManyRequests, "too many bids", nil
	case errors.As(err, &tooLow):
		return http.StatusConflict, "bid amount too low", gin.H{
			"required_minimum": tooLow.Required,
		}
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low", nil
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return http.StatusBadRequest, "invalid bid details", nil
	case errors.Is(err, biddingerrors.ErrNoBids):
		return http.StatusOK, "no bids found for auction", nil
	case errors.Is(err, biddingerrors.ErrUserNoBids):
		return http.StatusOK, "no auctions found for user", nil
	case errors.Is(err, biddingerrors.ErrTimeout):
		return http.StatusGatewayTimeout, "request timed out", nil
	default:
		return http.StatusInternalServerError, "internal server error", nil
	}
}

// RespondError writes the mapped error; rate-limited responses also carry Retry-After
func RespondError(c *gin.Context, err error) (int, string) {
	status, message, details := MapErrorToHTTP(err)
	if ms, ok := details["retry_after_ms"].(int64); ok {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(float64(ms)/1000))))
	}
	if details != nil {
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message, details)
	} else {
		utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)
	}
	return status, message
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}

package integrationtests

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"live-bidding/internal/app"
	"live-bidding/internal/clock"
	model "live-bidding/internal/models"
	"live-bidding/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const cronSecret = "test-cron-secret"

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

// testEnv is an assembled in-memory application driven by a manual clock.
type testEnv struct {
	app   *app.App
	repo  *repository.MemoryRepo
	clock *clock.Manual
}

// SetupTestApp initializes the application with in-memory storage and seeds auctions.
func SetupTestApp(t *testing.T, auctions ...model.Auction) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewManual(t0)
	storage, repo := app.MemoryStorage(clk, 5*time.Second)
	for _, a := range auctions {
		repo.AddAuction(a)
	}

	a := app.Build(storage, clk, app.Options{
		BidTimeout: time.Second,
		JWTSecret:  []byte("test-secret"),
		TokenTTL:   time.Hour,
		CronSecret: cronSecret,
		RetryBase:  time.Millisecond,
	})
	t.Cleanup(a.Close)

	return &testEnv{app: a, repo: repo, clock: clk}
}

// Token issues a bearer token for userID and registers a profile for it.
func (e *testEnv) Token(t *testing.T, userID string) string {
	t.Helper()
	e.app.Directory.Put(model.User{UserID: userID, Email: userID + "@example.com", DisplayName: userID})
	tok, err := e.app.Tokens.Issue(userID)
	require.NoError(t, err)
	return tok
}

// ExecuteRequestAndParse executes an HTTP request on the app router and parses the response
func (e *testEnv) ExecuteRequestAndParse(t *testing.T, method, url, token string, body any, headers ...string) (map[string]any, *httptest.ResponseRecorder) {
	t.Helper()

	var reqBody []byte
	switch v := body.(type) {
	case nil:
	case string:
		reqBody = []byte(v)
	default:
		var err error
		reqBody, err = json.Marshal(v)
		require.NoError(t, err, "failed to marshal body")
	}

	req := httptest.NewRequest(method, url, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.app.Router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "failed to unmarshal response")
	}
	return resp, w
}

// openAuction builds an approved active auction running around t0.
func openAuction(id string, startingPrice, increment int64) model.Auction {
	return model.Auction{
		AuctionID:        id,
		Title:            id + " title",
		Category:         "general",
		StartingPrice:    decimal.NewFromInt(startingPrice),
		MinimumIncrement: decimal.NewFromInt(increment),
		StartTime:        t0.Add(-time.Hour),
		EndTime:          t0.Add(24 * time.Hour),
		Status:           model.AuctionActive,
		ApprovalStatus:   model.ApprovalApproved,
		SubmitterID:      "seller",
	}
}

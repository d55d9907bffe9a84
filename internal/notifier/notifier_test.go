package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"live-bidding/internal/biddingerrors"
	"live-bidding/internal/clock"
	"live-bidding/internal/feed"
	"live-bidding/internal/identity"
	model "live-bidding/internal/models"
	"live-bidding/internal/notify"
	"live-bidding/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type recorder struct {
	mu   sync.Mutex
	sent []model.Notification
}

func (r *recorder) Dispatch(_ context.Context, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recorder) last() model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

type fixture struct {
	repo     *repository.MemoryRepo
	feed     *feed.Feed
	rec      *recorder
	notifier *Notifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := repository.NewMemoryRepo()
	repo.AddAuction(model.Auction{
		AuctionID:        "a1",
		StartingPrice:    decimal.NewFromInt(1000),
		MinimumIncrement: decimal.NewFromInt(50),
		StartTime:        t0.Add(-time.Hour),
		EndTime:          t0.Add(time.Hour),
		Status:           model.AuctionActive,
		ApprovalStatus:   model.ApprovalApproved,
	})
	f := feed.New()
	rec := &recorder{}
	sender := notify.NewReliable(rec, notify.NewMemoryLog(), clock.NewManual(t0))
	dir := identity.NewDirectory(model.User{UserID: "u1", Email: "u1@example.com", DisplayName: "One"})

	n := New(repo, f, sender, dir)
	t.Cleanup(func() {
		n.Close()
		f.Close()
	})
	return &fixture{repo: repo, feed: f, rec: rec, notifier: n}
}

// admit appends to the ledger and publishes, as the bidding service does.
func (fx *fixture) admit(t *testing.T, bidID, userID string, amount int64) model.BidAccepted {
	t.Helper()
	b, err := fx.repo.AppendBid(context.Background(), model.Bid{
		BidID: bidID, AuctionID: "a1", UserID: userID, Amount: decimal.NewFromInt(amount), CreatedAt: t0,
	}, nil)
	require.NoError(t, err)
	ev := model.BidAccepted{AuctionID: "a1", Bid: b}
	fx.feed.Publish(ev)
	return ev
}

func TestNotifier_OutbidOnce(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.admit(t, "b1", "u1", 1000)

	entry, err := fx.notifier.Subscribe(ctx, "u1", "a1")
	require.NoError(t, err)
	require.True(t, entry.LastKnownBid.Equal(decimal.NewFromInt(1000)))

	ev := fx.admit(t, "b2", "u2", 1050)
	require.Eventually(t, func() bool { return fx.rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	n := fx.rec.last()
	require.Equal(t, model.KindOutbid, n.Kind)
	require.Equal(t, "outbid:u1:a1:b2", n.Key)
	require.Equal(t, "u1@example.com", n.Recipient.Email)
	out, ok := n.Payload.(model.OutbidEvent)
	require.True(t, ok)
	require.True(t, out.PreviousBid.Equal(decimal.NewFromInt(1000)))
	require.True(t, out.NewBid.Equal(decimal.NewFromInt(1050)))

	// redelivery of the same event yields no second notification
	fx.feed.Publish(ev)
	fx.admit(t, "b3", "u1", 1100)
	require.Eventually(t, func() bool {
		es := fx.notifier.Watches("u1")
		return len(es) == 1 && es[0].LastKnownBid.Equal(decimal.NewFromInt(1100))
	}, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, 1, fx.rec.count())
}

func TestNotifier_SubscribeIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.notifier.Subscribe(ctx, "u1", "a1")
	require.NoError(t, err)
	_, err = fx.notifier.Subscribe(ctx, "u1", "a1")
	require.NoError(t, err)

	require.Equal(t, 1, fx.feed.Subscribers("a1"))
	require.Len(t, fx.notifier.Watches("u1"), 1)
}

func TestNotifier_NoBidNoNotification(t *testing.T) {
	fx := newFixture(t)

	entry, err := fx.notifier.Subscribe(context.Background(), "u1", "a1")
	require.NoError(t, err)
	require.True(t, entry.LastKnownBid.IsZero())

	fx.admit(t, "b1", "u2", 1000)
	fx.admit(t, "b2", "u1", 1050)
	fx.admit(t, "b3", "u2", 1100)

	require.Eventually(t, func() bool { return fx.rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "outbid:u1:a1:b3", fx.rec.last().Key)
}

func TestNotifier_Unsubscribe(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.admit(t, "b1", "u1", 1000)
	_, err := fx.notifier.Subscribe(ctx, "u1", "a1")
	require.NoError(t, err)

	require.True(t, fx.notifier.Unsubscribe("u1", "a1"))
	require.False(t, fx.notifier.Unsubscribe("u1", "a1"))
	require.Equal(t, 0, fx.feed.Subscribers("a1"))

	fx.admit(t, "b2", "u2", 1050)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 0, fx.rec.count())

	// the ledger is untouched
	bids, err := fx.repo.ListActiveBids(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, bids, 2)
}

func TestNotifier_SessionLifecycle(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	entries, err := fx.notifier.StartSession(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, entries)

	b := fx.admit(t, "b1", "u1", 1000)
	fx.notifier.TrackBid(ctx, b.Bid)
	require.Len(t, fx.notifier.Watches("u1"), 1)

	// sessions of other users are not affected
	fx.notifier.TrackBid(ctx, model.Bid{UserID: "u2", AuctionID: "a1"})
	require.Empty(t, fx.notifier.Watches("u2"))

	require.Equal(t, 1, fx.notifier.EndSession("u1"))
	require.Empty(t, fx.notifier.Watches("u1"))

	entries, err = fx.notifier.StartSession(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.True(t, entries[0].LastKnownBid.Equal(decimal.NewFromInt(1000)))
}

func TestNotifier_RequiresUser(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.notifier.Subscribe(context.Background(), "", "a1")
	require.Error(t, err)
	_, err = fx.notifier.StartSession(context.Background(), "")
	require.Error(t, err)
}

func TestNotifier_RivalBidBeforeWatchStarts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.notifier.StartSession(ctx, "u1")
	require.NoError(t, err)

	// the rival bid lands between u1's admission and the auto watch
	own := fx.admit(t, "b1", "u1", 1000)
	rival := fx.admit(t, "b2", "u2", 1050)
	fx.notifier.TrackBid(ctx, own.Bid)

	require.Eventually(t, func() bool { return fx.rec.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, "outbid:u1:a1:b2", fx.rec.last().Key)
	out, ok := fx.rec.last().Payload.(model.OutbidEvent)
	require.True(t, ok)
	require.True(t, out.PreviousBid.Equal(decimal.NewFromInt(1000)))
	require.True(t, out.NewBid.Equal(decimal.NewFromInt(1050)))

	entries := fx.notifier.Watches("u1")
	require.Len(t, entries, 1)
	require.True(t, entries[0].LastKnownBid.Equal(decimal.NewFromInt(1000)))

	// a late redelivery of the same rival bid is suppressed
	fx.feed.Publish(rival)
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 1, fx.rec.count())
}

func TestNotifier_SubscribeRejectsUnknownOrClosedAuction(t *testing.T) {
	fx := newFixture(t)
	fx.repo.AddAuction(model.Auction{
		AuctionID:      "pending",
		StartTime:      t0.Add(time.Hour),
		Status:         model.AuctionPending,
		ApprovalStatus: model.ApprovalApproved,
	})

	tests := []struct {
		name      string
		auctionID string
	}{
		{name: "unknown auction", auctionID: "missing"},
		{name: "pending auction", auctionID: "pending"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.notifier.Subscribe(context.Background(), "u1", tt.auctionID)
			require.ErrorIs(t, err, biddingerrors.ErrNotFound)
			require.Equal(t, 0, fx.feed.Subscribers(tt.auctionID))
			require.Empty(t, fx.notifier.Watches("u1"))
		})
	}
}

package services

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/internal/models"
)

func feedFixture(t *testing.T) *db.MemoryStore {
	t.Helper()
	st := seed(t,
		models.Post{ID: "free", Title: "free"},
		models.Post{ID: "paid", Title: "paid", PriceLamports: 500_000_000},
		models.Post{ID: "draft", PriceLamports: 1, Status: models.StatusDraft},
		models.Post{ID: "bought", Title: "bought", PriceLamports: 250_000_000},
	)
	_, err := st.RecordPurchase(context.Background(), models.UnlockRecord{
		UserID: "u1", PostID: "bought", AmountLamports: 250_000_000, TxnSignature: "sig1",
	})
	require.NoError(t, err)
	return st
}

func viewStates(views []models.PostView) map[string]models.AccessState {
	out := make(map[string]models.AccessState, len(views))
	for _, v := range views {
		out[v.ID] = v.Access
	}
	return out
}

func TestFeedResolvesPerViewer(t *testing.T) {
	ctx := context.Background()
	svc := NewFeedService(feedFixture(t), NewProjector(nil), 50, nil)

	views, err := svc.Feed(ctx, "u1", 0, time.Time{})
	require.NoError(t, err)
	require.Len(t, views, 3)
	assert.Equal(t, []string{"bought", "paid", "free"}, []string{views[0].ID, views[1].ID, views[2].ID})
	assert.Equal(t, map[string]models.AccessState{
		"free":   models.Free(),
		"paid":   models.Locked(500_000_000),
		"bought": models.Unlocked(),
	}, viewStates(views))

	anon, err := svc.Feed(ctx, "", 0, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.Locked(250_000_000), viewStates(anon)["bought"])

	for _, v := range anon {
		assert.Equal(t, string(SurfaceFeed), v.Surface)
		if v.Access.Kind == models.AccessLocked {
			assert.Empty(t, v.MediaURL)
		}
	}
}

func TestFeedLimit(t *testing.T) {
	svc := NewFeedService(feedFixture(t), NewProjector(nil), 2, nil)
	views, err := svc.Feed(context.Background(), "u1", 10, time.Time{})
	require.NoError(t, err)
	assert.Len(t, views, 2)

	views, err = svc.Feed(context.Background(), "u1", 1, time.Time{})
	require.NoError(t, err)
	assert.Len(t, views, 1)
}

func TestFeedFailsClosed(t *testing.T) {
	st := &flakyStore{MemoryStore: feedFixture(t), failList: true}
	svc := NewFeedService(st, NewProjector(nil), 50, nil)

	views, err := svc.Feed(context.Background(), "u1", 0, time.Time{})
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	require.NotEmpty(t, views)
	assert.Equal(t, models.Locked(250_000_000), viewStates(views)["bought"])

	grid, err := svc.CreatorGrid(context.Background(), "u1", "creator")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.Equal(t, models.Locked(250_000_000), viewStates(grid)["bought"])

	// anonymous viewers never read purchases
	views, err = svc.Feed(context.Background(), "", 0, time.Time{})
	require.NoError(t, err)
	assert.NotEmpty(t, views)
}

func TestCreatorGridExcludesUnpublished(t *testing.T) {
	svc := NewFeedService(feedFixture(t), NewProjector(nil), 50, nil)
	views, err := svc.CreatorGrid(context.Background(), "u1", "creator")
	require.NoError(t, err)

	states := viewStates(views)
	assert.Len(t, states, 3)
	assert.NotContains(t, states, "draft")
	for _, v := range views {
		assert.Equal(t, string(SurfaceGrid), v.Surface)
	}
}

func TestDetail(t *testing.T) {
	ctx := context.Background()
	mem := feedFixture(t)
	svc := NewFeedService(mem, NewProjector(nil), 50, nil)

	view, err := svc.Detail(ctx, "u1", "bought")
	require.NoError(t, err)
	assert.Equal(t, models.Unlocked(), view.Access)
	assert.True(t, view.PurchasedBadge)
	assert.NotEmpty(t, view.MediaURL)

	view, err = svc.Detail(ctx, "u2", "bought")
	require.NoError(t, err)
	assert.Equal(t, models.Locked(250_000_000), view.Access)
	require.NotNil(t, view.Unlock)
	assert.Equal(t, http.MethodPost, view.Unlock.Method)

	_, err = svc.Detail(ctx, "u1", "draft")
	assert.ErrorIs(t, err, ErrNotAvailable)

	_, err = svc.Detail(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrPostNotFound)

	flaky := NewFeedService(&flakyStore{MemoryStore: mem, failGet: true}, NewProjector(nil), 50, nil)
	view, err = flaky.Detail(ctx, "u1", "bought")
	assert.ErrorIs(t, err, ErrLedgerUnavailable)
	require.NotNil(t, view)
	assert.Equal(t, models.Locked(250_000_000), view.Access)
	assert.Empty(t, view.MediaURL)
}

func TestFeedReflectsNewUnlock(t *testing.T) {
	ctx := context.Background()
	st := feedFixture(t)
	svc := NewFeedService(st, NewProjector(nil), 50, nil)
	c := NewCoordinator(st, ProofProvider{})

	before, err := svc.Feed(ctx, "u1", 0, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.Locked(500_000_000), viewStates(before)["paid"])

	_, err = c.Unlock(ctx, UnlockInput{UserID: "u1", PostID: "paid", WalletPubkey: viewerWallet, TxnSignature: "sig2"})
	require.NoError(t, err)

	after, err := svc.Feed(ctx, "u1", 0, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, models.Unlocked(), viewStates(after)["paid"])
}

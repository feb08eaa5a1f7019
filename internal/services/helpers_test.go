package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/internal/models"
)

const (
	creatorWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	viewerWallet  = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
)

var errStoreDown = errors.New("connection refused")

// seed returns a memory store holding a creator with a wallet and the given
// posts, all owned by that creator.
func seed(t *testing.T, posts ...models.Post) *db.MemoryStore {
	t.Helper()
	st := db.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.CreateUser(ctx, &models.User{ID: "creator", Handle: "creator", WalletAddress: creatorWallet}))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := range posts {
		p := posts[i]
		if p.CreatorID == "" {
			p.CreatorID = "creator"
		}
		if p.MediaPath == "" {
			p.MediaPath = "media/" + p.ID + ".jpg"
		}
		if p.Status == "" {
			p.Status = models.StatusPublished
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		}
		require.NoError(t, st.CreatePost(ctx, &p))
	}
	return st
}

// flakyStore fails selected ledger calls.
type flakyStore struct {
	*db.MemoryStore
	failGet    bool
	failRecord bool
	failList   bool
}

func (s *flakyStore) GetPurchase(ctx context.Context, userID, postID string) (*models.UnlockRecord, error) {
	if s.failGet {
		return nil, errStoreDown
	}
	return s.MemoryStore.GetPurchase(ctx, userID, postID)
}

func (s *flakyStore) RecordPurchase(ctx context.Context, rec models.UnlockRecord) (*models.UnlockRecord, error) {
	if s.failRecord {
		return nil, errStoreDown
	}
	return s.MemoryStore.RecordPurchase(ctx, rec)
}

func (s *flakyStore) ListPurchasesByUser(ctx context.Context, userID string) ([]models.UnlockRecord, error) {
	if s.failList {
		return nil, errStoreDown
	}
	return s.MemoryStore.ListPurchasesByUser(ctx, userID)
}

// stubProvider returns sig for every request and counts calls.
func stubProvider(sig string, calls *int) PaymentProvider {
	return PaymentProviderFunc(func(ctx context.Context, req PaymentRequest) (PaymentReceipt, error) {
		*calls++
		return PaymentReceipt{Signature: sig, Payer: req.Payer}, nil
	})
}

type verifierFunc func(ctx context.Context, req PaymentRequest, receipt PaymentReceipt) error

func (f verifierFunc) Verify(ctx context.Context, req PaymentRequest, receipt PaymentReceipt) error {
	return f(ctx, req, receipt)
}

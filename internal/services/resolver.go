package services

import (
	"context"
	"errors"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/internal/models"
)

// Resolve computes the access state of post for a viewer holding rec (nil when
// the viewer has no ledger entry). It has no side effects. Visibility is
// labeling only and never changes the result.
func Resolve(post *models.Post, rec *models.UnlockRecord) models.AccessState {
	if post == nil || post.Status != models.StatusPublished {
		return models.NotAvailable()
	}
	if !post.Gated() {
		return models.Free()
	}
	// a record for some other post, or a zero-amount entry, grants nothing
	if rec != nil && rec.PostID == post.ID && rec.AmountLamports > 0 {
		return models.Unlocked()
	}
	return models.Locked(post.PriceLamports)
}

// Resolver looks up the viewer's ledger entry and applies Resolve.
type Resolver struct {
	store db.Store
}

func NewResolver(store db.Store) *Resolver {
	return &Resolver{store: store}
}

// ResolveFor resolves post for userID. An empty userID is an anonymous viewer.
// A ledger read failure fails closed: the state is Locked and the error is
// ErrLedgerUnavailable.
func (r *Resolver) ResolveFor(ctx context.Context, post *models.Post, userID string) (models.AccessState, error) {
	state := Resolve(post, nil)
	if state.Kind != models.AccessLocked || userID == "" {
		return state, nil
	}

	rec, err := r.store.GetPurchase(ctx, userID, post.ID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return state, nil
	case err != nil:
		return state, errors.Join(ErrLedgerUnavailable, err)
	}
	return Resolve(post, rec), nil
}

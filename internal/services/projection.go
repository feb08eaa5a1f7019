package services

import (
	"context"
	"fmt"
	"net/http"

	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/utils"
)

// Surface is where a post is rendered.
type Surface string

const (
	SurfaceFeed   Surface = "feed"
	SurfaceDetail Surface = "detail"
	SurfaceGrid   Surface = "grid"
)

// UnlockPath is the endpoint a locked view points its unlock action at.
const UnlockPath = "/api/posts/unlock"

// Projector derives per-surface views from an access state.
type Projector struct {
	media MediaLinker
}

func NewProjector(media MediaLinker) *Projector {
	if media == nil {
		media = PublicLinker{}
	}
	return &Projector{media: media}
}

// PriceBadge formats a price for display, e.g. 500000000 -> "0.500 SOL".
func PriceBadge(lamports uint64) string {
	return utils.FormatLamports(lamports) + " SOL"
}

// Project renders post on surface for the given state. It returns nil for
// NotAvailable: such posts are excluded from every surface. A media link is
// only ever produced for Free and Unlocked.
func (p *Projector) Project(ctx context.Context, surface Surface, post *models.Post, state models.AccessState) (*models.PostView, error) {
	if state.Kind == models.AccessNotAvailable {
		return nil, nil
	}

	view := &models.PostView{
		ID:         post.ID,
		CreatorID:  post.CreatorID,
		Surface:    string(surface),
		MediaType:  post.MediaType,
		Visibility: post.Visibility,
		Access:     state,
	}
	switch surface {
	case SurfaceDetail, SurfaceFeed:
		view.Title = post.Title
		view.Caption = post.Caption
	case SurfaceGrid:
		// grid tiles carry no text
	default:
		return nil, fmt.Errorf("unknown surface %q", surface)
	}

	thumb, err := p.media.ThumbnailURL(ctx, post.ThumbnailPath)
	if err != nil {
		return nil, fmt.Errorf("thumbnail for %s: %w", post.ID, err)
	}
	view.ThumbnailURL = thumb

	switch {
	case state.Kind == models.AccessLocked:
		view.Blurred = true
		view.PriceBadge = PriceBadge(state.PriceLamports)
		view.Unlock = &models.UnlockAction{Method: http.MethodPost, Path: UnlockPath, PostID: post.ID}
	case state.Visible():
		media, err := p.media.MediaURL(ctx, post.MediaPath)
		if err != nil {
			return nil, fmt.Errorf("media for %s: %w", post.ID, err)
		}
		view.MediaURL = media
		view.PurchasedBadge = state.Kind == models.AccessUnlocked
	}
	return view, nil
}

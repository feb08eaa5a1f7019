package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/utils"
)

// FeedService builds the viewer-facing surfaces. Access is re-resolved
// against the ledger on every call.
type FeedService struct {
	store        db.Store
	resolver     *Resolver
	projector    *Projector
	log          *utils.Logger
	defaultLimit int
}

func NewFeedService(store db.Store, projector *Projector, defaultLimit int, log *utils.Logger) *FeedService {
	if log == nil {
		log = utils.Discard
	}
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	return &FeedService{
		store:        store,
		resolver:     NewResolver(store),
		projector:    projector,
		log:          log,
		defaultLimit: defaultLimit,
	}
}

// Feed returns published posts newest first as feed cards for viewerID. If the
// viewer's purchases cannot be read the cards are still returned, locked, with
// ErrLedgerUnavailable.
func (s *FeedService) Feed(ctx context.Context, viewerID string, limit int, before time.Time) ([]models.PostView, error) {
	if limit <= 0 || limit > s.defaultLimit {
		limit = s.defaultLimit
	}
	posts, err := s.store.ListPublishedPosts(ctx, limit, before)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	return s.project(ctx, SurfaceFeed, viewerID, posts)
}

// CreatorGrid returns a creator's viewable posts as grid tiles. It degrades
// like Feed.
func (s *FeedService) CreatorGrid(ctx context.Context, viewerID, creatorID string) ([]models.PostView, error) {
	posts, err := s.store.ListPostsByCreator(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}
	return s.project(ctx, SurfaceGrid, viewerID, posts)
}

// Detail returns the detail view of one post. A ledger failure still yields a
// locked view alongside ErrLedgerUnavailable.
func (s *FeedService) Detail(ctx context.Context, viewerID, postID string) (*models.PostView, error) {
	post, err := s.store.GetPost(ctx, postID)
	switch {
	case errors.Is(err, db.ErrNotFound):
		return nil, ErrPostNotFound
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
	}

	state, resolveErr := s.resolver.ResolveFor(ctx, post, viewerID)
	if state.Kind == models.AccessNotAvailable {
		return nil, ErrNotAvailable
	}
	view, err := s.projector.Project(ctx, SurfaceDetail, post, state)
	if err != nil {
		return nil, err
	}
	return view, resolveErr
}

// View projects a post whose state is already known, e.g. right after an unlock.
func (s *FeedService) View(ctx context.Context, surface Surface, post *models.Post, state models.AccessState) (*models.PostView, error) {
	return s.projector.Project(ctx, surface, post, state)
}

// GetPost exposes the post lookup for callers that re-render after an unlock.
func (s *FeedService) GetPost(ctx context.Context, postID string) (*models.Post, error) {
	return s.store.GetPost(ctx, postID)
}

// project resolves every post against one read of the viewer's purchases.
// If that read fails, every gated post renders locked.
func (s *FeedService) project(ctx context.Context, surface Surface, viewerID string, posts []models.Post) ([]models.PostView, error) {
	var ledgerErr error
	purchases := map[string]*models.UnlockRecord{}
	if viewerID != "" {
		recs, err := s.store.ListPurchasesByUser(ctx, viewerID)
		if err != nil {
			s.log.Warn("purchases for %s unavailable, rendering locked: %v", viewerID, err)
			ledgerErr = fmt.Errorf("%w: %w", ErrLedgerUnavailable, err)
		}
		for i := range recs {
			purchases[recs[i].PostID] = &recs[i]
		}
	}

	views := make([]models.PostView, 0, len(posts))
	for i := range posts {
		post := &posts[i]
		view, err := s.projector.Project(ctx, surface, post, Resolve(post, purchases[post.ID]))
		if err != nil {
			s.log.Warn("skip post %s on %s: %v", post.ID, surface, err)
			continue
		}
		if view != nil {
			views = append(views, *view)
		}
	}
	return views, ledgerErr
}

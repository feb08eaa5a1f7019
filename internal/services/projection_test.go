package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	storage_go "github.com/supabase-community/storage-go"

	"github.com/wave745/goontest-sub001/internal/models"
)

func samplePost() *models.Post {
	return &models.Post{
		ID:            "p1",
		CreatorID:     "creator",
		Title:         "Sunset",
		Caption:       "golden hour",
		MediaType:     models.MediaImage,
		MediaPath:     "media/p1.jpg",
		ThumbnailPath: "thumbs/p1.jpg",
		PriceLamports: 500_000_000,
		Visibility:    models.VisibilityPublic,
		Status:        models.StatusPublished,
	}
}

func TestProjectDetailGolden(t *testing.T) {
	p := NewProjector(PublicLinker{BaseURL: "https://cdn.example.com"})
	post := samplePost()

	var views []*models.PostView
	for _, state := range []models.AccessState{models.Free(), models.Locked(500_000_000), models.Unlocked()} {
		view, err := p.Project(context.Background(), SurfaceDetail, post, state)
		require.NoError(t, err)
		views = append(views, view)
	}

	out, err := json.MarshalIndent(views, "", "  ")
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "detail_views", out)
}

func TestProjectLockedNeverLinksMedia(t *testing.T) {
	p := NewProjector(PublicLinker{BaseURL: "https://cdn.example.com"})
	for _, surface := range []Surface{SurfaceFeed, SurfaceDetail, SurfaceGrid} {
		view, err := p.Project(context.Background(), surface, samplePost(), models.Locked(500_000_000))
		require.NoError(t, err)
		assert.Empty(t, view.MediaURL, surface)
		assert.True(t, view.Blurred, surface)
		assert.Equal(t, "0.500 SOL", view.PriceBadge, surface)
		require.NotNil(t, view.Unlock, surface)
		assert.Equal(t, UnlockPath, view.Unlock.Path)
	}
}

func TestProjectNotAvailableIsExcluded(t *testing.T) {
	p := NewProjector(nil)
	view, err := p.Project(context.Background(), SurfaceFeed, samplePost(), models.NotAvailable())
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestProjectGridCarriesNoText(t *testing.T) {
	p := NewProjector(nil)
	view, err := p.Project(context.Background(), SurfaceGrid, samplePost(), models.Unlocked())
	require.NoError(t, err)
	assert.Empty(t, view.Title)
	assert.Empty(t, view.Caption)
	assert.Equal(t, "/media/p1.jpg", view.MediaURL)
	assert.True(t, view.PurchasedBadge)
}

func TestProjectUnknownSurface(t *testing.T) {
	p := NewProjector(nil)
	_, err := p.Project(context.Background(), Surface("story"), samplePost(), models.Free())
	assert.Error(t, err)
}

type fakeSigner struct {
	calls []string
	err   error
}

func (f *fakeSigner) CreateSignedUrl(bucket, path string, expiresIn int) (storage_go.SignedUrlResponse, error) {
	f.calls = append(f.calls, path)
	if f.err != nil {
		return storage_go.SignedUrlResponse{}, f.err
	}
	return storage_go.SignedUrlResponse{SignedURL: "https://project.supabase.co/storage/v1/object/sign/" + bucket + "/" + path + "?token=t"}, nil
}

func TestSupabaseLinkerOnlySignsVisibleMedia(t *testing.T) {
	signer := &fakeSigner{}
	p := NewProjector(NewSupabaseLinker(signer, "posts", 0))

	view, err := p.Project(context.Background(), SurfaceDetail, samplePost(), models.Locked(500_000_000))
	require.NoError(t, err)
	assert.Empty(t, view.MediaURL)
	assert.Equal(t, []string{"thumbs/p1.jpg"}, signer.calls)

	view, err = p.Project(context.Background(), SurfaceDetail, samplePost(), models.Unlocked())
	require.NoError(t, err)
	assert.Equal(t, "https://project.supabase.co/storage/v1/object/sign/posts/media/p1.jpg?token=t", view.MediaURL)
}

func TestSupabaseLinkerError(t *testing.T) {
	p := NewProjector(NewSupabaseLinker(&fakeSigner{err: errors.New("403")}, "posts", 0))
	_, err := p.Project(context.Background(), SurfaceFeed, samplePost(), models.Free())
	assert.Error(t, err)
}

func TestPublicLinker(t *testing.T) {
	ctx := context.Background()
	l := PublicLinker{BaseURL: "https://cdn.example.com/assets/"}

	u, err := l.MediaURL(ctx, "media/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/assets/media/a.jpg", u)

	u, err = l.MediaURL(ctx, "https://elsewhere.example/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://elsewhere.example/a.jpg", u)

	u, err = l.ThumbnailURL(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, u)
}

func TestPriceBadge(t *testing.T) {
	assert.Equal(t, "0.500 SOL", PriceBadge(500_000_000))
	assert.Equal(t, "1.000 SOL", PriceBadge(999_999_999))
	assert.Equal(t, "0.001 SOL", PriceBadge(1_000_000))
}

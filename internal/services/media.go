package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"

	"github.com/wave745/goontest-sub001/internal/config"
)

// MediaLinker turns stored media paths into URLs a client can fetch.
type MediaLinker interface {
	ThumbnailURL(ctx context.Context, path string) (string, error)
	MediaURL(ctx context.Context, path string) (string, error)
}

// NewMediaLinker builds the linker selected by cfg.Backend.
func NewMediaLinker(cfg config.MediaConfig) (MediaLinker, error) {
	switch cfg.Backend {
	case config.MediaPublic, "":
		return PublicLinker{BaseURL: cfg.BaseURL}, nil
	case config.MediaSupabase:
		client := storage_go.NewClient(strings.TrimRight(cfg.SupabaseURL, "/")+"/storage/v1", cfg.SupabaseKey, nil)
		return NewSupabaseLinker(client, cfg.Bucket, cfg.SignedURLTTL), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownMedia, cfg.Backend)
	}
}

// PublicLinker joins paths onto a public base URL. Absolute URLs pass through.
type PublicLinker struct {
	BaseURL string
}

func (l PublicLinker) ThumbnailURL(_ context.Context, path string) (string, error) {
	return l.join(path)
}

func (l PublicLinker) MediaURL(_ context.Context, path string) (string, error) {
	return l.join(path)
}

func (l PublicLinker) join(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if u, err := url.Parse(path); err == nil && u.IsAbs() {
		return path, nil
	}
	if l.BaseURL == "" {
		return "/" + strings.TrimLeft(path, "/"), nil
	}
	return url.JoinPath(l.BaseURL, path)
}

// signer is the part of the storage client the linker uses.
type signer interface {
	CreateSignedUrl(bucketId string, filePath string, expiresIn int) (storage_go.SignedUrlResponse, error)
}

// SupabaseLinker issues short-lived signed URLs from a private bucket, so a
// leaked media link stops working once the TTL passes.
type SupabaseLinker struct {
	client signer
	bucket string
	ttl    time.Duration
}

func NewSupabaseLinker(client signer, bucket string, ttl time.Duration) *SupabaseLinker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &SupabaseLinker{client: client, bucket: bucket, ttl: ttl}
}

func (l *SupabaseLinker) ThumbnailURL(ctx context.Context, path string) (string, error) {
	return l.sign(ctx, path)
}

func (l *SupabaseLinker) MediaURL(ctx context.Context, path string) (string, error) {
	return l.sign(ctx, path)
}

func (l *SupabaseLinker) sign(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	resp, err := l.client.CreateSignedUrl(l.bucket, path, int(l.ttl.Seconds()))
	if err != nil {
		return "", fmt.Errorf("sign %s/%s: %w", l.bucket, path, err)
	}
	return resp.SignedURL, nil
}

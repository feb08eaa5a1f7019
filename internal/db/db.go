// Package db holds the persistence collaborators. Every backend implements
// Store; the backend is chosen once at startup from configuration and the
// core never branches on which one is active.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wave745/goontest-sub001/internal/config"
	"github.com/wave745/goontest-sub001/internal/models"
)

var (
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateUnlock: a record for the (user, post) pair already exists.
	ErrDuplicateUnlock = errors.New("duplicate unlock")

	// ErrDuplicateSignature: the txn signature is already bound to another pair.
	ErrDuplicateSignature = errors.New("duplicate txn signature")

	ErrInvalidRecord = errors.New("invalid unlock record")
	ErrDuplicateUser = errors.New("duplicate user")
)

// Store is the persistence contract. The ledger half (HasPurchased,
// GetPurchase, ListPurchasesByUser, RecordPurchase) is append-only: there is
// no update or delete for unlock records.
type Store interface {
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error

	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)

	CreatePost(ctx context.Context, p *models.Post) error
	UpdatePost(ctx context.Context, id string, upd models.UpdatePostRequest) (*models.Post, error)
	GetPost(ctx context.Context, id string) (*models.Post, error)
	// ListPublishedPosts returns published posts newest first, created strictly
	// before `before` when it is non-zero.
	ListPublishedPosts(ctx context.Context, limit int, before time.Time) ([]models.Post, error)
	ListPostsByCreator(ctx context.Context, creatorID string) ([]models.Post, error)

	HasPurchased(ctx context.Context, userID, postID string) (bool, error)
	GetPurchase(ctx context.Context, userID, postID string) (*models.UnlockRecord, error)
	ListPurchasesByUser(ctx context.Context, userID string) ([]models.UnlockRecord, error)
	// RecordPurchase inserts rec atomically. On ErrDuplicateUnlock the
	// existing record is returned alongside the error.
	RecordPurchase(ctx context.Context, rec models.UnlockRecord) (*models.UnlockRecord, error)
}

// Open builds the store selected by cfg.Driver and applies the schema.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	var (
		st  Store
		err error
	)
	switch cfg.Driver {
	case config.DriverMemory, "":
		st = NewMemoryStore()
	case config.DriverSQLite, config.DriverMySQL, config.DriverPostgres:
		st, err = OpenGorm(cfg)
	case config.DriverPgx:
		st, err = OpenPgx(ctx, cfg.DSN, cfg.MaxConns)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDriver, cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// prepareRecord validates rec and fills ID/CreatedAt.
func prepareRecord(rec *models.UnlockRecord) error {
	if rec.UserID == "" || rec.PostID == "" {
		return fmt.Errorf("%w: user and post are required", ErrInvalidRecord)
	}
	if rec.TxnSignature == "" {
		return fmt.Errorf("%w: empty txn signature", ErrInvalidRecord)
	}
	if rec.AmountLamports == 0 {
		return fmt.Errorf("%w: zero amount", ErrInvalidRecord)
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return nil
}

func preparePost(p *models.Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Visibility == "" {
		p.Visibility = models.VisibilityPublic
	}
	if p.Status == "" {
		p.Status = models.StatusDraft
	}
	if p.MediaType == "" {
		p.MediaType = models.MediaImage
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return models.Validate(p)
}

func prepareUser(u *models.User) error {
	u.Handle = models.NormalizeHandle(u.Handle)
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	return models.Validate(u)
}

func applyUpdate(p *models.Post, upd models.UpdatePostRequest) error {
	if upd.PriceLamports != nil {
		p.PriceLamports = *upd.PriceLamports
	}
	if upd.Visibility != nil {
		p.Visibility = *upd.Visibility
	}
	if upd.Status != nil {
		p.Status = *upd.Status
	}
	p.UpdatedAt = time.Now().UTC()
	return models.Validate(p)
}

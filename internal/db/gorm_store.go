package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wave745/goontest-sub001/internal/config"
	"github.com/wave745/goontest-sub001/internal/models"
)

// GormStore persists through gorm on MySQL, Postgres or SQLite.
// Unique indexes on (user_id, post_id) and txn_signature back the ledger
// invariants; the in-transaction pre-checks only pick the right error.
type GormStore struct {
	db *gorm.DB
}

// OpenGorm connects using the dialect named by cfg.Driver.
func OpenGorm(cfg config.StorageConfig) (*GormStore, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case config.DriverMySQL:
		dialector = mysql.Open(cfg.MySQLDSN())
	case config.DriverPostgres:
		dialector = postgres.Open(cfg.DSN)
	case config.DriverSQLite:
		path := cfg.Path
		if cfg.DSN != "" {
			path = cfg.DSN
		}
		dialector = sqlite.Open(path)
	default:
		return nil, fmt.Errorf("%w: %q is not a gorm dialect", config.ErrUnknownDriver, cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		PrepareStmt:    false,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
	}

	if cfg.Driver == config.DriverSQLite {
		// SQLite 只支持单写者
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		if err := conn.Exec("PRAGMA journal_mode = WAL").Error; err != nil {
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
		if err := conn.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
			return nil, fmt.Errorf("sqlite pragma: %w", err)
		}
	} else if cfg.MaxConns > 0 {
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(int(cfg.MaxConns))
	}

	return &GormStore{db: conn}, nil
}

// NewGormStore wraps an existing connection.
func NewGormStore(conn *gorm.DB) *GormStore {
	return &GormStore{db: conn}
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate 运行表结构迁移
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&models.User{}, &models.Post{}, &models.UnlockRecord{})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := prepareUser(u); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, u.Handle)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *GormStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translateNotFound(err, "get user")
	}
	return &u, nil
}

func (s *GormStore) CreatePost(ctx context.Context, p *models.Post) error {
	if err := preparePost(p); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *GormStore) UpdatePost(ctx context.Context, id string, upd models.UpdatePostRequest) (*models.Post, error) {
	var out *models.Post
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.Post
		if err := tx.Where("id = ?", id).First(&p).Error; err != nil {
			return translateNotFound(err, "update post")
		}
		if err := applyUpdate(&p, upd); err != nil {
			return err
		}
		if err := tx.Model(&p).Select("price_lamports", "visibility", "status", "updated_at").Updates(&p).Error; err != nil {
			return fmt.Errorf("update post: %w", err)
		}
		out = &p
		return nil
	})
	return out, err
}

func (s *GormStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	var p models.Post
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, translateNotFound(err, "get post")
	}
	return &p, nil
}

func (s *GormStore) ListPublishedPosts(ctx context.Context, limit int, before time.Time) ([]models.Post, error) {
	q := s.db.WithContext(ctx).Where("status = ?", models.StatusPublished)
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var posts []models.Post
	if err := q.Order("created_at DESC").Order("id DESC").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return posts, nil
}

func (s *GormStore) ListPostsByCreator(ctx context.Context, creatorID string) ([]models.Post, error) {
	var posts []models.Post
	err := s.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").Order("id DESC").
		Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list creator posts: %w", err)
	}
	return posts, nil
}

func (s *GormStore) HasPurchased(ctx context.Context, userID, postID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.UnlockRecord{}).
		Where("user_id = ? AND post_id = ?", userID, postID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("has purchased: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) GetPurchase(ctx context.Context, userID, postID string) (*models.UnlockRecord, error) {
	var rec models.UnlockRecord
	err := s.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).First(&rec).Error
	if err != nil {
		return nil, translateNotFound(err, "get purchase")
	}
	return &rec, nil
}

func (s *GormStore) ListPurchasesByUser(ctx context.Context, userID string) ([]models.UnlockRecord, error) {
	var recs []models.UnlockRecord
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Order("id ASC").Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return recs, nil
}

func (s *GormStore) RecordPurchase(ctx context.Context, rec models.UnlockRecord) (*models.UnlockRecord, error) {
	if err := prepareRecord(&rec); err != nil {
		return nil, err
	}

	var existing *models.UnlockRecord
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var found models.UnlockRecord
		err := tx.Where("user_id = ? AND post_id = ?", rec.UserID, rec.PostID).First(&found).Error
		if err == nil {
			existing = &found
			return ErrDuplicateUnlock
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var sigCount int64
		if err := tx.Model(&models.UnlockRecord{}).Where("txn_signature = ?", rec.TxnSignature).Count(&sigCount).Error; err != nil {
			return err
		}
		if sigCount > 0 {
			return ErrDuplicateSignature
		}
		return tx.Create(&rec).Error
	})

	switch {
	case err == nil:
		return &rec, nil
	case errors.Is(err, ErrDuplicateUnlock):
		return existing, ErrDuplicateUnlock
	case errors.Is(err, ErrDuplicateSignature):
		return nil, ErrDuplicateSignature
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// lost a race against a concurrent insert; the unique indexes decided
		if found, getErr := s.GetPurchase(ctx, rec.UserID, rec.PostID); getErr == nil {
			return found, ErrDuplicateUnlock
		}
		return nil, ErrDuplicateSignature
	default:
		return nil, fmt.Errorf("record purchase: %w", err)
	}
}

func translateNotFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

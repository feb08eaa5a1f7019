package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wave745/goontest-sub001/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PgxStore talks to Postgres directly through a pgxpool.
type PgxStore struct {
	pool *pgxpool.Pool
}

// OpenPgx connects a pool to dsn. maxConns <= 0 keeps the pgxpool default.
func OpenPgx(ctx context.Context, dsn string, maxConns int32) (*PgxStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement
	cfg.ConnConfig.StatementCacheCapacity = 256

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PgxStore{pool: pool}, nil
}

func (s *PgxStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrate applies schema.sql; every statement is idempotent.
func (s *PgxStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func (s *PgxStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PgxStore) CreateUser(ctx context.Context, u *models.User) error {
	if err := prepareUser(u); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, handle, wallet_address, created_at)
		VALUES ($1, $2, $3, $4)
	`, u.ID, u.Handle, u.WalletAddress, u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: %s", ErrDuplicateUser, u.Handle)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *PgxStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, handle, wallet_address, created_at FROM users WHERE id = $1
	`, id).Scan(&u.ID, &u.Handle, &u.WalletAddress, &u.CreatedAt)
	if err != nil {
		return nil, pgxNotFound(err, "get user")
	}
	return &u, nil
}

const postColumns = `id, creator_id, title, caption, media_type, media_path, thumbnail_path,
	price_lamports, visibility, status, created_at, updated_at`

func (s *PgxStore) CreatePost(ctx context.Context, p *models.Post) error {
	if err := preparePost(p); err != nil {
		return err
	}
	price, err := toInt8(p.PriceLamports)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		p.ID, p.CreatorID, p.Title, p.Caption, string(p.MediaType), p.MediaPath, p.ThumbnailPath,
		price, string(p.Visibility), string(p.Status), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create post: %w", err)
	}
	return nil
}

func (s *PgxStore) UpdatePost(ctx context.Context, id string, upd models.UpdatePostRequest) (*models.Post, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("update post: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err := scanPost(tx.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, pgxNotFound(err, "update post")
	}
	if err := applyUpdate(p, upd); err != nil {
		return nil, err
	}
	price, err := toInt8(p.PriceLamports)
	if err != nil {
		return nil, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE posts SET price_lamports = $2, visibility = $3, status = $4, updated_at = $5
		WHERE id = $1
	`, p.ID, price, string(p.Visibility), string(p.Status), p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update post: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("update post: commit: %w", err)
	}
	return p, nil
}

func (s *PgxStore) GetPost(ctx context.Context, id string) (*models.Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, id))
	if err != nil {
		return nil, pgxNotFound(err, "get post")
	}
	return p, nil
}

func (s *PgxStore) ListPublishedPosts(ctx context.Context, limit int, before time.Time) ([]models.Post, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}
	var beforeArg any
	if !before.IsZero() {
		beforeArg = before
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE status = $1 AND ($2::timestamptz IS NULL OR created_at < $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, string(models.StatusPublished), beforeArg, limit)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return collectPosts(rows)
}

func (s *PgxStore) ListPostsByCreator(ctx context.Context, creatorID string) ([]models.Post, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+` FROM posts
		WHERE creator_id = $1
		ORDER BY created_at DESC, id DESC
	`, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list creator posts: %w", err)
	}
	return collectPosts(rows)
}

func (s *PgxStore) HasPurchased(ctx context.Context, userID, postID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM unlock_records WHERE user_id = $1 AND post_id = $2)
	`, userID, postID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has purchased: %w", err)
	}
	return exists, nil
}

const recordColumns = `id, user_id, post_id, amount_lamports, txn_signature, payer_address, created_at`

func (s *PgxStore) GetPurchase(ctx context.Context, userID, postID string) (*models.UnlockRecord, error) {
	rec, err := scanRecord(s.pool.QueryRow(ctx, `
		SELECT `+recordColumns+` FROM unlock_records WHERE user_id = $1 AND post_id = $2
	`, userID, postID))
	if err != nil {
		return nil, pgxNotFound(err, "get purchase")
	}
	return rec, nil
}

func (s *PgxStore) ListPurchasesByUser(ctx context.Context, userID string) ([]models.UnlockRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+` FROM unlock_records
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()

	var out []models.UnlockRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list purchases: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// RecordPurchase inserts with ON CONFLICT DO NOTHING and, on conflict,
// selects the existing pair inside the same transaction to tell a duplicate
// unlock from a replayed signature.
func (s *PgxStore) RecordPurchase(ctx context.Context, rec models.UnlockRecord) (*models.UnlockRecord, error) {
	if err := prepareRecord(&rec); err != nil {
		return nil, err
	}
	amount, err := toInt8(rec.AmountLamports)
	if err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("record purchase: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		INSERT INTO unlock_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT DO NOTHING
	`, rec.ID, rec.UserID, rec.PostID, amount, rec.TxnSignature, rec.PayerAddress, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("record purchase: insert: %w", err)
	}

	if tag.RowsAffected() == 1 {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("record purchase: commit: %w", err)
		}
		return &rec, nil
	}

	existing, err := scanRecord(tx.QueryRow(ctx, `
		SELECT `+recordColumns+` FROM unlock_records WHERE user_id = $1 AND post_id = $2
	`, rec.UserID, rec.PostID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicateSignature
	}
	if err != nil {
		return nil, fmt.Errorf("record purchase: select existing: %w", err)
	}
	return existing, ErrDuplicateUnlock
}

func scanPost(row pgx.Row) (*models.Post, error) {
	var (
		p                              models.Post
		mediaType, visibility, status string
		price                          int64
	)
	err := row.Scan(&p.ID, &p.CreatorID, &p.Title, &p.Caption, &mediaType, &p.MediaPath, &p.ThumbnailPath,
		&price, &visibility, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.MediaType = models.MediaType(mediaType)
	p.Visibility = models.Visibility(visibility)
	p.Status = models.PostStatus(status)
	p.PriceLamports = uint64(price)
	return &p, nil
}

func collectPosts(rows pgx.Rows) ([]models.Post, error) {
	defer rows.Close()
	var out []models.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*models.UnlockRecord, error) {
	var (
		rec    models.UnlockRecord
		amount int64
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.PostID, &amount, &rec.TxnSignature, &rec.PayerAddress, &rec.CreatedAt); err != nil {
		return nil, err
	}
	rec.AmountLamports = uint64(amount)
	return &rec, nil
}

func toInt8(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: amount %d overflows BIGINT", ErrInvalidRecord, v)
	}
	return int64(v), nil
}

func pgxNotFound(err error, op string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

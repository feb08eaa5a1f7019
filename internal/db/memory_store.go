package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wave745/goontest-sub001/internal/models"
)

type purchaseKey struct {
	userID string
	postID string
}

// MemoryStore keeps everything in process memory. Ledger writes take the
// write lock for the whole check-and-insert so readers never see a torn record.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]models.User
	handles    map[string]string // handle -> user id
	posts      map[string]models.Post
	purchases  map[purchaseKey]models.UnlockRecord
	signatures map[string]purchaseKey
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]models.User),
		handles:    make(map[string]string),
		posts:      make(map[string]models.Post),
		purchases:  make(map[purchaseKey]models.UnlockRecord),
		signatures: make(map[string]purchaseKey),
	}
}

func (s *MemoryStore) Ping(context.Context) error    { return nil }
func (s *MemoryStore) Migrate(context.Context) error { return nil }
func (s *MemoryStore) Close() error                  { return nil }

func (s *MemoryStore) CreateUser(_ context.Context, u *models.User) error {
	if err := prepareUser(u); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; ok {
		return fmt.Errorf("%w: id %s", ErrDuplicateUser, u.ID)
	}
	if _, ok := s.handles[u.Handle]; ok {
		return fmt.Errorf("%w: handle %s", ErrDuplicateUser, u.Handle)
	}
	s.users[u.ID] = *u
	s.handles[u.Handle] = u.ID
	return nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s *MemoryStore) CreatePost(_ context.Context, p *models.Post) error {
	if err := preparePost(p); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[p.ID]; ok {
		return fmt.Errorf("post %s already exists", p.ID)
	}
	s.posts[p.ID] = *p
	return nil
}

func (s *MemoryStore) UpdatePost(_ context.Context, id string, upd models.UpdatePostRequest) (*models.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := applyUpdate(&p, upd); err != nil {
		return nil, err
	}
	s.posts[id] = p
	return &p, nil
}

func (s *MemoryStore) GetPost(_ context.Context, id string) (*models.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) ListPublishedPosts(_ context.Context, limit int, before time.Time) ([]models.Post, error) {
	s.mu.RLock()
	out := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if p.Status != models.StatusPublished {
			continue
		}
		if !before.IsZero() && !p.CreatedAt.Before(before) {
			continue
		}
		out = append(out, p)
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListPostsByCreator(_ context.Context, creatorID string) ([]models.Post, error) {
	s.mu.RLock()
	var out []models.Post
	for _, p := range s.posts {
		if p.CreatorID == creatorID {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) HasPurchased(_ context.Context, userID, postID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.purchases[purchaseKey{userID, postID}]
	return ok, nil
}

func (s *MemoryStore) GetPurchase(_ context.Context, userID, postID string) (*models.UnlockRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.purchases[purchaseKey{userID, postID}]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) ListPurchasesByUser(_ context.Context, userID string) ([]models.UnlockRecord, error) {
	s.mu.RLock()
	var out []models.UnlockRecord
	for k, rec := range s.purchases {
		if k.userID == userID {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) RecordPurchase(_ context.Context, rec models.UnlockRecord) (*models.UnlockRecord, error) {
	if err := prepareRecord(&rec); err != nil {
		return nil, err
	}
	key := purchaseKey{rec.UserID, rec.PostID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.purchases[key]; ok {
		return &existing, ErrDuplicateUnlock
	}
	if _, ok := s.signatures[rec.TxnSignature]; ok {
		return nil, ErrDuplicateSignature
	}
	s.purchases[key] = rec
	s.signatures[rec.TxnSignature] = key
	return &rec, nil
}

func sortNewestFirst(posts []models.Post) {
	sort.Slice(posts, func(i, j int) bool {
		if posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].ID > posts[j].ID
		}
		return posts[i].CreatedAt.After(posts[j].CreatedAt)
	})
}

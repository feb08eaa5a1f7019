package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave745/goontest-sub001/internal/db"
	"github.com/wave745/goontest-sub001/internal/middleware"
	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/internal/services"
	"github.com/wave745/goontest-sub001/utils"
)

const (
	creatorWallet = "9xQeWvG816bUx9EPjHmaT23yvVM2ZWbrrpZb9PusVFin"
	viewerWallet  = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	engine *gin.Engine
	store  *db.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	st := db.NewMemoryStore()
	require.NoError(t, st.CreateUser(ctx, &models.User{ID: "creator", Handle: "creator", WalletAddress: creatorWallet}))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, p := range []models.Post{
		{ID: "free", Title: "free"},
		{ID: "p1", Title: "paid", PriceLamports: 500_000_000},
		{ID: "draft", PriceLamports: 1, Status: models.StatusDraft},
	} {
		p.CreatorID = "creator"
		p.MediaPath = "media/" + p.ID + ".jpg"
		if p.Status == "" {
			p.Status = models.StatusPublished
		}
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.CreatePost(ctx, &p))
	}

	coord := services.NewCoordinator(st, services.ProofProvider{}, services.WithLogger(utils.Discard))
	feed := services.NewFeedService(st, services.NewProjector(nil), 50, utils.Discard)
	h := New(coord, feed, st, NewHealth(st, 0), utils.Discard, WithCluster("devnet"))

	r := gin.New()
	RegisterRoutes(r, h)
	return &testServer{engine: r, store: st}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, mod ...func(*http.Request)) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, m := range mod {
		m(req)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	out := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

func asViewer(id string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set(middleware.ViewerHeader, id) }
}

func fromLoopback(r *http.Request) { r.RemoteAddr = "127.0.0.1:40000" }

func accessOf(t *testing.T, v interface{}) string {
	t.Helper()
	m, ok := v.(map[string]interface{})
	require.True(t, ok, "access is %T", v)
	return m["state"].(string)
}

func postsByID(t *testing.T, body map[string]interface{}) map[string]map[string]interface{} {
	t.Helper()
	out := map[string]map[string]interface{}{}
	for _, raw := range body["posts"].([]interface{}) {
		p := raw.(map[string]interface{})
		out[p["id"].(string)] = p
	}
	return out
}

func TestUnlockFlow(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/posts/unlock", gin.H{"postId": "p1"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, services.CodeNotConnected, body["code"])

	status, body = s.do(t, http.MethodPost, "/api/posts/unlock", gin.H{"postId": "p1", "userPubkey": viewerWallet})
	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, services.CodePaymentDeclined, body["code"])
	assert.Equal(t, "locked", accessOf(t, body["access"]))

	status, body = s.do(t, http.MethodPost, "/api/posts/unlock", gin.H{
		"postId": "p1", "userPubkey": viewerWallet, "userId": "u1", "txnSignature": "sig1",
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "unlocked", accessOf(t, body["access"]))
	assert.Equal(t, false, body["alreadyUnlocked"])
	view := body["view"].(map[string]interface{})
	assert.NotEmpty(t, view["mediaUrl"])
	assert.Equal(t, true, view["purchasedBadge"])

	status, body = s.do(t, http.MethodPost, "/api/posts/unlock", gin.H{
		"postId": "p1", "userPubkey": viewerWallet, "userId": "u1", "txnSignature": "sig-other",
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["alreadyUnlocked"])

	status, body = s.do(t, http.MethodPost, "/api/posts/unlock", gin.H{
		"postId": "p1", "userPubkey": creatorWallet, "userId": "u2", "txnSignature": "sig1",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, services.CodePaymentReplay, body["code"])
	assert.Equal(t, "locked", accessOf(t, body["access"]))

	recs, err := s.store.ListPurchasesByUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestUnlockErrors(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/posts/unlock", gin.H{"userPubkey": viewerWallet})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, services.CodeInvalidRequest, body["code"])

	status, body = s.do(t, http.MethodPost, "/api/posts/unlock", gin.H{"postId": "nope", "userPubkey": viewerWallet})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, services.CodeNotFound, body["code"])

	status, body = s.do(t, http.MethodPost, "/api/posts/unlock", gin.H{"postId": "draft", "userPubkey": viewerWallet})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, services.CodeNotAvailable, body["code"])

	status, body = s.do(t, http.MethodPost, "/api/posts/unlock", gin.H{"postId": "free", "userPubkey": viewerWallet})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "free", accessOf(t, body["access"]))
}

func TestFeedAndDetail(t *testing.T) {
	s := newTestServer(t)
	_, err := s.store.RecordPurchase(context.Background(), models.UnlockRecord{
		UserID: "u1", PostID: "p1", AmountLamports: 500_000_000, TxnSignature: "sig1",
	})
	require.NoError(t, err)

	status, body := s.do(t, http.MethodGet, "/api/feed", nil, asViewer("u1"))
	require.Equal(t, http.StatusOK, status)
	posts := postsByID(t, body)
	assert.Len(t, posts, 2)
	assert.Equal(t, "unlocked", accessOf(t, posts["p1"]["access"]))

	status, body = s.do(t, http.MethodGet, "/api/feed?viewer=u2", nil)
	require.Equal(t, http.StatusOK, status)
	locked := postsByID(t, body)["p1"]
	assert.Equal(t, "locked", accessOf(t, locked["access"]))
	assert.Nil(t, locked["mediaUrl"])
	assert.Equal(t, "0.500 SOL", locked["priceBadge"])

	status, body = s.do(t, http.MethodGet, "/api/feed?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, services.CodeInvalidRequest, body["code"])

	status, body = s.do(t, http.MethodGet, "/api/posts/p1", nil, asViewer("u2"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "locked", accessOf(t, body["post"].(map[string]interface{})["access"]))

	status, body = s.do(t, http.MethodGet, "/api/posts/draft", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, services.CodeNotAvailable, body["code"])

	status, body = s.do(t, http.MethodGet, "/api/creators/creator/posts", nil, asViewer("u1"))
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, postsByID(t, body), 2)
	assert.NotContains(t, body, "degraded")
}

// unreadableLedger fails every purchase listing.
type unreadableLedger struct {
	*db.MemoryStore
}

func (unreadableLedger) ListPurchasesByUser(context.Context, string) ([]models.UnlockRecord, error) {
	return nil, errors.New("connection refused")
}

func TestFeedDegradedWhenLedgerUnreadable(t *testing.T) {
	s := newTestServer(t)
	_, err := s.store.RecordPurchase(context.Background(), models.UnlockRecord{
		UserID: "u1", PostID: "p1", AmountLamports: 500_000_000, TxnSignature: "sig1",
	})
	require.NoError(t, err)

	st := unreadableLedger{s.store}
	coord := services.NewCoordinator(st, services.ProofProvider{})
	feed := services.NewFeedService(st, services.NewProjector(nil), 50, utils.Discard)
	r := gin.New()
	RegisterRoutes(r, New(coord, feed, st, NewHealth(st, 0), utils.Discard))
	s.engine = r

	for _, path := range []string{"/api/feed", "/api/creators/creator/posts"} {
		t.Run(path, func(t *testing.T) {
			status, body := s.do(t, http.MethodGet, path, nil, asViewer("u1"))
			require.Equal(t, http.StatusOK, status)
			assert.Equal(t, true, body["degraded"])
			posts := postsByID(t, body)
			assert.Len(t, posts, 2)
			assert.Equal(t, "locked", accessOf(t, posts["p1"]["access"]))
			assert.Equal(t, "free", accessOf(t, posts["free"]["access"]))
		})
	}

	// anonymous viewers never touch the ledger
	status, body := s.do(t, http.MethodGet, "/api/feed", nil)
	require.Equal(t, http.StatusOK, status)
	assert.NotContains(t, body, "degraded")
}

func TestUserUnlocks(t *testing.T) {
	s := newTestServer(t)
	var sig solana.Signature
	sig[0] = 1
	signature := sig.String()
	_, err := s.store.RecordPurchase(context.Background(), models.UnlockRecord{
		UserID: "u1", PostID: "p1", AmountLamports: 500_000_000, TxnSignature: signature,
	})
	require.NoError(t, err)

	status, body := s.do(t, http.MethodGet, "/api/users/u1/unlocks", nil)
	require.Equal(t, http.StatusOK, status)
	unlocks := body["unlocks"].([]interface{})
	require.Len(t, unlocks, 1)
	entry := unlocks[0].(map[string]interface{})
	assert.Equal(t, "0.500", entry["amount"])
	assert.Equal(t, utils.ExplorerURL(signature, "devnet"), entry["explorerUrl"])

	status, body = s.do(t, http.MethodGet, "/api/users/nobody/unlocks", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body["unlocks"])
}

func TestAdmin(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/admin/users", gin.H{"handle": "someone"})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, services.CodeForbidden, body["code"])

	status, body = s.do(t, http.MethodPost, "/admin/users", gin.H{"handle": "@Alice", "walletAddress": viewerWallet}, fromLoopback)
	require.Equal(t, http.StatusCreated, status, body)
	assert.Equal(t, "alice", body["handle"])

	status, body = s.do(t, http.MethodPost, "/admin/users", gin.H{"handle": "alice"}, fromLoopback)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = s.do(t, http.MethodPost, "/admin/users", gin.H{"handle": "bob", "walletAddress": "nope"}, fromLoopback)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPost, "/admin/posts", gin.H{
		"creatorId": "creator", "mediaPath": "media/new.jpg", "priceLamports": 1000, "status": "published",
	}, fromLoopback)
	require.Equal(t, http.StatusCreated, status, body)
	id := body["id"].(string)
	assert.NotEmpty(t, id)

	status, body = s.do(t, http.MethodPost, "/admin/posts", gin.H{"creatorId": "ghost", "mediaPath": "m.jpg"}, fromLoopback)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, services.CodeNotFound, body["code"])

	status, body = s.do(t, http.MethodPatch, "/admin/posts/"+id, gin.H{"priceLamports": 0}, fromLoopback)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 0, body["priceLamports"])

	status, _ = s.do(t, http.MethodPatch, "/admin/posts/"+id, gin.H{"visibility": "secret"}, fromLoopback)
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodPatch, "/admin/posts/missing", gin.H{"priceLamports": 1}, fromLoopback)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])

	status, body = s.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	h := NewHealth(s.store, time.Minute)
	r := gin.New()
	r.GET("/readyz", h.Readyz)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	h.now = func() time.Time { return h.startTime.Add(2 * time.Minute) }
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

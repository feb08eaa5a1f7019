package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/internal/services"
	"github.com/wave745/goontest-sub001/utils"
)

// CreateUser POST /admin/users
func (h *Handler) CreateUser(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err), nil)
		return
	}
	if req.WalletAddress != "" && !utils.IsPublicKey(req.WalletAddress) {
		h.writeError(c, fmt.Errorf("%w: walletAddress is not a public key", services.ErrInvalidRequest), nil)
		return
	}

	u := &models.User{ID: req.ID, Handle: req.Handle, WalletAddress: req.WalletAddress}
	if err := h.store.CreateUser(c.Request.Context(), u); err != nil {
		h.writeError(c, err, nil)
		return
	}
	h.log.Info("created user %s (@%s)", u.ID, u.Handle)
	c.JSON(http.StatusCreated, u)
}

// CreatePost POST /admin/posts
func (h *Handler) CreatePost(c *gin.Context) {
	var req models.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err), nil)
		return
	}

	ctx := c.Request.Context()
	if _, err := h.store.GetUser(ctx, req.CreatorID); err != nil {
		h.writeError(c, fmt.Errorf("creator %s: %w", req.CreatorID, err), nil)
		return
	}

	p := &models.Post{
		CreatorID:     req.CreatorID,
		Title:         req.Title,
		Caption:       req.Caption,
		MediaType:     req.MediaType,
		MediaPath:     req.MediaPath,
		ThumbnailPath: req.ThumbnailPath,
		PriceLamports: req.PriceLamports,
		Visibility:    req.Visibility,
		Status:        req.Status,
	}
	if err := h.store.CreatePost(ctx, p); err != nil {
		h.writeError(c, err, nil)
		return
	}
	h.log.Info("created post %s by %s, price %s", p.ID, p.CreatorID, utils.FormatLamports(p.PriceLamports))
	c.JSON(http.StatusCreated, p)
}

// UpdatePost PATCH /admin/posts/:id
func (h *Handler) UpdatePost(c *gin.Context) {
	var req models.UpdatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err), nil)
		return
	}

	p, err := h.store.UpdatePost(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.writeError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, p)
}

package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wave745/goontest-sub001/internal/middleware"
	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/internal/services"
)

// Feed GET /api/feed?limit=&before=
// Like PostDetail, a ledger failure still returns the locked cards, flagged as
// degraded.
func (h *Handler) Feed(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(c, fmt.Errorf("%w: limit must be a non-negative integer", services.ErrInvalidRequest), nil)
			return
		}
		limit = n
	}

	var before time.Time
	if raw := c.Query("before"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(c, fmt.Errorf("%w: before must be RFC3339", services.ErrInvalidRequest), nil)
			return
		}
		before = t
	}

	views, err := h.feed.Feed(c.Request.Context(), middleware.ViewerID(c), limit, before)
	if err != nil && views == nil {
		h.writeError(c, err, nil)
		return
	}
	body := gin.H{"posts": nonNil(views)}
	if err != nil {
		h.log.Warn("feed degraded: %v", err)
		body["degraded"] = true
	}
	c.JSON(http.StatusOK, body)
}

// PostDetail GET /api/posts/:id
// When the ledger cannot be read the locked view is still returned with 200,
// flagged as degraded.
func (h *Handler) PostDetail(c *gin.Context) {
	view, err := h.feed.Detail(c.Request.Context(), middleware.ViewerID(c), c.Param("id"))
	if err != nil && view == nil {
		h.writeError(c, err, nil)
		return
	}
	if err != nil {
		h.log.Warn("detail %s degraded: %v", c.Param("id"), err)
		c.JSON(http.StatusOK, gin.H{"post": view, "degraded": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"post": view})
}

// CreatorPosts GET /api/creators/:id/posts
func (h *Handler) CreatorPosts(c *gin.Context) {
	views, err := h.feed.CreatorGrid(c.Request.Context(), middleware.ViewerID(c), c.Param("id"))
	if err != nil && views == nil {
		h.writeError(c, err, nil)
		return
	}
	body := gin.H{"creatorId": c.Param("id"), "posts": nonNil(views)}
	if err != nil {
		h.log.Warn("creator %s grid degraded: %v", c.Param("id"), err)
		body["degraded"] = true
	}
	c.JSON(http.StatusOK, body)
}

func nonNil(views []models.PostView) []models.PostView {
	if views == nil {
		return []models.PostView{}
	}
	return views
}

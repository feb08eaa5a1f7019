package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/internal/services"
)

// Unlock POST /api/posts/unlock
func (h *Handler) Unlock(c *gin.Context) {
	var req models.UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, fmt.Errorf("%w: %v", services.ErrInvalidRequest, err), nil)
		return
	}

	ctx := c.Request.Context()
	res, err := h.coord.Unlock(ctx, services.UnlockInput{
		UserID:       req.UserID,
		PostID:       req.PostID,
		WalletPubkey: req.UserPubkey,
		TxnSignature: req.TxnSignature,
		SerializedTx: req.SerializedTx,
	})
	if err != nil {
		var access *models.AccessState
		if res != nil {
			access = &res.Access
		}
		h.writeError(c, err, access)
		return
	}

	resp := models.UnlockResponse{
		PostID:          res.PostID,
		UserID:          res.UserID,
		Access:          res.Access,
		AlreadyUnlocked: res.AlreadyUnlocked,
		Record:          res.Record,
	}
	if post, err := h.feed.GetPost(ctx, res.PostID); err == nil {
		if view, err := h.feed.View(ctx, services.SurfaceDetail, post, res.Access); err == nil {
			resp.View = view
		}
	} else {
		h.log.Warn("unlock %s: re-render skipped: %v", res.PostID, err)
	}

	c.JSON(http.StatusOK, resp)
}

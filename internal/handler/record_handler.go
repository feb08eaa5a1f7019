package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wave745/goontest-sub001/internal/models"
	"github.com/wave745/goontest-sub001/internal/services"
	"github.com/wave745/goontest-sub001/utils"
)

type unlockEntry struct {
	models.UnlockRecord
	Amount      string `json:"amount"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
}

// UserUnlocks GET /api/users/:id/unlocks 用户的解锁记录
func (h *Handler) UserUnlocks(c *gin.Context) {
	userID := c.Param("id")
	recs, err := h.store.ListPurchasesByUser(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, fmt.Errorf("%w: %w", services.ErrLedgerUnavailable, err), nil)
		return
	}

	out := make([]unlockEntry, 0, len(recs))
	for _, r := range recs {
		entry := unlockEntry{UnlockRecord: r, Amount: utils.FormatLamports(r.AmountLamports)}
		if utils.IsSignature(r.TxnSignature) {
			entry.ExplorerURL = utils.ExplorerURL(r.TxnSignature, h.cluster)
		}
		out = append(out, entry)
	}
	c.JSON(http.StatusOK, gin.H{"userId": userID, "unlocks": out})
}

package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger is the part of the store the readiness probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health serves the liveness and readiness probes.
type Health struct {
	store     Pinger
	startTime time.Time
	delay     time.Duration
	now       func() time.Time
}

// NewHealth 记录服务启动时间；delay 为就绪前的等待时间
func NewHealth(store Pinger, delay time.Duration) *Health {
	return &Health{store: store, startTime: time.Now(), delay: delay, now: time.Now}
}

// Healthz 存活探针（liveness probe），总是返回 200
func (h *Health) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "liveness",
	})
}

// Readyz 就绪探针（readiness probe）：等待 delay 之后再检查存储连接
func (h *Health) Readyz(c *gin.Context) {
	elapsed := h.now().Sub(h.startTime)
	if elapsed < h.delay {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":    "not ready",
			"type":      "readiness",
			"message":   "warming up",
			"elapsed":   elapsed.String(),
			"remaining": (h.delay - elapsed).String(),
		})
		return
	}

	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"type":    "readiness",
			"message": "store not initialized",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.store.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"type":    "readiness",
			"message": "store unreachable",
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"type":   "readiness",
		"uptime": elapsed.String(),
	})
}

package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wave745/goontest-sub001/utils"
)

const (
	// ViewerHeader carries the viewer's locally generated identity.
	ViewerHeader = "X-Viewer-Id"
	viewerKey    = "viewerID"
)

// Viewer resolves the viewer identity from the X-Viewer-Id header, falling
// back to the ?viewer= query parameter. Absent means anonymous.
func Viewer() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(ViewerHeader))
		if id == "" {
			id = strings.TrimSpace(c.Query("viewer"))
		}
		c.Set(viewerKey, id)
		c.Next()
	}
}

// ViewerID returns the identity set by Viewer, or "".
func ViewerID(c *gin.Context) string {
	return c.GetString(viewerKey)
}

// RequestLogger logs one line per request through log.
func RequestLogger(log *utils.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		line := "%s %s %d %s"
		args := []interface{}{c.Request.Method, c.Request.URL.Path, status, time.Since(start)}
		switch {
		case status >= 500:
			log.Error(line, args...)
		case status >= 400:
			log.Warn(line, args...)
		default:
			log.Debug(line, args...)
		}
	}
}

package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
)

// codeForbidden matches the error envelope used by the handlers.
const codeForbidden = "FORBIDDEN"

// LocalOnly 中间件：只允许本地访问（127.0.0.1 或 ::1），用于保护 /admin
func LocalOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := net.ParseIP(c.ClientIP())
		if ip == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": codeForbidden})
			return
		}

		if !ip.IsLoopback() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden: local access only", "code": codeForbidden})
			return
		}

		c.Next()
	}
}

package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/guild_server/internal/pkg/metrics"
)

// Metrics 按路由模板记录请求数与耗时，未匹配的路由归为一类避免标签爆炸
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordHTTP(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

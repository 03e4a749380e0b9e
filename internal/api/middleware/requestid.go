package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/logging"
	"github.com/qs3c/guild_server/internal/pkg/response"
)

const RequestIDHeader = "X-Request-ID"

// RequestID 为每个请求分配 ID，并在 context 中挂上带 request_id 的 logger
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = logging.NewRequestID()
		}

		ctx := logging.ContextWithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// AccessLog 请求日志
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logging.Ctx(c.Request.Context()).Info()
		if status >= 500 {
			event = logging.Ctx(c.Request.Context()).Error()
		} else if status >= 400 {
			event = logging.Ctx(c.Request.Context()).Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// Recovery 捕获 panic，按服务器错误返回
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.Ctx(c.Request.Context()).Error().
			Interface("panic", recovered).
			Str("path", c.Request.URL.Path).
			Msg("panic recovered")
		response.FromError(c, apperr.New(apperr.Unknown, "panic"))
	})
}

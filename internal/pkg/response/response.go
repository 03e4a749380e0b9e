package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/logging"
)

// 错误码定义
const (
	CodeSuccess          = 0
	CodeParamError       = 1000
	CodeAuthFailed       = 1001
	CodePermissionDenied = 1002
	CodeResourceNotFound = 1003
	CodeTooManyRequests  = 1006
	CodeServerError      = 5000
)

// 错误码对应的默认消息
var codeMessages = map[int]string{
	CodeSuccess:          "success",
	CodeParamError:       "参数错误",
	CodeAuthFailed:       "认证失败",
	CodePermissionDenied: "权限不足",
	CodeResourceNotFound: "资源不存在",
	CodeTooManyRequests:  "请求过于频繁",
	CodeServerError:      "服务器内部错误",
}

// Response 统一响应结构
type Response struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// Success 成功响应
func Success(c *gin.Context, data interface{}) {
	SuccessWithMessage(c, codeMessages[CodeSuccess], data)
}

// SuccessWithMessage 带自定义消息的成功响应
func SuccessWithMessage(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, Response{Code: CodeSuccess, Message: message, Data: data})
}

type kindMapping struct {
	code   int
	status int
}

var kindMappings = map[apperr.Kind]kindMapping{
	apperr.Unauthorized:    {CodeAuthFailed, http.StatusUnauthorized},
	apperr.BadRequest:      {CodeParamError, http.StatusBadRequest},
	apperr.Forbidden:       {CodePermissionDenied, http.StatusForbidden},
	apperr.NotFound:        {CodeResourceNotFound, http.StatusNotFound},
	apperr.TooManyRequests: {CodeTooManyRequests, http.StatusTooManyRequests},
	apperr.Unknown:         {CodeServerError, http.StatusInternalServerError},
}

// CodeOf apperr 类别对应的业务码与 HTTP 状态码
func CodeOf(kind apperr.Kind) (code, status int) {
	m, ok := kindMappings[kind]
	if !ok {
		m = kindMappings[apperr.Unknown]
	}
	return m.code, m.status
}

// FromError 将 service 层错误写为响应并中止后续 handler。
// 业务码放在响应体，HTTP 状态码与类别对应；Unknown 只返回通用消息，原因写日志
func FromError(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	code, status := CodeOf(kind)

	message := apperr.MessageOf(err)
	if kind == apperr.Unknown {
		logging.Ctx(c.Request.Context()).Error().
			Err(err).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Msg("request failed")
		message = codeMessages[CodeServerError]
	}
	if message == "" {
		message = codeMessages[code]
	}

	c.AbortWithStatusJSON(status, Response{Code: code, Message: message})
}

package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/guild_server/internal/model/dto"
	"github.com/qs3c/guild_server/internal/pkg/response"
	"github.com/qs3c/guild_server/internal/service"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
	}
}

// SendCode 发送邮箱登录验证码
// POST /api/v1/auth/code
func (h *AuthHandler) SendCode(c *gin.Context) {
	var req dto.SendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	if err := h.authService.SendCode(c.Request.Context(), req.Email); err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "验证码已发送，请查收邮件", nil)
}

// Verify 验证码登录，首次登录自动注册
// POST /api/v1/auth/verify
func (h *AuthHandler) Verify(c *gin.Context) {
	var req dto.VerifyCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	resp, err := h.authService.Verify(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "登录成功", resp)
}

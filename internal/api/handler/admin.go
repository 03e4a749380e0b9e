package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/guild_server/internal/api/middleware"
	"github.com/qs3c/guild_server/internal/model/dto"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/response"
	"github.com/qs3c/guild_server/internal/service"
)

// AdminHandler 管理员接口，路由组已要求 admin 角色
type AdminHandler struct {
	userService    *service.UserService
	commentService *service.CommentService
}

func NewAdminHandler(userService *service.UserService, commentService *service.CommentService) *AdminHandler {
	return &AdminHandler{
		userService:    userService,
		commentService: commentService,
	}
}

// SetRoles 替换用户角色，用户下次登录后生效
// PUT /api/v1/admin/users/:id/roles
func (h *AdminHandler) SetRoles(c *gin.Context) {
	userID, err := middleware.ParseIDParam(c, "id")
	if err != nil {
		response.FromError(c, apperr.New(apperr.BadRequest, "Invalid user id"))
		return
	}

	var req dto.UpdateRolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.userService.SetRoles(c.Request.Context(), middleware.GetPrincipal(c), userID, req.Roles)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "角色已更新", user)
}

// FlushCache 清空评论缓存
// POST /api/v1/admin/cache/flush
func (h *AdminHandler) FlushCache(c *gin.Context) {
	n, err := h.commentService.InvalidateAllCache(c.Request.Context(), middleware.GetPrincipal(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted_keys": n})
}

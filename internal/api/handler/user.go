package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs3c/guild_server/internal/api/middleware"
	"github.com/qs3c/guild_server/internal/model/dto"
	"github.com/qs3c/guild_server/internal/pkg/access"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/response"
	"github.com/qs3c/guild_server/internal/service"
)

type UserHandler struct {
	userService *service.UserService
}

func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

func currentUserID(c *gin.Context) (int64, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		response.FromError(c, access.RequirePrincipal(nil))
		return 0, false
	}
	return userID, true
}

// GetProfile 获取当前用户信息
// GET /api/v1/user/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	profile, err := h.userService.GetProfile(c.Request.Context(), userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, profile)
}

// UpdateProfile 更新用户信息
// PUT /api/v1/user/profile
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	profile, err := h.userService.UpdateProfile(c.Request.Context(), userID, &req)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "更新成功", profile)
}

// UploadAvatar 上传头像，表单字段 file
// POST /api/v1/user/avatar
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.FromError(c, apperr.New(apperr.BadRequest, "file is required"))
		return
	}
	if file.Size > service.MaxAvatarSize {
		response.FromError(c, service.ErrAvatarTooLarge)
		return
	}

	f, err := file.Open()
	if err != nil {
		response.FromError(c, apperr.Internal(err))
		return
	}
	defer f.Close()

	avatarURL, err := h.userService.UploadAvatar(c.Request.Context(), userID, f, file.Filename)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "上传成功", gin.H{
		"avatar_url": avatarURL,
	})
}

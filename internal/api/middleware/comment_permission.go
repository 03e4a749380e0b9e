package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/access"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/response"
	"github.com/qs3c/guild_server/internal/service"
)

// 权限链写入 gin 上下文的 key
const (
	ContentTypeKey = "commentContentType"
	CommentKey     = "comment"
	ParentKey      = "parentComment"
	RateCheckedKey = "commentRateChecked"
)

// ContentTypeSource 内容类型的来源
type ContentTypeSource int

const (
	FromQuery ContentTypeSource = iota
	FromBody
)

var (
	errInvalidCommentID = apperr.New(apperr.BadRequest, "Invalid comment id")
	errInvalidParentID  = apperr.New(apperr.BadRequest, "Invalid parent_comment_id")
	errInvalidBody      = apperr.New(apperr.BadRequest, "Invalid JSON body")
)

// commentTarget 创建请求中权限链关心的字段；只做 JSON 解析不做校验
type commentTarget struct {
	ContentID       string `json:"content_id"`
	ContentType     string `json:"content_type"`
	ParentCommentID string `json:"parent_comment_id"`
}

func bindTarget(c *gin.Context) (*commentTarget, error) {
	var target commentTarget
	// ShouldBindBodyWith 缓存原始 body，handler 可再次绑定
	if err := c.ShouldBindBodyWith(&target, binding.JSON); err != nil {
		return nil, errInvalidBody
	}
	return &target, nil
}

// RequireAuth 第 1 步：必须已认证
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := access.RequirePrincipal(GetPrincipal(c)); err != nil {
			response.FromError(c, err)
			return
		}
		c.Next()
	}
}

// RequireContentType 第 2 步：内容类型必须存在且在策略表中
func RequireContentType(policy *access.PolicyTable, source ContentTypeSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		var raw string
		switch source {
		case FromBody:
			target, err := bindTarget(c)
			if err != nil {
				response.FromError(c, err)
				return
			}
			raw = target.ContentType
		default:
			raw = c.Query("content_type")
		}

		ct, err := policy.ParseContentType(raw)
		if err != nil {
			response.FromError(c, err)
			return
		}
		c.Set(ContentTypeKey, ct)
		c.Next()
	}
}

// RequireContentRole 第 3 步：调用方角色与内容类型允许的角色有交集
func RequireContentRole(policy *access.PolicyTable) gin.HandlerFunc {
	return func(c *gin.Context) {
		ct, ok := GetContentType(c)
		if !ok {
			response.FromError(c, access.ErrMissingContentType)
			return
		}
		if err := policy.Authorize(GetPrincipal(c), ct); err != nil {
			response.FromError(c, err)
			return
		}
		c.Next()
	}
}

// RequireOwnership 第 4 步：作者或管理员，加载的评论写入上下文
func RequireOwnership(perms *service.PermissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := ParseIDParam(c, "id")
		if err != nil {
			response.FromError(c, err)
			return
		}
		comment, err := perms.CheckOwnership(c.Request.Context(), GetPrincipal(c), id)
		if err != nil {
			response.FromError(c, err)
			return
		}
		c.Set(CommentKey, comment)
		c.Next()
	}
}

// ValidateParent 第 5 步（仅创建）：父评论存在、未删除、同一内容且不是回复
func ValidateParent(perms *service.PermissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		target, err := bindTarget(c)
		if err != nil {
			response.FromError(c, err)
			return
		}

		raw := strings.TrimSpace(target.ParentCommentID)
		if raw == "" {
			c.Next()
			return
		}
		parentID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parentID <= 0 {
			response.FromError(c, errInvalidParentID)
			return
		}

		ct, _ := GetContentType(c)
		parent, err := perms.ValidateParent(c.Request.Context(), &parentID, target.ContentID, ct)
		if err != nil {
			response.FromError(c, err)
			return
		}
		c.Set(ParentKey, parent)
		c.Next()
	}
}

// CommentRateLimit 第 6 步（仅创建）：窗口内评论数限制，管理员豁免
func CommentRateLimit(perms *service.PermissionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := perms.CheckRateLimit(c.Request.Context(), GetPrincipal(c)); err != nil {
			response.FromError(c, err)
			return
		}
		c.Set(RateCheckedKey, true)
		c.Next()
	}
}

// RequireCommentAccess 第 7 步：按评论自身的内容类型做角色校验。
// allowDeleted 仅用于列出已删除父评论下的回复
func RequireCommentAccess(perms *service.PermissionService, allowDeleted bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := ParseIDParam(c, "id")
		if err != nil {
			response.FromError(c, err)
			return
		}
		comment, err := perms.CheckCommentAccess(c.Request.Context(), GetPrincipal(c), id, allowDeleted)
		if err != nil {
			response.FromError(c, err)
			return
		}
		c.Set(CommentKey, comment)
		c.Next()
	}
}

// ParseIDParam 解析路径中的评论 ID
func ParseIDParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errInvalidCommentID
	}
	return id, nil
}

// GetContentType 权限链校验过的内容类型
func GetContentType(c *gin.Context) (model.ContentType, bool) {
	v, ok := c.Get(ContentTypeKey)
	if !ok {
		return "", false
	}
	ct, ok := v.(model.ContentType)
	return ct, ok
}

// GetComment 权限链加载的评论
func GetComment(c *gin.Context) *model.Comment {
	v, ok := c.Get(CommentKey)
	if !ok {
		return nil
	}
	comment, _ := v.(*model.Comment)
	return comment
}

// GetParent 权限链加载的父评论，无父评论时为 nil
func GetParent(c *gin.Context) *model.Comment {
	v, ok := c.Get(ParentKey)
	if !ok {
		return nil
	}
	parent, _ := v.(*model.Comment)
	return parent
}

// RateChecked 频率限制是否已在权限链中检查
func RateChecked(c *gin.Context) bool {
	return c.GetBool(RateCheckedKey)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/guild_server/internal/pkg/apperr"
)

// 评论相关错误
var (
	ErrCommentNotFound = apperr.New(apperr.NotFound, "Comment not found")
	ErrParentNotFound  = apperr.New(apperr.BadRequest, "Parent comment not found")
	ErrParentMismatch  = apperr.New(apperr.BadRequest, "Parent comment belongs to different content")
	ErrReplyToReply    = apperr.New(apperr.BadRequest, "Cannot reply to a reply")
	ErrNotOwner        = apperr.New(apperr.Forbidden, "You can only modify your own comments")
	ErrRateLimited     = apperr.New(apperr.TooManyRequests, "Too many comments. Please try again later")
	ErrEmptyBody       = apperr.New(apperr.BadRequest, "Comment body is required")
	ErrInvalidReaction = apperr.New(apperr.BadRequest, "Invalid reaction kind")
	ErrAdminOnly       = apperr.New(apperr.Forbidden, "Admin role required")
)

// 用户与登录相关错误
var (
	ErrUserNotFound      = apperr.New(apperr.NotFound, "User not found")
	ErrUsernameExists    = apperr.New(apperr.BadRequest, "Username already taken")
	ErrInvalidCode       = apperr.New(apperr.Unauthorized, "Invalid or expired code")
	ErrTooManyAttempts   = apperr.New(apperr.TooManyRequests, "Too many failed attempts, request a new code")
	ErrCodeCooldown      = apperr.New(apperr.TooManyRequests, "Code requested too recently")
	ErrInvalidAvatarType = apperr.New(apperr.BadRequest, "Unsupported avatar format")
	ErrAvatarTooLarge    = apperr.New(apperr.BadRequest, "Avatar exceeds 2MB")
	ErrUploadDisabled    = apperr.New(apperr.BadRequest, "Avatar upload is not configured")
)

func errBodyTooLong(max int) error {
	return apperr.New(apperr.BadRequest, fmt.Sprintf("Comment body exceeds %d characters", max))
}

// notFoundAs 记录不存在时替换为业务错误，其余错误按内部错误处理
func notFoundAs(err, replacement error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return replacement
	}
	return apperr.Internal(err)
}

// withTimeout 为存储调用附加超时，d <= 0 时不限制
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/access"
)

var seq int64

func nextSeq() int64 {
	return atomic.AddInt64(&seq, 1)
}

// TestUser 创建测试用户，默认角色 user
func TestUser(t *testing.T, db *gorm.DB, opts ...func(*model.User)) *model.User {
	t.Helper()

	n := nextSeq()
	email := fmt.Sprintf("test_%d_%d@example.com", time.Now().UnixNano(), n)
	user := &model.User{
		Username:      fmt.Sprintf("testuser_%d", n),
		Email:         &email,
		Roles:         model.RoleSet{model.RoleUser},
		EmailVerified: true,
	}

	for _, opt := range opts {
		opt(user)
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	return user
}

// WithUsername 设置用户名
func WithUsername(username string) func(*model.User) {
	return func(u *model.User) {
		u.Username = username
	}
}

// WithEmail 设置邮箱
func WithEmail(email string) func(*model.User) {
	return func(u *model.User) {
		u.Email = &email
	}
}

// WithRoles 设置角色
func WithRoles(roles ...model.Role) func(*model.User) {
	return func(u *model.User) {
		u.Roles = model.RoleSet(roles)
	}
}

// PrincipalOf 用户对应的调用方
func PrincipalOf(u *model.User) *access.Principal {
	return &access.Principal{ID: u.ID, Roles: u.Roles, IsVerified: u.EmailVerified}
}

// TestComment 创建测试顶层评论
func TestComment(t *testing.T, db *gorm.DB, userID int64, contentType model.ContentType, contentID, body string, opts ...func(*model.Comment)) *model.Comment {
	t.Helper()

	comment := &model.Comment{
		UserID:      userID,
		ContentType: contentType,
		ContentID:   contentID,
		Body:        body,
	}

	for _, opt := range opts {
		opt(comment)
	}

	if err := db.Create(comment).Error; err != nil {
		t.Fatalf("Failed to create test comment: %v", err)
	}

	return comment
}

// TestReply 创建测试回复，内容与父评论一致
func TestReply(t *testing.T, db *gorm.DB, userID int64, parent *model.Comment, body string, opts ...func(*model.Comment)) *model.Comment {
	t.Helper()

	parentID := parent.ID
	opts = append([]func(*model.Comment){func(c *model.Comment) {
		c.ParentCommentID = &parentID
	}}, opts...)
	return TestComment(t, db, userID, parent.ContentType, parent.ContentID, body, opts...)
}

// WithCreatedAt 设置创建时间
func WithCreatedAt(at time.Time) func(*model.Comment) {
	return func(c *model.Comment) {
		c.CreatedAt = at
		c.UpdatedAt = at
	}
}

// WithDeleted 创建为已删除
func WithDeleted() func(*model.Comment) {
	return func(c *model.Comment) {
		c.IsDeleted = true
	}
}

// TestReaction 创建测试反应
func TestReaction(t *testing.T, db *gorm.DB, userID, commentID int64, kind model.ReactionKind) *model.CommentReaction {
	t.Helper()

	reaction := &model.CommentReaction{
		UserID:    userID,
		CommentID: commentID,
		Kind:      kind,
	}

	if err := db.Create(reaction).Error; err != nil {
		t.Fatalf("Failed to create test reaction: %v", err)
	}

	return reaction
}

package model

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/guild_server/internal/pkg/idgen"
)

// Comment 评论。软删除后不可变，永不物理删除
type Comment struct {
	ID              int64       `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	ContentID       string      `gorm:"size:128;not null;index:idx_comments_content,priority:2" json:"content_id"`
	ContentType     ContentType `gorm:"size:32;not null;index:idx_comments_content,priority:1" json:"content_type"`
	UserID          int64       `gorm:"not null;index:idx_comments_user_created,priority:1" json:"user_id"`
	ParentCommentID *int64      `gorm:"index" json:"parent_comment_id,omitempty"`
	IsReply         bool        `gorm:"not null;default:false" json:"is_reply"`
	IsDeleted       bool        `gorm:"not null;default:false;index" json:"is_deleted"`
	Body            string      `gorm:"type:text;not null" json:"body"`
	CreatedAt       time.Time   `gorm:"index:idx_comments_user_created,priority:2" json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	// 关联
	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Comment) TableName() string {
	return "comments"
}

// BeforeCreate 分配雪花 ID
func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = idgen.Next()
	}
	c.IsReply = c.ParentCommentID != nil
	return nil
}

// SameContent 是否属于同一内容
func (c *Comment) SameContent(contentID string, contentType ContentType) bool {
	return c.ContentID == contentID && c.ContentType == contentType
}

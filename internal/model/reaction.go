package model

import (
	"time"
)

// CommentReaction 评论反应，每个用户对每条评论至多一条
type CommentReaction struct {
	ID        int64        `gorm:"primaryKey" json:"id"`
	CommentID int64        `gorm:"not null;uniqueIndex:idx_reaction_comment_user,priority:1" json:"comment_id,string"`
	UserID    int64        `gorm:"not null;uniqueIndex:idx_reaction_comment_user,priority:2" json:"user_id"`
	Kind      ReactionKind `gorm:"size:20;not null" json:"kind"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (CommentReaction) TableName() string {
	return "comment_reactions"
}

package dto

// CreateCommentRequest 创建评论请求。content_type 缺失时由权限中间件拒绝
type CreateCommentRequest struct {
	ContentID       string `json:"content_id" binding:"required,content_id"`
	ContentType     string `json:"content_type" binding:"omitempty,content_type"`
	Body            string `json:"body" binding:"required"`
	ParentCommentID string `json:"parent_comment_id,omitempty" binding:"omitempty,numeric"`
}

// UpdateCommentRequest 编辑评论请求
type UpdateCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

// ReactionRequest 添加反应请求
type ReactionRequest struct {
	Kind string `json:"kind" binding:"required,reaction_kind"`
}

// PageQuery 分页参数，缺省与上限在 service 中归一
type PageQuery struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

// ContentQuery 内容维度查询参数
type ContentQuery struct {
	ContentID      string `form:"content_id" binding:"required,content_id"`
	ContentType    string `form:"content_type" binding:"omitempty,content_type"`
	IncludeReplies bool   `form:"include_replies"`
	PageQuery
}

// CommentItem 评论项
type CommentItem struct {
	ID              string         `json:"id"`
	ContentID       string         `json:"content_id"`
	ContentType     string         `json:"content_type"`
	ParentCommentID string         `json:"parent_comment_id,omitempty"`
	IsReply         bool           `json:"is_reply"`
	IsDeleted       bool           `json:"is_deleted"`
	Body            string         `json:"body"`
	BodyHTML        string         `json:"body_html"`
	User            *CommentUser   `json:"user"`
	LikeCount       int64          `json:"like_count"`
	DislikeCount    int64          `json:"dislike_count"`
	ReplyCount      int64          `json:"reply_count"`
	Replies         []*CommentItem `json:"replies,omitempty"`
	CreatedAt       string         `json:"created_at"`
	UpdatedAt       string         `json:"updated_at"`
}

// CommentUser 评论作者
type CommentUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url"`
}

// CommentPage 分页结果
type CommentPage struct {
	Items []*CommentItem `json:"items"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}

// CommentStats 内容维度统计
type CommentStats struct {
	ContentID        string `json:"content_id"`
	ContentType      string `json:"content_type"`
	TotalComments    int64  `json:"total_comments"`
	TopLevelComments int64  `json:"top_level_comments"`
	Replies          int64  `json:"replies"`
	Participants     int64  `json:"participants"`
	Likes            int64  `json:"likes"`
	Dislikes         int64  `json:"dislikes"`
}

// ReactionResult 反应操作后的计数
type ReactionResult struct {
	CommentID    string `json:"comment_id"`
	Kind         string `json:"kind,omitempty"`
	LikeCount    int64  `json:"like_count"`
	DislikeCount int64  `json:"dislike_count"`
}

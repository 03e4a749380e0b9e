package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs3c/guild_server/internal/model"
)

// ReactionCounts 点赞/点踩数
type ReactionCounts struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

func (c *ReactionCounts) add(kind model.ReactionKind, n int64) {
	switch kind {
	case model.ReactionLike:
		c.Likes += n
	case model.ReactionDislike:
		c.Dislikes += n
	}
}

type ReactionRepository struct {
	db *gorm.DB
}

func NewReactionRepository(db *gorm.DB) *ReactionRepository {
	return &ReactionRepository{db: db}
}

// Upsert 写入反应，同一用户对同一评论已有反应时替换类型
func (r *ReactionRepository) Upsert(ctx context.Context, reaction *model.CommentReaction) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "comment_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "updated_at"}),
	}).Create(reaction).Error
}

// Delete 删除用户对评论的反应，返回是否存在
func (r *ReactionRepository) Delete(ctx context.Context, commentID, userID int64) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("comment_id = ? AND user_id = ?", commentID, userID).
		Delete(&model.CommentReaction{})
	return result.RowsAffected > 0, result.Error
}

// Get 获取用户对评论的反应
func (r *ReactionRepository) Get(ctx context.Context, commentID, userID int64) (*model.CommentReaction, error) {
	var reaction model.CommentReaction
	err := r.db.WithContext(ctx).
		Where("comment_id = ? AND user_id = ?", commentID, userID).
		First(&reaction).Error
	if err != nil {
		return nil, err
	}
	return &reaction, nil
}

type reactionCountRow struct {
	CommentID int64
	Kind      string
	Count     int64
}

// CountsByCommentIDs 批量统计反应数
func (r *ReactionRepository) CountsByCommentIDs(ctx context.Context, commentIDs []int64) (map[int64]ReactionCounts, error) {
	counts := make(map[int64]ReactionCounts, len(commentIDs))
	if len(commentIDs) == 0 {
		return counts, nil
	}

	var rows []reactionCountRow
	err := r.db.WithContext(ctx).Model(&model.CommentReaction{}).
		Select("comment_id, kind, COUNT(*) AS count").
		Where("comment_id IN ?", commentIDs).
		Group("comment_id, kind").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		c := counts[row.CommentID]
		c.add(model.ReactionKind(row.Kind), row.Count)
		counts[row.CommentID] = c
	}
	return counts, nil
}

// ContentCounts 某内容下未删除评论的反应合计
func (r *ReactionRepository) ContentCounts(ctx context.Context, contentID string, contentType model.ContentType) (ReactionCounts, error) {
	var rows []struct {
		Kind  string
		Count int64
	}
	err := r.db.WithContext(ctx).Table("comment_reactions AS cr").
		Select("cr.kind AS kind, COUNT(*) AS count").
		Joins("JOIN comments AS c ON c.id = cr.comment_id").
		Where("c.content_type = ? AND c.content_id = ? AND c.is_deleted = ?", contentType, contentID, false).
		Group("cr.kind").
		Scan(&rows).Error
	if err != nil {
		return ReactionCounts{}, err
	}

	var counts ReactionCounts
	for _, row := range rows {
		counts.add(model.ReactionKind(row.Kind), row.Count)
	}
	return counts, nil
}

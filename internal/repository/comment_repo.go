package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/guild_server/internal/model"
)

type CommentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) *CommentRepository {
	return &CommentRepository{db: db}
}

// ContentStats 某内容下未删除评论的统计
type ContentStats struct {
	Total        int64
	TopLevel     int64
	Participants int64
}

func offsetOf(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}

// Create 创建评论
func (r *CommentRepository) Create(ctx context.Context, comment *model.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

// GetByID 根据 ID 获取评论（包含已删除）
func (r *CommentRepository) GetByID(ctx context.Context, id int64) (*model.Comment, error) {
	var comment model.Comment
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&comment).Error
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// GetByIDWithUser 获取评论及作者
func (r *CommentRepository) GetByIDWithUser(ctx context.Context, id int64) (*model.Comment, error) {
	var comment model.Comment
	err := r.db.WithContext(ctx).Preload("User").Where("id = ?", id).First(&comment).Error
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

// UpdateBody 更新正文，已删除的评论不可修改
func (r *CommentRepository) UpdateBody(ctx context.Context, id int64, body string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.Comment{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"body":       body,
			"updated_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SoftDelete 软删除，不级联回复
func (r *CommentRepository) SoftDelete(ctx context.Context, id int64, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&model.Comment{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"updated_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountByUserSince 用户在 since 之后发布且未删除的评论数
func (r *CommentRepository) CountByUserSince(ctx context.Context, userID int64, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Comment{}).
		Where("user_id = ? AND is_deleted = ? AND created_at >= ?", userID, false, since).
		Count(&count).Error
	return count, err
}

// ListByContent 内容下的评论平铺列表，新的在前
func (r *CommentRepository) ListByContent(ctx context.Context, contentID string, contentType model.ContentType, page, pageSize int, includeReplies bool) ([]*model.Comment, int64, error) {
	var comments []*model.Comment
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Comment{}).
		Where("content_type = ? AND content_id = ? AND is_deleted = ?", contentType, contentID, false)
	if !includeReplies {
		query = query.Where("parent_comment_id IS NULL")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("User").
		Order("created_at DESC, id DESC").
		Offset(offsetOf(page, pageSize)).Limit(pageSize).
		Find(&comments).Error
	if err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

// ListThreadRoots 树形视图的顶层评论。已删除的顶层评论仅在仍有未删除回复时返回
func (r *CommentRepository) ListThreadRoots(ctx context.Context, contentID string, contentType model.ContentType, page, pageSize int) ([]*model.Comment, int64, error) {
	var roots []*model.Comment
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Comment{}).
		Where("content_type = ? AND content_id = ? AND parent_comment_id IS NULL", contentType, contentID).
		Where("(is_deleted = ? OR EXISTS (SELECT 1 FROM comments AS r WHERE r.parent_comment_id = comments.id AND r.is_deleted = ?))", false, false)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("User").
		Order("created_at DESC, id DESC").
		Offset(offsetOf(page, pageSize)).Limit(pageSize).
		Find(&roots).Error
	if err != nil {
		return nil, 0, err
	}
	return roots, total, nil
}

// GetRepliesByParentIDs 批量获取未删除的回复，按时间正序
func (r *CommentRepository) GetRepliesByParentIDs(ctx context.Context, parentIDs []int64) ([]*model.Comment, error) {
	if len(parentIDs) == 0 {
		return nil, nil
	}

	var replies []*model.Comment
	err := r.db.WithContext(ctx).Preload("User").
		Where("parent_comment_id IN ? AND is_deleted = ?", parentIDs, false).
		Order("created_at ASC, id ASC").
		Find(&replies).Error
	return replies, err
}

// ListReplies 某评论的回复分页，父评论已删除时仍可列出
func (r *CommentRepository) ListReplies(ctx context.Context, parentID int64, page, pageSize int) ([]*model.Comment, int64, error) {
	var replies []*model.Comment
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Comment{}).
		Where("parent_comment_id = ? AND is_deleted = ?", parentID, false)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("User").
		Order("created_at ASC, id ASC").
		Offset(offsetOf(page, pageSize)).Limit(pageSize).
		Find(&replies).Error
	if err != nil {
		return nil, 0, err
	}
	return replies, total, nil
}

// ListByUser 用户自己的评论，新的在前
func (r *CommentRepository) ListByUser(ctx context.Context, userID int64, page, pageSize int) ([]*model.Comment, int64, error) {
	var comments []*model.Comment
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Comment{}).
		Where("user_id = ? AND is_deleted = ?", userID, false)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("User").
		Order("created_at DESC, id DESC").
		Offset(offsetOf(page, pageSize)).Limit(pageSize).
		Find(&comments).Error
	if err != nil {
		return nil, 0, err
	}
	return comments, total, nil
}

// CountRepliesByParentIDs 批量统计未删除回复数
func (r *CommentRepository) CountRepliesByParentIDs(ctx context.Context, parentIDs []int64) (map[int64]int64, error) {
	counts := make(map[int64]int64, len(parentIDs))
	if len(parentIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ParentCommentID int64
		Count           int64
	}
	err := r.db.WithContext(ctx).Model(&model.Comment{}).
		Select("parent_comment_id, COUNT(*) AS count").
		Where("parent_comment_id IN ? AND is_deleted = ?", parentIDs, false).
		Group("parent_comment_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		counts[row.ParentCommentID] = row.Count
	}
	return counts, nil
}

// ContentStats 内容维度的评论统计
func (r *CommentRepository) ContentStats(ctx context.Context, contentID string, contentType model.ContentType) (*ContentStats, error) {
	var stats ContentStats
	err := r.db.WithContext(ctx).Model(&model.Comment{}).
		Select("COUNT(*) AS total, "+
			"COALESCE(SUM(CASE WHEN parent_comment_id IS NULL THEN 1 ELSE 0 END), 0) AS top_level, "+
			"COUNT(DISTINCT user_id) AS participants").
		Where("content_type = ? AND content_id = ? AND is_deleted = ?", contentType, contentID, false).
		Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

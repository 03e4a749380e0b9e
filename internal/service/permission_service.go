package service

import (
	"context"
	"time"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/pkg/access"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/repository"
)

// PermissionService 依赖存储的权限判定：归属、父评论、频率、评论访问
type PermissionService struct {
	commentRepo *repository.CommentRepository
	policy      *access.PolicyTable
	cfg         config.CommentConfig
	now         func() time.Time
}

func NewPermissionService(commentRepo *repository.CommentRepository, policy *access.PolicyTable, cfg config.CommentConfig) *PermissionService {
	if policy == nil {
		policy = access.DefaultPolicy()
	}
	return &PermissionService{
		commentRepo: commentRepo,
		policy:      policy,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Policy 访问策略表
func (s *PermissionService) Policy() *access.PolicyTable {
	return s.policy
}

func (s *PermissionService) load(ctx context.Context, id int64) (*model.Comment, error) {
	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout())
	defer cancel()

	return s.commentRepo.GetByID(ctx, id)
}

// LoadLiveComment 加载未删除的评论，已删除与不存在不做区分
func (s *PermissionService) LoadLiveComment(ctx context.Context, id int64) (*model.Comment, error) {
	comment, err := s.load(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrCommentNotFound)
	}
	if comment.IsDeleted {
		return nil, ErrCommentNotFound
	}
	return comment, nil
}

// CanModify 是否为作者或管理员
func CanModify(p *access.Principal, comment *model.Comment) error {
	if err := access.RequirePrincipal(p); err != nil {
		return err
	}
	if p.Owns(comment.UserID) || p.IsAdmin() {
		return nil
	}
	return ErrNotOwner
}

// CheckOwnership 作者或管理员才能修改、删除
func (s *PermissionService) CheckOwnership(ctx context.Context, p *access.Principal, id int64) (*model.Comment, error) {
	if err := access.RequirePrincipal(p); err != nil {
		return nil, err
	}
	comment, err := s.LoadLiveComment(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanModify(p, comment); err != nil {
		return nil, err
	}
	return comment, nil
}

// ValidateParent 校验父评论：存在、未删除、同一内容、本身不是回复。无父评论时返回 nil, nil
func (s *PermissionService) ValidateParent(ctx context.Context, parentID *int64, contentID string, contentType model.ContentType) (*model.Comment, error) {
	if parentID == nil {
		return nil, nil
	}

	parent, err := s.load(ctx, *parentID)
	if err != nil {
		return nil, notFoundAs(err, ErrParentNotFound)
	}
	if err := CheckParent(parent, contentID, contentType); err != nil {
		return nil, err
	}
	return parent, nil
}

// CheckParent 已加载父评论的链接校验
func CheckParent(parent *model.Comment, contentID string, contentType model.ContentType) error {
	if parent.IsDeleted {
		return ErrParentNotFound
	}
	if !parent.SameContent(contentID, contentType) {
		return ErrParentMismatch
	}
	if parent.IsReply {
		return ErrReplyToReply
	}
	return nil
}

// CheckRateLimit 统计窗口内未删除的评论数，达到阈值即拒绝；管理员不受限
func (s *PermissionService) CheckRateLimit(ctx context.Context, p *access.Principal) error {
	if err := access.RequirePrincipal(p); err != nil {
		return err
	}
	if p.IsAdmin() {
		return nil
	}

	ctx, cancel := withTimeout(ctx, s.cfg.StoreTimeout())
	defer cancel()

	since := s.now().Add(-s.cfg.RateLimitWindow())
	count, err := s.commentRepo.CountByUserSince(ctx, p.ID, since)
	if err != nil {
		return apperr.Internal(err)
	}
	if count >= int64(s.cfg.RateLimitThreshold) {
		return ErrRateLimited
	}
	return nil
}

// CheckCommentAccess 按评论自身的内容类型做角色校验。allowDeleted 用于列出已删除父评论下的回复
func (s *PermissionService) CheckCommentAccess(ctx context.Context, p *access.Principal, id int64, allowDeleted bool) (*model.Comment, error) {
	if err := access.RequirePrincipal(p); err != nil {
		return nil, err
	}

	comment, err := s.load(ctx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrCommentNotFound)
	}
	if comment.IsDeleted && !allowDeleted {
		return nil, ErrCommentNotFound
	}
	if err := s.policy.Authorize(p, comment.ContentType); err != nil {
		return nil, err
	}
	return comment, nil
}

package service

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/model/dto"
	"github.com/qs3c/guild_server/internal/pkg/access"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/cache"
	"github.com/qs3c/guild_server/internal/pkg/logging"
	"github.com/qs3c/guild_server/internal/pkg/markdown"
	"github.com/qs3c/guild_server/internal/pkg/pubsub"
	"github.com/qs3c/guild_server/internal/pkg/queue"
	"github.com/qs3c/guild_server/internal/repository"
)

// 分页缺省值与上限
const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// DeletedPlaceholder 已删除顶层评论在树形视图中的正文
const DeletedPlaceholder = "[deleted]"

// EventPublisher 评论事件发布
type EventPublisher interface {
	PublishCommentEvent(ctx context.Context, evt *pubsub.CommentEvent) error
}

// JobEnqueuer 异步任务入队
type JobEnqueuer interface {
	Push(ctx context.Context, job *queue.Job) error
}

// CreateCommentInput 创建评论参数。Parent 由权限链预先加载时可直接传入
type CreateCommentInput struct {
	ContentID       string
	ContentType     model.ContentType
	Body            string
	ParentCommentID *int64
	Parent          *model.Comment
	// RateChecked 为 true 表示频率限制已在权限链中检查过
	RateChecked bool
}

type CommentService struct {
	commentRepo  *repository.CommentRepository
	reactionRepo *repository.ReactionRepository
	permissions  *PermissionService
	cache        *CommentCache
	publisher    EventPublisher
	jobs         JobEnqueuer
	cfg          *config.Config
	log          zerolog.Logger
}

func NewCommentService(
	commentRepo *repository.CommentRepository,
	reactionRepo *repository.ReactionRepository,
	permissions *PermissionService,
	commentCache *CommentCache,
	publisher EventPublisher,
	jobs JobEnqueuer,
	cfg *config.Config,
) *CommentService {
	return &CommentService{
		commentRepo:  commentRepo,
		reactionRepo: reactionRepo,
		permissions:  permissions,
		cache:        commentCache,
		publisher:    publisher,
		jobs:         jobs,
		cfg:          cfg,
		log:          logging.WithComponent("comment_service"),
	}
}

// NormalizePage 归一分页参数
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = DefaultPage
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return page, limit
}

func (s *CommentService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return withTimeout(ctx, s.cfg.Comment.StoreTimeout())
}

func (s *CommentService) validateBody(body string) (string, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return "", ErrEmptyBody
	}
	if max := s.cfg.Comment.MaxBodyLength; max > 0 && utf8.RuneCountInString(body) > max {
		return "", errBodyTooLong(max)
	}
	return body, nil
}

// Create 创建评论或回复
func (s *CommentService) Create(ctx context.Context, p *access.Principal, in CreateCommentInput) (*dto.CommentItem, error) {
	if err := s.permissions.Policy().Authorize(p, in.ContentType); err != nil {
		return nil, err
	}

	body, err := s.validateBody(in.Body)
	if err != nil {
		return nil, err
	}

	parent := in.Parent
	if parent != nil {
		if err := CheckParent(parent, in.ContentID, in.ContentType); err != nil {
			return nil, err
		}
	} else if parent, err = s.permissions.ValidateParent(ctx, in.ParentCommentID, in.ContentID, in.ContentType); err != nil {
		return nil, err
	}

	if !in.RateChecked {
		if err := s.permissions.CheckRateLimit(ctx, p); err != nil {
			return nil, err
		}
	}

	comment := &model.Comment{
		ContentID:   in.ContentID,
		ContentType: in.ContentType,
		UserID:      p.ID,
		Body:        body,
	}
	if parent != nil {
		parentID := parent.ID
		comment.ParentCommentID = &parentID
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.commentRepo.Create(storeCtx, comment)
	cancel()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	s.invalidateFor(ctx, comment, p.ID)

	evt := &pubsub.CommentEvent{
		Type:        pubsub.EventCommentCreated,
		CommentID:   comment.ID,
		ContentID:   comment.ContentID,
		ContentType: string(comment.ContentType),
		ActorID:     p.ID,
	}
	if parent != nil {
		evt.ParentCommentID = parent.ID
		evt.ParentOwnerID = parent.UserID
		if parent.UserID != p.ID {
			s.enqueueReplyNotification(ctx, comment, parent)
		}
	}
	s.publish(ctx, evt)

	logging.Ctx(ctx).Info().
		Int64("comment_id", comment.ID).
		Int64("user_id", p.ID).
		Str("content_type", string(comment.ContentType)).
		Str("content_id", comment.ContentID).
		Bool("is_reply", comment.IsReply).
		Msg("comment created")

	return s.loadItem(ctx, comment.ID)
}

// Update 编辑评论正文
func (s *CommentService) Update(ctx context.Context, p *access.Principal, id int64, body string) (*dto.CommentItem, error) {
	comment, err := s.permissions.CheckOwnership(ctx, p, id)
	if err != nil {
		return nil, err
	}
	return s.UpdateLoaded(ctx, p, comment, body)
}

// UpdateLoaded 编辑已由权限链加载的评论
func (s *CommentService) UpdateLoaded(ctx context.Context, p *access.Principal, comment *model.Comment, body string) (*dto.CommentItem, error) {
	if comment.IsDeleted {
		return nil, ErrCommentNotFound
	}
	if err := CanModify(p, comment); err != nil {
		return nil, err
	}

	body, err := s.validateBody(body)
	if err != nil {
		return nil, err
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.commentRepo.UpdateBody(storeCtx, comment.ID, body, time.Now())
	cancel()
	if err != nil {
		return nil, notFoundAs(err, ErrCommentNotFound)
	}

	s.invalidateFor(ctx, comment, p.ID)
	s.publish(ctx, s.eventOf(pubsub.EventCommentUpdated, comment, p.ID))

	return s.loadItem(ctx, comment.ID)
}

// Delete 软删除评论，不级联删除回复
func (s *CommentService) Delete(ctx context.Context, p *access.Principal, id int64) error {
	comment, err := s.permissions.CheckOwnership(ctx, p, id)
	if err != nil {
		return err
	}
	return s.DeleteLoaded(ctx, p, comment)
}

// DeleteLoaded 软删除已由权限链加载的评论
func (s *CommentService) DeleteLoaded(ctx context.Context, p *access.Principal, comment *model.Comment) error {
	if comment.IsDeleted {
		return ErrCommentNotFound
	}
	if err := CanModify(p, comment); err != nil {
		return err
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err := s.commentRepo.SoftDelete(storeCtx, comment.ID, time.Now())
	cancel()
	if err != nil {
		return notFoundAs(err, ErrCommentNotFound)
	}

	s.invalidateFor(ctx, comment, p.ID)
	s.publish(ctx, s.eventOf(pubsub.EventCommentDeleted, comment, p.ID))

	logging.Ctx(ctx).Info().
		Int64("comment_id", comment.ID).
		Int64("actor_id", p.ID).
		Bool("by_admin", !p.Owns(comment.UserID)).
		Msg("comment deleted")
	return nil
}

// AddReaction 添加或替换反应
func (s *CommentService) AddReaction(ctx context.Context, p *access.Principal, id int64, kind model.ReactionKind) (*dto.ReactionResult, error) {
	comment, err := s.permissions.CheckCommentAccess(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	return s.AddReactionLoaded(ctx, p, comment, kind)
}

// AddReactionLoaded 对已由权限链加载的评论添加反应
func (s *CommentService) AddReactionLoaded(ctx context.Context, p *access.Principal, comment *model.Comment, kind model.ReactionKind) (*dto.ReactionResult, error) {
	if err := s.checkReactable(p, comment); err != nil {
		return nil, err
	}
	if _, err := model.ParseReactionKind(string(kind)); err != nil {
		return nil, ErrInvalidReaction
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err := s.reactionRepo.Upsert(storeCtx, &model.CommentReaction{
		CommentID: comment.ID,
		UserID:    p.ID,
		Kind:      kind,
	})
	cancel()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	return s.afterReaction(ctx, p, comment, string(kind))
}

// RemoveReaction 移除自己的反应，没有反应时同样成功
func (s *CommentService) RemoveReaction(ctx context.Context, p *access.Principal, id int64) (*dto.ReactionResult, error) {
	comment, err := s.permissions.CheckCommentAccess(ctx, p, id, false)
	if err != nil {
		return nil, err
	}
	return s.RemoveReactionLoaded(ctx, p, comment)
}

// RemoveReactionLoaded 对已由权限链加载的评论移除反应
func (s *CommentService) RemoveReactionLoaded(ctx context.Context, p *access.Principal, comment *model.Comment) (*dto.ReactionResult, error) {
	if err := s.checkReactable(p, comment); err != nil {
		return nil, err
	}

	storeCtx, cancel := s.storeCtx(ctx)
	_, err := s.reactionRepo.Delete(storeCtx, comment.ID, p.ID)
	cancel()
	if err != nil {
		return nil, apperr.Internal(err)
	}

	return s.afterReaction(ctx, p, comment, "")
}

func (s *CommentService) checkReactable(p *access.Principal, comment *model.Comment) error {
	if err := access.RequirePrincipal(p); err != nil {
		return err
	}
	if comment.IsDeleted {
		return ErrCommentNotFound
	}
	return s.permissions.Policy().Authorize(p, comment.ContentType)
}

func (s *CommentService) afterReaction(ctx context.Context, p *access.Principal, comment *model.Comment, kind string) (*dto.ReactionResult, error) {
	// 评论项携带反应计数，因此除统计外还需失效列表与单条缓存
	s.cache.InvalidateComment(ctx, comment.ID)
	s.cache.InvalidateContent(ctx, comment.ContentType, comment.ContentID)
	s.cache.InvalidateUser(ctx, comment.UserID)
	if p.ID != comment.UserID {
		s.cache.InvalidateUser(ctx, p.ID)
	}
	if comment.ParentCommentID != nil {
		s.cache.InvalidateReplies(ctx, *comment.ParentCommentID)
	}
	s.publish(ctx, s.eventOf(pubsub.EventReactionChanged, comment, p.ID))

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	counts, err := s.reactionRepo.CountsByCommentIDs(storeCtx, []int64{comment.ID})
	if err != nil {
		return nil, apperr.Internal(err)
	}
	c := counts[comment.ID]
	return &dto.ReactionResult{
		CommentID:    strconv.FormatInt(comment.ID, 10),
		Kind:         kind,
		LikeCount:    c.Likes,
		DislikeCount: c.Dislikes,
	}, nil
}

// Get 获取单条评论，已删除视为不存在
func (s *CommentService) Get(ctx context.Context, id int64) (*dto.CommentItem, error) {
	key := cache.Key{Op: cache.OpItem, CommentID: id}
	return remember(ctx, s.cache, key, func(ctx context.Context) (*dto.CommentItem, error) {
		return s.loadItem(ctx, id)
	})
}

// GetForPrincipal 读取单条评论并按其内容类型做角色校验。
// 校验基于缓存的评论项，命中时不访问存储；删除会失效该缓存，因此已删除评论仍为不存在
func (s *CommentService) GetForPrincipal(ctx context.Context, p *access.Principal, id int64) (*dto.CommentItem, error) {
	if err := access.RequirePrincipal(p); err != nil {
		return nil, err
	}
	item, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.permissions.Policy().Authorize(p, model.ContentType(item.ContentType)); err != nil {
		return nil, err
	}
	return item, nil
}

// ListByContent 内容下的平铺列表
func (s *CommentService) ListByContent(ctx context.Context, contentType model.ContentType, contentID string, page, limit int, includeReplies bool) (*dto.CommentPage, error) {
	page, limit = NormalizePage(page, limit)
	key := cache.Key{
		Op:             cache.OpList,
		ContentType:    string(contentType),
		ContentID:      contentID,
		Page:           page,
		Limit:          limit,
		IncludeReplies: includeReplies,
	}

	return remember(ctx, s.cache, key, func(ctx context.Context) (*dto.CommentPage, error) {
		storeCtx, cancel := s.storeCtx(ctx)
		defer cancel()

		comments, total, err := s.commentRepo.ListByContent(storeCtx, contentID, contentType, page, limit, includeReplies)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		items, err := s.buildItems(storeCtx, comments)
		if err != nil {
			return nil, err
		}
		return &dto.CommentPage{Items: items, Total: total, Page: page, Limit: limit}, nil
	})
}

// ListThreaded 树形视图：顶层评论按时间倒序，直接回复按时间正序挂在其下
func (s *CommentService) ListThreaded(ctx context.Context, contentType model.ContentType, contentID string, page, limit int) (*dto.CommentPage, error) {
	page, limit = NormalizePage(page, limit)
	key := cache.Key{
		Op:          cache.OpThreaded,
		ContentType: string(contentType),
		ContentID:   contentID,
		Page:        page,
		Limit:       limit,
	}

	return remember(ctx, s.cache, key, func(ctx context.Context) (*dto.CommentPage, error) {
		storeCtx, cancel := s.storeCtx(ctx)
		defer cancel()

		roots, total, err := s.commentRepo.ListThreadRoots(storeCtx, contentID, contentType, page, limit)
		if err != nil {
			return nil, apperr.Internal(err)
		}

		rootIDs := make([]int64, len(roots))
		for i, r := range roots {
			rootIDs[i] = r.ID
		}
		replies, err := s.commentRepo.GetRepliesByParentIDs(storeCtx, rootIDs)
		if err != nil {
			return nil, apperr.Internal(err)
		}

		all := make([]*model.Comment, 0, len(roots)+len(replies))
		all = append(all, roots...)
		all = append(all, replies...)
		items, err := s.buildItems(storeCtx, all)
		if err != nil {
			return nil, err
		}

		rootItems := items[:len(roots)]
		byID := make(map[int64]*dto.CommentItem, len(roots))
		for i, r := range roots {
			byID[r.ID] = rootItems[i]
		}
		for i, r := range replies {
			if root, ok := byID[*r.ParentCommentID]; ok {
				root.Replies = append(root.Replies, items[len(roots)+i])
			}
		}

		return &dto.CommentPage{Items: rootItems, Total: total, Page: page, Limit: limit}, nil
	})
}

// ListReplies 某评论的回复。父评论已删除时回复仍可列出
func (s *CommentService) ListReplies(ctx context.Context, parentID int64, page, limit int) (*dto.CommentPage, error) {
	page, limit = NormalizePage(page, limit)
	key := cache.Key{Op: cache.OpReplies, CommentID: parentID, Page: page, Limit: limit}

	return remember(ctx, s.cache, key, func(ctx context.Context) (*dto.CommentPage, error) {
		storeCtx, cancel := s.storeCtx(ctx)
		defer cancel()

		replies, total, err := s.commentRepo.ListReplies(storeCtx, parentID, page, limit)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		items, err := s.buildItems(storeCtx, replies)
		if err != nil {
			return nil, err
		}
		return &dto.CommentPage{Items: items, Total: total, Page: page, Limit: limit}, nil
	})
}

// ListByUser 用户自己的评论
func (s *CommentService) ListByUser(ctx context.Context, userID int64, page, limit int) (*dto.CommentPage, error) {
	page, limit = NormalizePage(page, limit)
	key := cache.Key{Op: cache.OpUser, UserID: userID, Page: page, Limit: limit}

	return remember(ctx, s.cache, key, func(ctx context.Context) (*dto.CommentPage, error) {
		storeCtx, cancel := s.storeCtx(ctx)
		defer cancel()

		comments, total, err := s.commentRepo.ListByUser(storeCtx, userID, page, limit)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		items, err := s.buildItems(storeCtx, comments)
		if err != nil {
			return nil, err
		}
		return &dto.CommentPage{Items: items, Total: total, Page: page, Limit: limit}, nil
	})
}

// GetStats 内容维度统计
func (s *CommentService) GetStats(ctx context.Context, contentType model.ContentType, contentID string) (*dto.CommentStats, error) {
	key := cache.Key{Op: cache.OpStats, ContentType: string(contentType), ContentID: contentID}

	return remember(ctx, s.cache, key, func(ctx context.Context) (*dto.CommentStats, error) {
		storeCtx, cancel := s.storeCtx(ctx)
		defer cancel()

		stats, err := s.commentRepo.ContentStats(storeCtx, contentID, contentType)
		if err != nil {
			return nil, apperr.Internal(err)
		}
		reactions, err := s.reactionRepo.ContentCounts(storeCtx, contentID, contentType)
		if err != nil {
			return nil, apperr.Internal(err)
		}

		return &dto.CommentStats{
			ContentID:        contentID,
			ContentType:      string(contentType),
			TotalComments:    stats.Total,
			TopLevelComments: stats.TopLevel,
			Replies:          stats.Total - stats.TopLevel,
			Participants:     stats.Participants,
			Likes:            reactions.Likes,
			Dislikes:         reactions.Dislikes,
		}, nil
	})
}

// InvalidateAllCache 管理员清空评论缓存
func (s *CommentService) InvalidateAllCache(ctx context.Context, p *access.Principal) (int64, error) {
	if err := access.RequirePrincipal(p); err != nil {
		return 0, err
	}
	if !p.IsAdmin() {
		return 0, ErrAdminOnly
	}

	n, err := s.cache.InvalidateAll(ctx)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	logging.Ctx(ctx).Warn().Int64("actor_id", p.ID).Int64("keys", n).Msg("comment cache flushed by admin")
	return n, nil
}

// invalidateFor 评论写操作后的缓存失效范围
func (s *CommentService) invalidateFor(ctx context.Context, comment *model.Comment, actorID int64) {
	s.cache.InvalidateComment(ctx, comment.ID)
	s.cache.InvalidateContent(ctx, comment.ContentType, comment.ContentID)
	s.cache.InvalidateUser(ctx, comment.UserID)
	if actorID != comment.UserID {
		s.cache.InvalidateUser(ctx, actorID)
	}
	if comment.ParentCommentID != nil {
		s.cache.InvalidateComment(ctx, *comment.ParentCommentID)
		s.cache.InvalidateReplies(ctx, *comment.ParentCommentID)
	}
}

func (s *CommentService) eventOf(typ string, comment *model.Comment, actorID int64) *pubsub.CommentEvent {
	evt := &pubsub.CommentEvent{
		Type:        typ,
		CommentID:   comment.ID,
		ContentID:   comment.ContentID,
		ContentType: string(comment.ContentType),
		ActorID:     actorID,
	}
	if comment.ParentCommentID != nil {
		evt.ParentCommentID = *comment.ParentCommentID
	}
	return evt
}

func (s *CommentService) publish(ctx context.Context, evt *pubsub.CommentEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCommentEvent(context.WithoutCancel(ctx), evt); err != nil {
		s.log.Warn().Err(err).Str("type", evt.Type).Int64("comment_id", evt.CommentID).Msg("publish comment event failed")
	}
}

func (s *CommentService) enqueueReplyNotification(ctx context.Context, reply, parent *model.Comment) {
	if s.jobs == nil {
		return
	}
	job := &queue.Job{
		Type:            queue.JobReplyNotification,
		RecipientID:     parent.UserID,
		ActorID:         reply.UserID,
		CommentID:       reply.ID,
		ParentCommentID: parent.ID,
		ContentID:       reply.ContentID,
		ContentType:     string(reply.ContentType),
	}
	if err := s.jobs.Push(context.WithoutCancel(ctx), job); err != nil {
		s.log.Warn().Err(err).Int64("comment_id", reply.ID).Msg("enqueue reply notification failed")
	}
}

// loadItem 读取单条未删除评论并组装计数
func (s *CommentService) loadItem(ctx context.Context, id int64) (*dto.CommentItem, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	comment, err := s.commentRepo.GetByIDWithUser(storeCtx, id)
	if err != nil {
		return nil, notFoundAs(err, ErrCommentNotFound)
	}
	if comment.IsDeleted {
		return nil, ErrCommentNotFound
	}

	items, err := s.buildItems(storeCtx, []*model.Comment{comment})
	if err != nil {
		return nil, err
	}
	return items[0], nil
}

// buildItems 批量补齐反应计数与回复数
func (s *CommentService) buildItems(ctx context.Context, comments []*model.Comment) ([]*dto.CommentItem, error) {
	items := make([]*dto.CommentItem, 0, len(comments))
	if len(comments) == 0 {
		return items, nil
	}

	ids := make([]int64, 0, len(comments))
	var topLevel []int64
	for _, c := range comments {
		ids = append(ids, c.ID)
		if c.ParentCommentID == nil {
			topLevel = append(topLevel, c.ID)
		}
	}

	reactions, err := s.reactionRepo.CountsByCommentIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	replyCounts, err := s.commentRepo.CountRepliesByParentIDs(ctx, topLevel)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	for _, c := range comments {
		item := buildCommentItem(c)
		counts := reactions[c.ID]
		item.LikeCount = counts.Likes
		item.DislikeCount = counts.Dislikes
		item.ReplyCount = replyCounts[c.ID]
		items = append(items, item)
	}
	return items, nil
}

func buildCommentItem(c *model.Comment) *dto.CommentItem {
	item := &dto.CommentItem{
		ID:          strconv.FormatInt(c.ID, 10),
		ContentID:   c.ContentID,
		ContentType: string(c.ContentType),
		IsReply:     c.IsReply,
		IsDeleted:   c.IsDeleted,
		CreatedAt:   c.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   c.UpdatedAt.Format(time.RFC3339),
	}
	if c.ParentCommentID != nil {
		item.ParentCommentID = strconv.FormatInt(*c.ParentCommentID, 10)
	}

	// 已删除的顶层评论只作为占位出现，不暴露正文与作者
	if c.IsDeleted {
		item.Body = DeletedPlaceholder
		return item
	}

	item.Body = c.Body
	item.BodyHTML = markdown.Render(c.Body)
	if c.User != nil {
		item.User = &dto.CommentUser{
			ID:        c.User.ID,
			Username:  c.User.Username,
			AvatarURL: c.User.AvatarURL,
		}
	}
	return item
}

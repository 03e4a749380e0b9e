package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/qs3c/guild_server/internal/api/middleware"
	"github.com/qs3c/guild_server/internal/model"
	"github.com/qs3c/guild_server/internal/model/dto"
	"github.com/qs3c/guild_server/internal/pkg/access"
	"github.com/qs3c/guild_server/internal/pkg/apperr"
	"github.com/qs3c/guild_server/internal/pkg/response"
	"github.com/qs3c/guild_server/internal/service"
)

type CommentHandler struct {
	commentService *service.CommentService
}

func NewCommentHandler(commentService *service.CommentService) *CommentHandler {
	return &CommentHandler{
		commentService: commentService,
	}
}

// contentScope 读取权限链校验过的内容类型与查询参数
func contentScope(c *gin.Context) (model.ContentType, *dto.ContentQuery, bool) {
	var q dto.ContentQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return "", nil, false
	}
	ct, ok := middleware.GetContentType(c)
	if !ok {
		response.FromError(c, access.ErrMissingContentType)
		return "", nil, false
	}
	return ct, &q, true
}

// List 内容下的评论列表，最新在前
// GET /api/v1/comments?content_id=&content_type=&page=&limit=&include_replies=
func (h *CommentHandler) List(c *gin.Context) {
	ct, q, ok := contentScope(c)
	if !ok {
		return
	}

	page, err := h.commentService.ListByContent(c.Request.Context(), ct, q.ContentID, q.Page, q.Limit, q.IncludeReplies)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, page)
}

// Threaded 顶层评论及其回复
// GET /api/v1/comments/threaded?content_id=&content_type=&page=&limit=
func (h *CommentHandler) Threaded(c *gin.Context) {
	ct, q, ok := contentScope(c)
	if !ok {
		return
	}

	page, err := h.commentService.ListThreaded(c.Request.Context(), ct, q.ContentID, q.Page, q.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, page)
}

// Stats 内容维度统计
// GET /api/v1/comments/stats?content_id=&content_type=
func (h *CommentHandler) Stats(c *gin.Context) {
	ct, q, ok := contentScope(c)
	if !ok {
		return
	}

	stats, err := h.commentService.GetStats(c.Request.Context(), ct, q.ContentID)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, stats)
}

// Mine 当前用户的评论
// GET /api/v1/comments/mine?page=&limit=
func (h *CommentHandler) Mine(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	page, err := h.commentService.ListByUser(c.Request.Context(), userID, q.Page, q.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, page)
}

// Create 发表评论或回复
// POST /api/v1/comments
func (h *CommentHandler) Create(c *gin.Context) {
	var req dto.CreateCommentRequest
	// 权限链已读取过 body，这里从缓存的 body 再次绑定
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		bindError(c, err)
		return
	}

	ct, ok := middleware.GetContentType(c)
	if !ok {
		parsed, err := model.ParseContentType(req.ContentType)
		if err != nil {
			response.FromError(c, access.ErrMissingContentType)
			return
		}
		ct = parsed
	}

	in := service.CreateCommentInput{
		ContentID:   req.ContentID,
		ContentType: ct,
		Body:        req.Body,
		Parent:      middleware.GetParent(c),
		RateChecked: middleware.RateChecked(c),
	}
	if req.ParentCommentID != "" && in.Parent == nil {
		parentID, err := strconv.ParseInt(req.ParentCommentID, 10, 64)
		if err != nil {
			response.FromError(c, apperr.New(apperr.BadRequest, "Invalid parent_comment_id"))
			return
		}
		in.ParentCommentID = &parentID
	}

	item, err := h.commentService.Create(c.Request.Context(), middleware.GetPrincipal(c), in)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "评论成功", item)
}

// Get 单条评论
// GET /api/v1/comments/:id
func (h *CommentHandler) Get(c *gin.Context) {
	id, err := commentID(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	item, err := h.commentService.GetForPrincipal(c.Request.Context(), middleware.GetPrincipal(c), id)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, item)
}

// Replies 评论的回复，最早在前。父评论已删除时仍可列出
// GET /api/v1/comments/:id/replies?page=&limit=
func (h *CommentHandler) Replies(c *gin.Context) {
	id, err := commentID(c)
	if err != nil {
		response.FromError(c, err)
		return
	}

	var q dto.PageQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		bindError(c, err)
		return
	}

	page, err := h.commentService.ListReplies(c.Request.Context(), id, q.Page, q.Limit)
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, page)
}

// Update 编辑评论
// PUT /api/v1/comments/:id
func (h *CommentHandler) Update(c *gin.Context) {
	var req dto.UpdateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	var (
		item *dto.CommentItem
		err  error
	)
	p := middleware.GetPrincipal(c)
	if comment := middleware.GetComment(c); comment != nil {
		item, err = h.commentService.UpdateLoaded(c.Request.Context(), p, comment, req.Body)
	} else {
		var id int64
		if id, err = commentID(c); err == nil {
			item, err = h.commentService.Update(c.Request.Context(), p, id, req.Body)
		}
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "更新成功", item)
}

// Delete 软删除评论，回复保留
// DELETE /api/v1/comments/:id
func (h *CommentHandler) Delete(c *gin.Context) {
	var err error
	p := middleware.GetPrincipal(c)
	if comment := middleware.GetComment(c); comment != nil {
		err = h.commentService.DeleteLoaded(c.Request.Context(), p, comment)
	} else {
		var id int64
		if id, err = commentID(c); err == nil {
			err = h.commentService.Delete(c.Request.Context(), p, id)
		}
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.SuccessWithMessage(c, "删除成功", nil)
}

// AddReaction 添加或替换反应
// POST /api/v1/comments/:id/reactions
func (h *CommentHandler) AddReaction(c *gin.Context) {
	var req dto.ReactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	kind, err := model.ParseReactionKind(req.Kind)
	if err != nil {
		response.FromError(c, service.ErrInvalidReaction)
		return
	}

	var result *dto.ReactionResult
	p := middleware.GetPrincipal(c)
	if comment := middleware.GetComment(c); comment != nil {
		result, err = h.commentService.AddReactionLoaded(c.Request.Context(), p, comment, kind)
	} else {
		var id int64
		if id, err = commentID(c); err == nil {
			result, err = h.commentService.AddReaction(c.Request.Context(), p, id, kind)
		}
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

// RemoveReaction 撤销反应，未反应过也返回成功
// DELETE /api/v1/comments/:id/reactions
func (h *CommentHandler) RemoveReaction(c *gin.Context) {
	var (
		result *dto.ReactionResult
		err    error
	)
	p := middleware.GetPrincipal(c)
	if comment := middleware.GetComment(c); comment != nil {
		result, err = h.commentService.RemoveReactionLoaded(c.Request.Context(), p, comment)
	} else {
		var id int64
		if id, err = commentID(c); err == nil {
			result, err = h.commentService.RemoveReaction(c.Request.Context(), p, id)
		}
	}
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, result)
}

func commentID(c *gin.Context) (int64, error) {
	return middleware.ParseIDParam(c, "id")
}

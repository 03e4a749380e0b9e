package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/api/handler"
	"github.com/qs3c/guild_server/internal/api/middleware"
	"github.com/qs3c/guild_server/internal/service"
)

type Router struct {
	authHandler      *handler.AuthHandler
	userHandler      *handler.UserHandler
	commentHandler   *handler.CommentHandler
	adminHandler     *handler.AdminHandler
	websocketHandler *handler.WebSocketHandler
	permissions      *service.PermissionService
	cfg              *config.Config
}

func NewRouter(
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
	commentHandler *handler.CommentHandler,
	adminHandler *handler.AdminHandler,
	websocketHandler *handler.WebSocketHandler,
	permissions *service.PermissionService,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:      authHandler,
		userHandler:      userHandler,
		commentHandler:   commentHandler,
		adminHandler:     adminHandler,
		websocketHandler: websocketHandler,
		permissions:      permissions,
		cfg:              cfg,
	}
}

func (r *Router) Setup() *gin.Engine {
	if r.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler.RegisterValidators()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(middleware.AccessLog())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.Metrics())
	engine.Use(middleware.CORS(r.cfg.CORS))

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	policy := r.permissions.Policy()
	perms := r.permissions

	api := engine.Group("/api/v1")
	{
		// WebSocket，令牌在查询参数中
		api.GET("/ws", r.websocketHandler.Handle)

		// 公开接口 - 邮箱验证码登录
		codeLimiter := middleware.NewIPRateLimiter(r.cfg.Auth.CodeRequestsPerMinute, r.cfg.Auth.CodeRequestsPerMinute)
		verifyLimiter := middleware.NewIPRateLimiter(r.cfg.Auth.VerifyRequestsPerMinute, r.cfg.Auth.VerifyRequestsPerMinute)
		auth := api.Group("/auth")
		{
			auth.POST("/code", middleware.IPRateLimit(codeLimiter), r.authHandler.SendCode)
			auth.POST("/verify", middleware.IPRateLimit(verifyLimiter), r.authHandler.Verify)
		}

		// 需要认证的接口
		authenticated := api.Group("")
		authenticated.Use(middleware.Auth(r.cfg.JWT.Secret))
		{
			// 用户
			user := authenticated.Group("/user")
			{
				user.GET("/profile", r.userHandler.GetProfile)
				user.PUT("/profile", r.userHandler.UpdateProfile)
				user.POST("/avatar", r.userHandler.UploadAvatar)
			}

			// 评论：每条路由按固定顺序组合权限链
			comments := authenticated.Group("/comments")
			comments.Use(middleware.RequireAuth())
			{
				byContent := []gin.HandlerFunc{
					middleware.RequireContentType(policy, middleware.FromQuery),
					middleware.RequireContentRole(policy),
				}
				comments.GET("", append(byContent, r.commentHandler.List)...)
				comments.GET("/threaded", append(byContent, r.commentHandler.Threaded)...)
				comments.GET("/stats", append(byContent, r.commentHandler.Stats)...)
				comments.GET("/mine", r.commentHandler.Mine)

				comments.POST("",
					middleware.RequireContentType(policy, middleware.FromBody),
					middleware.RequireContentRole(policy),
					middleware.ValidateParent(perms),
					middleware.CommentRateLimit(perms),
					r.commentHandler.Create,
				)

				// 单条读取的角色校验在 service 中基于缓存完成
				comments.GET("/:id", r.commentHandler.Get)
				comments.GET("/:id/replies", middleware.RequireCommentAccess(perms, true), r.commentHandler.Replies)
				comments.PUT("/:id", middleware.RequireOwnership(perms), r.commentHandler.Update)
				comments.DELETE("/:id", middleware.RequireOwnership(perms), r.commentHandler.Delete)
				comments.POST("/:id/reactions", middleware.RequireCommentAccess(perms, false), r.commentHandler.AddReaction)
				comments.DELETE("/:id/reactions", middleware.RequireCommentAccess(perms, false), r.commentHandler.RemoveReaction)
			}

			// 管理员
			admin := authenticated.Group("/admin")
			admin.Use(middleware.RequireAdmin())
			{
				admin.PUT("/users/:id/roles", r.adminHandler.SetRoles)
				admin.POST("/cache/flush", r.adminHandler.FlushCache)
			}
		}
	}

	return engine
}

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/api"
	"github.com/qs3c/guild_server/internal/api/handler"
	"github.com/qs3c/guild_server/internal/database"
	"github.com/qs3c/guild_server/internal/pkg/access"
	"github.com/qs3c/guild_server/internal/pkg/cache"
	"github.com/qs3c/guild_server/internal/pkg/idgen"
	"github.com/qs3c/guild_server/internal/pkg/logging"
	"github.com/qs3c/guild_server/internal/pkg/oss"
	"github.com/qs3c/guild_server/internal/pkg/pubsub"
	"github.com/qs3c/guild_server/internal/pkg/queue"
	"github.com/qs3c/guild_server/internal/pkg/ws"
	"github.com/qs3c/guild_server/internal/repository"
	"github.com/qs3c/guild_server/internal/service"
)

func main() {
	// .env 可选，不存在时忽略
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := idgen.Init(cfg.Snowflake.NodeID); err != nil {
		logging.Fatal().Err(err).Msg("Failed to init id generator")
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect database")
	}
	if err := database.AutoMigrate(db); err != nil {
		logging.Fatal().Err(err).Msg("Failed to migrate database")
	}
	logging.Info().Msg("Database connected")

	// Redis 不可达时仍然启动：评论缓存退化为内存，事件与通知投递失败只记日志
	rdb := database.NewRedisClient(&cfg.Redis)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := cache.NewStoreWithFallback(ctx, rdb, cfg.Cache.MemorySize)
	defer store.Close()

	jobQueue := queue.NewQueue(rdb, cfg.Queue.NotificationQueue)
	publisher := pubsub.NewPublisher(rdb)

	// WebSocket 推送：订阅评论事件，回复实时通知在线用户
	wsHub := ws.NewHub()
	subscriber := pubsub.NewSubscriber(rdb)
	go func() {
		if err := subscriber.Subscribe(ctx, wsHub.HandleCommentEvent); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Comment event subscriber stopped")
		}
	}()

	// 初始化 OSS（可选）
	var uploader service.AvatarUploader
	if cfg.OSS.Endpoint != "" && cfg.OSS.AccessKeyID != "" {
		ossClient, err := oss.NewClient(&cfg.OSS)
		if err != nil {
			logging.Warn().Err(err).Msg("Failed to init OSS client, avatar upload disabled")
		} else {
			uploader = ossClient
			logging.Info().Msg("OSS client initialized")
		}
	}

	// 初始化 Repository
	userRepo := repository.NewUserRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	reactionRepo := repository.NewReactionRepository(db)

	// 初始化 Service
	permissionService := service.NewPermissionService(commentRepo, access.DefaultPolicy(), cfg.Comment)
	commentCache := service.NewCommentCache(store, cfg.Cache)
	authService := service.NewAuthService(userRepo, rdb, jobQueue, cfg)
	userService := service.NewUserService(userRepo, uploader, cfg)
	commentService := service.NewCommentService(commentRepo, reactionRepo, permissionService, commentCache, publisher, jobQueue, cfg)

	// 初始化 Handler
	router := api.NewRouter(
		handler.NewAuthHandler(authService),
		handler.NewUserHandler(userService),
		handler.NewCommentHandler(commentService),
		handler.NewAdminHandler(userService, commentService),
		handler.NewWebSocketHandler(wsHub, cfg.JWT.Secret, cfg.CORS.AllowedOrigins),
		permissionService,
		cfg,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router.Setup(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logging.Info().Msg("Received shutdown signal")

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("Server shutdown failed")
	}
	logging.Info().Msg("Server stopped")
}

package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/qs3c/guild_server/config"
	"github.com/qs3c/guild_server/internal/database"
	"github.com/qs3c/guild_server/internal/pkg/email"
	"github.com/qs3c/guild_server/internal/pkg/logging"
	"github.com/qs3c/guild_server/internal/pkg/queue"
	"github.com/qs3c/guild_server/internal/repository"
	"github.com/qs3c/guild_server/internal/worker"
)

func main() {
	_ = godotenv.Load()

	// 加载配置
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load config")
	}
	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect database")
	}
	logging.Info().Msg("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to connect redis")
	}
	logging.Info().Msg("Redis connected")

	jobQueue := queue.NewQueue(rdb, cfg.Queue.NotificationQueue)
	processor := worker.NewProcessor(
		repository.NewUserRepository(db),
		repository.NewCommentRepository(db),
		email.NewService(&cfg.Email),
		cfg,
	)

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logging.Info().Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Int("max_workers", cfg.Queue.MaxWorkers).Str("queue", cfg.Queue.NotificationQueue).Msg("Worker started")

	var wg sync.WaitGroup
	for i := 0; i < cfg.Queue.MaxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processor.Run(ctx, jobQueue, workerID)
		}(i)
	}

	wg.Wait()
	logging.Info().Msg("Worker shutdown complete")
}

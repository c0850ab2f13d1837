package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"creditengine/internal/config"
	"creditengine/internal/events"
	"creditengine/internal/gateway"
	"creditengine/internal/handler"
	"creditengine/internal/infrastructure/cache"
	"creditengine/internal/infrastructure/database"
	"creditengine/internal/infrastructure/mq"
	"creditengine/internal/job"
	"creditengine/internal/pricing"
	"creditengine/internal/service"
	"creditengine/pkg/idgen"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func loadConfig(cmd *cobra.Command) *config.Config {
	path, _ := cmd.Flags().GetString("config")
	return config.LoadConfig(path)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)
	if err := idgen.Init(cfg.Server.NodeID); err != nil {
		return fmt.Errorf("server.node_id 未配置或不合法: %w", err)
	}

	// 初始化 MySQL
	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}

	// Redis 只用于热度合并和任务选主，不可用时降级运行
	rdb, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Printf("Redis 不可用，热度重算不合并、任务不选主: %v", err)
		rdb = nil
	}

	// 初始化 Kafka
	producer, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		return err
	}
	defer producer.Close()

	// 创建上下文（用于优雅关闭）
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher := events.NewDispatcher(db, cfg.Kafka.Topic.Notification, cfg.Business.EventQueueSize)
	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	trendingWorker := job.NewTrendingWorker(service.NewTrendingService(db, rdb),
		cfg.Business.TrendingWorkers, cfg.Business.TrendingQueueSize)
	trendingWorker.Start(ctx)
	defer trendingWorker.Stop()

	svc := buildServices(db, cfg, trendingWorker, dispatcher)

	// 启动后台任务
	outboxSender := job.NewOutboxSender(db, cfg, producer)
	go outboxSender.Start(ctx)

	housekeeping := job.NewHousekeepingJob(db, cfg)
	go housekeeping.Start(ctx)

	premiumExpiry := job.NewPremiumExpiryJob(db, rdb, cfg, dispatcher)
	go premiumExpiry.Start(ctx)

	reconcileJob := job.NewReconcileJob(svc.Account, time.Duration(cfg.Business.ReconcileMinutes)*time.Minute)
	go reconcileJob.Start(ctx)

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(handler.NewHandler(svc)),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("服务启动，监听端口: %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号
	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	log.Println("正在关闭服务...")

	// 关闭 HTTP 服务（等待最多5秒）
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("服务关闭异常: %v", err)
	}

	log.Println("服务已关闭")
	return nil
}

func runReconcile(cmd *cobra.Command, _ []string) error {
	cfg := loadConfig(cmd)

	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := job.NewReconcileJob(service.NewAccountService(db), 0).RunOnce(ctx)
	if err != nil {
		return err
	}
	if len(summary.Failed) > 0 {
		return fmt.Errorf("%d 个账户对账失败: %v", len(summary.Failed), summary.Failed)
	}
	if len(summary.Mismatches) > 0 {
		return fmt.Errorf("发现 %d 个账户余额与流水不一致: %v", len(summary.Mismatches), summary.Mismatches)
	}
	return nil
}

func buildServices(db *gorm.DB, cfg *config.Config, trending service.TrendingQueue, publisher service.EventPublisher) *handler.Services {
	catalog := pricing.NewCatalog(cfg.Economy)
	mutator := service.NewBalanceMutator(db)
	limiter := service.NewRateLimiter(db, cfg.Economy.RateLimits)
	quota := service.NewQuotaTracker(db, cfg.Economy)

	return &handler.Services{
		Account:    service.NewAccountService(db),
		Payment:    service.NewPaymentService(db, cfg, gateway.NewClient(&cfg.Gateway), catalog, mutator, quota),
		Reaction:   service.NewReactionService(db, cfg.Economy, mutator, limiter, trending, publisher),
		Confession: service.NewConfessionService(db, cfg.Economy, mutator, limiter, quota),
		Gift:       service.NewGiftService(db, catalog, mutator, publisher),
		Visibility: service.NewVisibilityService(db, mutator, quota),
		RateLimit:  limiter,
		Quota:      quota,
		Admin:      service.NewAdminService(db, mutator),
	}
}

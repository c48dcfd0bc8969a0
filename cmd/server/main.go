package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kidbank/internal/config"
	"kidbank/internal/handler"
	"kidbank/internal/infrastructure/cache"
	"kidbank/internal/infrastructure/database"
	"kidbank/internal/infrastructure/lock"
	"kidbank/internal/infrastructure/mq"
	"kidbank/internal/job"
	"kidbank/internal/service"
	"kidbank/pkg/idgen"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径，为空时只使用默认值与环境变量")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("服务异常退出", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// .env 不存在时忽略
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("加载 .env 失败: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	slog.SetDefault(newLogger(cfg.Log))

	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return err
	}

	db, err := database.Open(&cfg.Database)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	publisher, err := mq.NewPublisher(&cfg.MQ)
	if err != nil {
		return err
	}
	defer publisher.Close()

	ledger := service.NewLedgerService(db, cfg, service.SystemClock{})
	policy := service.NewPolicyService(ledger)
	accounts := service.NewAccountService(db, ledger)
	goals := service.NewGoalService(db)

	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, cfg, publisher)
	go outboxSender.Start(ctx)

	var sweepJob *job.PolicySweepJob
	if cfg.Job.PolicySweepEnabled {
		redisClient, err := cache.NewRedis(ctx, &cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()

		sweepLock := lock.NewSweepLock(redisClient, uuid.NewString(), cfg.Job.PolicySweepInterval)
		sweepJob = job.NewPolicySweepJob(db, cfg, policy, sweepLock)
		go sweepJob.Start(ctx)
	}

	router := handler.SetupRouter(handler.NewHandler(ledger, policy, accounts, goals), cfg.Server.GinMode)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("服务启动", "port", cfg.Server.Port, "db", cfg.Database.Driver, "mq", cfg.MQ.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	slog.Info("正在关闭服务...")
	outboxSender.Stop()
	if sweepJob != nil {
		sweepJob.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("服务关闭异常", "error", err)
	}

	slog.Info("服务已关闭")
	return nil
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"bankledger/internal/config"
	"bankledger/internal/handler"
	"bankledger/internal/infrastructure/cache"
	"bankledger/internal/infrastructure/database"
	"bankledger/internal/infrastructure/lock"
	"bankledger/internal/infrastructure/logger"
	"bankledger/internal/infrastructure/mq"
	"bankledger/internal/job"
	"bankledger/internal/repository"
	"bankledger/internal/repository/memory"
	"bankledger/internal/service"
	"bankledger/pkg/idgen"
)

const defaultConfigPath = "config/config.yaml"

func main() {
	path := os.Getenv("BANKLEDGER_CONFIG")
	if path == "" {
		path = defaultConfigPath
	}

	// 加载配置
	cfg, err := config.LoadConfig(path)
	if err != nil {
		slog.Error("加载配置失败", "path", path, "err", err)
		os.Exit(1)
	}

	log := logger.New(&cfg.Log)
	if err := run(cfg, log); err != nil {
		log.Error("服务异常退出", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	// 创建上下文（用于优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 初始化 ID 生成器
	if err := idgen.Init(cfg.Server.WorkerID); err != nil {
		return err
	}

	uow, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	locker, closeLocker, err := openLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	publisher, closePublisher, err := openPublisher(cfg, log)
	if err != nil {
		return err
	}
	defer closePublisher()

	// 组装服务
	ids := idgen.NewGenerator()
	h := handler.NewHandler(
		service.NewAccountService(uow, locker, ids, cfg, log),
		service.NewLedgerService(uow, locker, ids, cfg, log),
		service.NewStatementService(uow, cfg, log),
	)

	// 启动后台任务
	outboxSender := job.NewOutboxSender(uow.Outbox(), publisher, cfg, log)
	go outboxSender.Start(ctx)

	if cfg.Audit.Enabled {
		auditJob := job.NewLedgerAuditJob(uow, cfg, log)
		go auditJob.Start(ctx)
	}

	// 启动 HTTP 服务
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.SetupRouter(h, log, cfg.Server.Mode),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("服务启动", "port", cfg.Server.Port, "storage", cfg.Ledger.StorageDriver, "lock", cfg.Ledger.LockDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("服务启动失败: %w", err)
	}

	log.Info("正在关闭服务...")

	// 取消上下文，停止后台任务
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("服务关闭异常", "err", err)
	}

	log.Info("服务已关闭")
	return nil
}

func openStore(cfg *config.Config) (repository.UnitOfWork, func(), error) {
	if cfg.Ledger.StorageDriver == config.StorageMemory {
		return memory.NewStore().UnitOfWork(), func() {}, nil
	}

	db, err := database.InitMySQL(&cfg.MySQL)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return repository.NewUnitOfWork(db), closeFn, nil
}

func openLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if cfg.Ledger.LockDriver == config.LockLocal {
		return lock.NewLocalLocker(cfg.Ledger.LockWait), func() {}, nil
	}

	client, err := cache.InitRedis(ctx, &cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	locker := lock.NewRedisLocker(client, cfg.Ledger.LockTTL, cfg.Ledger.LockWait, cfg.Ledger.LockRetryInterval)
	return locker, func() { _ = client.Close() }, nil
}

func openPublisher(cfg *config.Config, log *slog.Logger) (job.Publisher, func(), error) {
	if !cfg.Kafka.Enabled {
		return job.LogPublisher{Logger: log.With("component", "events")}, func() {}, nil
	}

	producer, err := mq.InitKafka(&cfg.Kafka)
	if err != nil {
		return nil, nil, err
	}
	return producer, func() { _ = producer.Close() }, nil
}

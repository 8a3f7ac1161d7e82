package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cashflow-service/internal/cache"
	"cashflow-service/internal/config"
	"cashflow-service/internal/consolidation"
	"cashflow-service/internal/consumer"
	"cashflow-service/internal/database"
	"cashflow-service/internal/health"
	"cashflow-service/internal/logger"
	"cashflow-service/internal/messaging"
	"cashflow-service/internal/processor"
	"cashflow-service/internal/repository"
	"cashflow-service/internal/resilience"
	cacheSync "cashflow-service/internal/sync"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	log := logger.New(cfg.App.LogLevel)

	// Initialize database
	db, err := database.New(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	// Initialize cache
	backend, closeBackend := cache.Open(context.Background(), cfg.Redis.Options(), log)
	defer closeBackend()

	cachePolicy := resilience.New(cfg.Resilience.CachePolicy(), log)
	store := cache.NewStore(backend, cachePolicy, cfg.Cache.DefaultTTL, log)

	// Initialize repositories
	entryRepo := repository.NewEntryRepository(db.DB, log)
	balanceRepo := repository.NewCachedBalanceRepository(
		repository.NewBalanceRepository(db.DB, log),
		store,
		cfg.Cache.BalanceTTL,
		log,
	)

	orchestrator := consolidation.NewOrchestrator(entryRepo, balanceRepo, log)
	proc := processor.New(orchestrator, cfg.Worker.HandlerTimeout, cfg.RabbitMQ.MaxDeliveries, log)

	rmqConsumer := consumer.New(consumer.Config{
		Topology:          cfg.RabbitMQ.Topology(),
		Tag:               cfg.App.Name + "-worker",
		ReconnectDelay:    cfg.Worker.ReconnectDelay,
		ReconnectMaxDelay: cfg.Worker.ReconnectMaxDelay,
	}, messaging.NewDialer(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Heartbeat), proc, log)

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return rmqConsumer.Run(ctx)
	})

	g.Go(func() error {
		heartbeat := health.NewHeartbeat(cfg.Worker.HealthFile, cfg.Worker.HealthInterval, log, rmqConsumer.Healthy)
		return heartbeat.Run(ctx)
	})

	// Start cache synchronizer goroutine
	g.Go(func() error {
		cacheSync.SyncCache(ctx, balanceRepo, cfg.Worker.WarmDays, cfg.Worker.WarmInterval, log)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("worker stopped unexpectedly")
	}

	log.WithField("processed", rmqConsumer.Processed()).Info("graceful shutdown complete")
}

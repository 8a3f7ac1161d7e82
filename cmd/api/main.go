package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"cashflow-service/internal/cache"
	"cashflow-service/internal/config"
	"cashflow-service/internal/consolidation"
	"cashflow-service/internal/database"
	"cashflow-service/internal/entry"
	apphttp "cashflow-service/internal/http"
	balanceHandler "cashflow-service/internal/http/balance"
	entryHandler "cashflow-service/internal/http/entry"
	"cashflow-service/internal/http/render"
	"cashflow-service/internal/logger"
	"cashflow-service/internal/messaging"
	"cashflow-service/internal/repository"
	"cashflow-service/internal/resilience"
)

const readHeaderTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	log := logger.New(cfg.App.LogLevel)

	db, err := database.New(cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	defer db.Close()

	backend, closeBackend := cache.Open(context.Background(), cfg.Redis.Options(), log)
	defer closeBackend()

	var (
		cachePolicy     = resilience.New(cfg.Resilience.CachePolicy(), log)
		transportPolicy = resilience.New(cfg.Resilience.TransportPolicy(), log)
	)

	publisher := messaging.NewPublisher(
		messaging.NewDialer(cfg.RabbitMQ.URL(), cfg.RabbitMQ.Heartbeat),
		cfg.RabbitMQ.Topology(),
		transportPolicy,
		log,
	)
	defer publisher.Close()

	var (
		entryRepo   = repository.NewEntryRepository(db.DB, log)
		balanceRepo = repository.NewCachedBalanceRepository(
			repository.NewBalanceRepository(db.DB, log),
			cache.NewStore(backend, cachePolicy, cfg.Cache.DefaultTTL, log),
			cfg.Cache.BalanceTTL,
			log,
		)
	)

	var (
		entryService   = entry.NewService(entryRepo, publisher, log)
		balanceService = consolidation.NewService(balanceRepo, log)
		orchestrator   = consolidation.NewOrchestrator(entryRepo, balanceRepo, log)
	)

	router := apphttp.New(
		entryHandler.NewHandler(entryService, render.NewValidator(), log),
		balanceHandler.NewHandler(balanceService, orchestrator, log),
		func() error {
			sqlDB, err := db.DB.DB()
			if err != nil {
				return err
			}

			return sqlDB.Ping()
		},
		log,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.WithField("addr", srv.Addr).Info("starting server")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Fatal("server failed")
	}

	log.Info("graceful shutdown complete")
}

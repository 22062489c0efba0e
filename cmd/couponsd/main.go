package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gartstein/coupons/internal/coupons/config"
	"github.com/gartstein/coupons/internal/coupons/db"
	"github.com/gartstein/coupons/internal/coupons/events"
	"github.com/gartstein/coupons/internal/coupons/ops"
	"github.com/gartstein/coupons/internal/coupons/sweeper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("COUPONS_CONFIG"), "path to the YAML config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx, *configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := initLogger(cfg.App.Debug)
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("Service stopped properly")
}

// initLogger initializes a Zap production logger, or a development one in debug mode.
func initLogger(debug bool) *zap.Logger {
	build := zap.NewProduction
	if debug {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	return logger
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	repo, err := db.Connect(ctx, cfg.DB(), cfg.Database.ConnectRetries, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer closeRepository(repo, logger)

	producer, closeProducer, err := initProducer(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Kafka producer: %w", err)
	}
	defer closeProducer()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Sweeper.Enabled {
		s := sweeper.New(repo, producer, cfg.Sweeper.Interval, logger)
		g.Go(func() error {
			return s.Run(gctx)
		})
	}

	server := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           ops.NewRouter(repo, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		logger.Info("Ops server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func initProducer(cfg *config.Config, logger *zap.Logger) (sweeper.EventProducer, func(), error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("No Kafka brokers configured, events are discarded")
		return events.NopProducer{}, func() {}, nil
	}
	producer, err := events.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	if err != nil {
		return nil, nil, err
	}
	return producer, producer.Close, nil
}

// closeRepository waits for in-flight handles to come back, then closes storage.
func closeRepository(repo *db.Repository, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := repo.Close(ctx); err != nil {
		logger.Error("Failed to close database", zap.Error(err))
	}
}

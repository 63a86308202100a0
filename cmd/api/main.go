package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"deliverycost/internal/bootstrap"
	"deliverycost/internal/config"
	"deliverycost/internal/invalidate"
	"deliverycost/internal/logging"
	"deliverycost/internal/metrics"
	"deliverycost/internal/server"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr"})
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	startCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	stack, err := bootstrap.Build(startCtx, cfg, bootstrap.Options{Logger: logger, Metrics: m, Migrate: true})
	cancel()
	if err != nil {
		logger.Fatal("failed to assemble pricing engine", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stack.Close(closeCtx); err != nil {
			logger.Warn("closing tariff stores", zap.Error(err))
		}
	}()

	if cfg.SweepInterval > 0 {
		go stack.Engine.Sweep(ctx, cfg.SweepInterval)
	}

	if len(cfg.KafkaBrokers) > 0 {
		reader := invalidate.NewReader(invalidate.ReaderConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
			GroupID: cfg.KafkaGroupID,
		})
		consumer := invalidate.New(reader, stack.Engine, logger.Named("invalidate"), m)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("invalidation consumer exited", zap.Error(err))
			}
		}()
	}

	r := server.NewWithOptions(stack.Engine, server.Options{Logger: logger.Named("http"), Metrics: m})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed", zap.Error(err))
		}
	}()

	logger.Info("api listening",
		zap.String("addr", srv.Addr),
		zap.Strings("sources", stack.Engine.Sources()),
		zap.Bool("invalidation_consumer", len(cfg.KafkaBrokers) > 0),
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("api stopped")
}

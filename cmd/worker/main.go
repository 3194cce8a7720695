package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/logging"
	"github.com/storyprint/printqueue/internal/pool"
	"github.com/storyprint/printqueue/internal/storage/postgres"
	"github.com/storyprint/printqueue/internal/wake"
	"github.com/storyprint/printqueue/internal/worker"
	"github.com/storyprint/printqueue/middleware"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCfg, err := config.LoadAppFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("load app config: %w", err)
	}

	logger, err := logging.New(appCfg.LogLevel, appCfg.LogFormat)
	if err != nil {
		return err
	}
	defer logger.Sync()

	dbCfg, err := postgres.LoadConfigFromEnv(ctx)
	if err != nil {
		return fmt.Errorf("load database config: %w", err)
	}

	db, err := postgres.ConnectDB(ctx, dbCfg, logger)
	if err != nil {
		return err
	}

	registry := worker.NewRegistry()
	types := worker.RegisterDelegates(registry, appCfg.ServiceURLs(), &http.Client{}, logger)
	if len(types) == 0 {
		logger.Warn("no job handlers registered; set at least one *_SERVICE_URL")
	}

	workerPool := pool.NewWorkerPool(postgres.NewJobRepository(db), registry, pool.Options{
		Concurrency:    appCfg.Concurrency,
		PollInterval:   appCfg.PollInterval,
		HandlerTimeout: appCfg.HandlerTimeout,
		StuckAfter:     appCfg.StuckAfter,
		Logger:         logger,
	})
	workerPool.Start()

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(logger), middleware.ErrorHandler())
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "types": types})
	})
	r.POST("/wake", wake.Handler(appCfg.WakeToken, workerPool, logger))

	srv := &http.Server{
		Addr:              appCfg.WorkerAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("worker listening", zap.String("addr", appCfg.WorkerAddr), zap.Int("concurrency", appCfg.Concurrency))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := workerPool.Stop(shutdownCtx); err != nil {
		logger.Warn("worker pool stopped before jobs finished", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return runErr
}

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
	"github.com/storyprint/printqueue/internal/job"
	"github.com/storyprint/printqueue/internal/logging"
	"github.com/storyprint/printqueue/internal/storage/postgres"
	"github.com/storyprint/printqueue/internal/wake"
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

	if appCfg.AutoMigrate {
		if err := postgres.Migrate(ctx, db, logger); err != nil {
			return err
		}
	}

	var notifier job.Notifier
	if appCfg.WakeURL != "" {
		n := wake.NewHTTPNotifier(appCfg.WakeURL, appCfg.WakeToken, appCfg.WakeTimeout, nil, logger)
		defer n.Close()
		notifier = n
	} else {
		logger.Info("WORKER_WAKE_URL not set, workers will pick up jobs on their next poll")
	}

	service := job.NewJobService(postgres.NewJobRepository(db), notifier, logger)
	router := newRouter(service, appCfg.RequestTimeout, logger)

	srv := &http.Server{
		Addr:              appCfg.APIAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("admin api listening", zap.String("addr", appCfg.APIAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

func newRouter(service job.JobServiceInterface, timeout time.Duration, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestLogger(logger),
		middleware.TimeoutMiddleware(timeout),
		middleware.ErrorHandler(),
	)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	job.NewJobHandler(service).RegisterRoutes(r)

	return r
}

package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// App holds the process-level settings shared by the api, worker and jobctl
// binaries. Database settings live in postgres.Config.
type App struct {
	APIAddr        string        `env:"API_ADDR,default=:8080"`
	WorkerAddr     string        `env:"WORKER_ADDR,default=:8081"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT,default=15s"`
	AutoMigrate    bool          `env:"DB_AUTO_MIGRATE,default=true"`

	PollInterval time.Duration `env:"WORKER_POLL_INTERVAL,default=5s"`
	Concurrency  int           `env:"WORKER_CONCURRENCY,default=1"`
	StuckAfter   time.Duration `env:"WORKER_STUCK_AFTER,default=30m"`

	WakeURL     string        `env:"WORKER_WAKE_URL"`
	WakeToken   string        `env:"WORKER_WAKE_TOKEN"`
	WakeTimeout time.Duration `env:"WORKER_WAKE_TIMEOUT,default=2s"`

	SceneImageURL    string        `env:"SCENE_IMAGE_SERVICE_URL"`
	PrintPDFURL      string        `env:"PRINT_PDF_SERVICE_URL"`
	PreviewRenderURL string        `env:"PREVIEW_RENDER_SERVICE_URL"`
	HandlerTimeout   time.Duration `env:"HANDLER_TIMEOUT,default=0s"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
}

// to help with testing
var envProcess = envconfig.Process

func LoadAppFromEnv(ctx context.Context) (*App, error) {
	var cfg App
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateApp(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validateApp(cfg *App) error {
	var errors []string

	if cfg.PollInterval <= 0 {
		errors = append(errors, "WORKER_POLL_INTERVAL must be positive")
	}

	if cfg.Concurrency < 1 {
		errors = append(errors, "WORKER_CONCURRENCY must be at least 1")
	}

	if cfg.StuckAfter <= 0 {
		errors = append(errors, "WORKER_STUCK_AFTER must be positive")
	}

	if cfg.WakeTimeout <= 0 {
		errors = append(errors, "WORKER_WAKE_TIMEOUT must be positive")
	}

	if cfg.HandlerTimeout < 0 {
		errors = append(errors, "HANDLER_TIMEOUT must not be negative")
	}

	// A wake URL without a token would be rejected by every worker.
	if cfg.WakeURL != "" && strings.TrimSpace(cfg.WakeToken) == "" {
		errors = append(errors, "WORKER_WAKE_TOKEN is required when WORKER_WAKE_URL is set")
	}

	switch strings.ToLower(cfg.LogFormat) {
	case "json", "console":
	default:
		errors = append(errors, "LOG_FORMAT must be json or console")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

// ServiceURLs maps each job type to the external service that executes it.
// Types without a configured URL are left out.
func (c *App) ServiceURLs() map[JobType]string {
	urls := map[JobType]string{}
	if c.SceneImageURL != "" {
		urls[JobTypeSceneImage] = c.SceneImageURL
	}
	if c.PrintPDFURL != "" {
		urls[JobTypePrintPDF] = c.PrintPDFURL
	}
	if c.PreviewRenderURL != "" {
		urls[JobTypePreviewRender] = c.PreviewRenderURL
	}
	return urls
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	User           string        `env:"POSTGRES_USER,default=postgres"`
	Password       string        `env:"POSTGRES_PASSWORD,default=postgres"`
	Host           string        `env:"POSTGRES_HOST,default=postgres"`
	Port           string        `env:"POSTGRES_PORT,default=5432"`
	Database       string        `env:"POSTGRES_DB,default=printqueue"`
	SSLMode        string        `env:"POSTGRES_SSLMODE,default=disable"`
	MaxRetries     int           `env:"DB_MAX_RETRIES,default=10"`
	RetryDelay     time.Duration `env:"DB_RETRY_DELAY,default=2s"`
	ConnectTimeout int           `env:"DB_CONNECT_TIMEOUT,default=5"`
	MaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS,default=50"`
	LogLevelString string        `env:"DB_LOG_LEVEL,default=warn"`
	LogLevel       logger.LogLevel
}

// to help with testing
var envProcess = envconfig.Process

func LoadConfigFromEnv(ctx context.Context) (*Config, error) {
	var cfg Config
	if err := envProcess(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.LogLevel = ParseLogLevel(cfg.LogLevelString)
	return &cfg, nil
}

func validateConfig(cfg *Config) error {
	var errors []string

	if strings.TrimSpace(cfg.User) == "" {
		errors = append(errors, "POSTGRES_USER is required")
	}

	if strings.TrimSpace(cfg.Password) == "" {
		errors = append(errors, "POSTGRES_PASSWORD is required")
	}

	if strings.TrimSpace(cfg.Database) == "" {
		errors = append(errors, "POSTGRES_DB is required")
	}

	if strings.TrimSpace(cfg.Host) == "" {
		errors = append(errors, "POSTGRES_HOST is required")
	}

	if strings.TrimSpace(cfg.Port) == "" {
		errors = append(errors, "POSTGRES_PORT is required")
	}
	if cfg.Port != "" {
		port, err := strconv.Atoi(cfg.Port)
		if err != nil {
			errors = append(errors, "POSTGRES_PORT must be a valid number")
		} else if port < 1 || port > 65535 {
			errors = append(errors, "POSTGRES_PORT must be between 1 and 65535")
		}
	}

	if cfg.MaxRetries < 0 {
		errors = append(errors, "DB_MAX_RETRIES must be non-negative")
	}

	if cfg.RetryDelay <= 0 {
		errors = append(errors, "DB_RETRY_DELAY must be positive")
	}

	if cfg.RetryDelay > 10*time.Minute {
		errors = append(errors, "DB_RETRY_DELAY must not exceed 10 minutes")
	}

	if cfg.ConnectTimeout < 0 {
		errors = append(errors, "DB_CONNECT_TIMEOUT must be non-negative")
	}

	if cfg.MaxOpenConns < 0 {
		errors = append(errors, "DB_MAX_OPEN_CONNS must be non-negative")
	}

	if len(errors) > 0 {
		return fmt.Errorf("%s", strings.Join(errors, "; "))
	}

	return nil
}

func (cfg *Config) DSN() string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
		cfg.Host, cfg.User, cfg.Password, cfg.Database, cfg.Port, sslMode,
	)
	if cfg.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", cfg.ConnectTimeout)
	}
	return dsn
}

// ConnectDB establishes connection to PostgreSQL, retrying with a constant
// delay up to cfg.MaxRetries attempts. A nil cfg is loaded from the environment.
func ConnectDB(ctx context.Context, cfg *Config, log *zap.Logger) (*gorm.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if cfg == nil {
		loadedCfg, err := LoadConfigFromEnv(ctx)
		if err != nil {
			return nil, err
		}
		cfg = loadedCfg
	} else if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.MaxRetries == 0 {
		return nil, fmt.Errorf("database connection failed after 0 attempts")
	}

	log.Info("connecting to database",
		zap.String("user", cfg.User),
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("database", cfg.Database),
	)

	gormConfig := &gorm.Config{
		Logger:  logger.Default.LogMode(cfg.LogLevel),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen == 0 {
		maxOpen = 50
	}

	var (
		gdb     *gorm.DB
		attempt int
	)

	backoff := retry.WithMaxRetries(uint64(cfg.MaxRetries-1), retry.NewConstant(cfg.RetryDelay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		log.Debug("database connect attempt", zap.Int("attempt", attempt), zap.Int("max", cfg.MaxRetries))

		db, err := open(ctx, cfg.DSN(), gormConfig)
		if err != nil {
			log.Warn("database not ready",
				zap.String("reason", simplifyDBError(err)),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", cfg.RetryDelay),
			)
			return retry.RetryableError(err)
		}
		gdb = db
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("database connection failed after %d attempts: %w", attempt, err)
		}
		return nil, fmt.Errorf("database connection failed after %d attempts", attempt)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("database connected", zap.Int("attempts", attempt))
	return gdb, nil
}

func open(ctx context.Context, dsn string, gormConfig *gorm.Config) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return gdb, nil
}

// simplifyDBError returns a user-friendly error message
func simplifyDBError(err error) string {
	msg := err.Error()

	switch {
	case strings.Contains(msg, "password authentication failed"):
		return "invalid database credentials"
	case strings.Contains(msg, "does not exist"):
		return "database does not exist"
	case strings.Contains(msg, "timeout"):
		return "database connection timed out"
	case strings.Contains(msg, "connect"):
		return "cannot reach database server"
	case strings.Contains(msg, "SASL"):
		return "authentication error"
	}

	return "database error"
}

// Convert string to logger.LogLevel
func ParseLogLevel(levelStr string) logger.LogLevel {
	switch strings.ToLower(levelStr) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "warn":
		return logger.Warn
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

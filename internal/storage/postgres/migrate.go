package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/storyprint/printqueue/migrations"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate applies the embedded goose migrations through the gorm connection.
func Migrate(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	return MigrateSQL(ctx, sqlDB, log)
}

// MigrateSQL applies the embedded goose migrations to a postgres database.
func MigrateSQL(ctx context.Context, sqlDB *sql.DB, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	for _, r := range results {
		log.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.String("file", r.Source.Path),
			zap.Duration("took", r.Duration),
		)
	}
	return nil
}

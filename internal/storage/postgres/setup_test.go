package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/models"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SetupTestDB opens a private in-memory sqlite database with the jobs schema.
// A single connection keeps every query on the same in-memory database.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&models.Job{}))

	return db
}

// seedJob inserts a job directly, bypassing the repository's pending reset.
func seedJob(t *testing.T, db *gorm.DB, job models.Job) *models.Job {
	t.Helper()

	if job.Type == "" {
		job.Type = config.JobTypeSceneImage
	}
	if job.Status == "" {
		job.Status = config.JobStatusPending
	}
	if job.Payload == nil {
		job.Payload = datatypes.JSON(`{"sceneId":"scene-1"}`)
	}
	if job.Priority == 0 {
		job.Priority = config.DefaultPriority
	}

	require.NoError(t, db.WithContext(context.Background()).Create(&job).Error)
	return &job
}

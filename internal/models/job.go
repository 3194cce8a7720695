package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/storyprint/printqueue/internal/config"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Job struct {
	ID              string           `gorm:"type:varchar(36);primaryKey"`
	Type            config.JobType   `gorm:"type:varchar(64);not null;index"`
	Status          config.JobStatus `gorm:"type:varchar(20);not null;default:'pending';index"`
	Payload         datatypes.JSON   `gorm:"type:jsonb;not null"`
	Priority        int              `gorm:"not null"`
	OrderID         *string          `gorm:"type:varchar(255);index"`
	Attempts        int              `gorm:"default:0;not null"`
	Result          datatypes.JSON   `gorm:"type:jsonb"`
	Error           *string          `gorm:"type:text"`
	RetriggeredFrom *string          `gorm:"type:varchar(36)"`
	CreatedAt       time.Time        `gorm:"autoCreateTime;index"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime"`
	StartedAt       *time.Time
	CompletedAt     *time.Time
	FailedAt        *time.Time
}

// BeforeCreate assigns a fresh identifier to rows inserted without one.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.Status == "" {
		j.Status = config.JobStatusPending
	}
	return nil
}

package dto

import (
	"encoding/json"
	"time"

	"github.com/storyprint/printqueue/internal/config"
)

type JobCreateDTO struct {
	Type     config.JobType  `json:"type" validate:"required"`
	Payload  json.RawMessage `json:"payload" validate:"required"`
	Priority *int            `json:"priority,omitempty" validate:"omitempty,gte=0,lte=100"`
	OrderID  *string         `json:"order_id,omitempty" validate:"omitempty,max=255"`
}

type JobCreatedDTO struct {
	ID string `json:"id"`
}

type JobResponseDTO struct {
	ID              string           `json:"id"`
	Type            config.JobType   `json:"type"`
	Status          config.JobStatus `json:"status"`
	Payload         json.RawMessage  `json:"payload"`
	Priority        int              `json:"priority"`
	OrderID         *string          `json:"order_id,omitempty"`
	Attempts        int              `json:"attempts"`
	Result          json.RawMessage  `json:"result,omitempty"`
	Error           *string          `json:"error"`
	RetriggeredFrom *string          `json:"retriggered_from,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	FailedAt        *time.Time       `json:"failed_at,omitempty"`
}

// JobFilter narrows list queries. Empty fields match everything.
type JobFilter struct {
	Status  config.JobStatus `form:"status"`
	Type    config.JobType   `form:"type"`
	OrderID string           `form:"order_id"`
	Limit   int              `form:"limit" validate:"gte=0,lte=200"`
	Offset  int              `form:"offset" validate:"gte=0"`
}

type JobListDTO struct {
	Jobs  []JobResponseDTO `json:"jobs"`
	Total int64            `json:"total"`
}

type JobStatsDTO struct {
	WindowHours int   `json:"window_hours"`
	Pending     int64 `json:"pending"`
	Processing  int64 `json:"processing"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Cancelled   int64 `json:"cancelled"`
}

type CancelResultDTO struct {
	ID        string `json:"id"`
	Cancelled bool   `json:"cancelled"`
}

type RetriggerResultDTO struct {
	NewJobID string `json:"new_job_id"`
}

type ClearResultDTO struct {
	DeletedCount int64 `json:"deleted_count"`
}

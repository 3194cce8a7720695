package job

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/dto"
	"github.com/storyprint/printqueue/internal/models"
	"gorm.io/datatypes"
)

// JobRepoInterface defines the contract for the job store. Every status
// change it offers is a conditional update guarded by the source status.
type JobRepoInterface interface {
	Create(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id string) (*models.Job, error)
	ClaimNextPending(ctx context.Context, types []config.JobType) (*models.Job, error)
	MarkCompleted(ctx context.Context, id string, result datatypes.JSON) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	CancelPending(ctx context.Context, id string) (bool, error)
	ForceCancel(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, filter dto.JobFilter) ([]models.Job, int64, error)
	Stats(ctx context.Context, since time.Time) (map[config.JobStatus]int64, error)
	DeleteByStatus(ctx context.Context, statuses []config.JobStatus) (int64, error)
	ListStuck(ctx context.Context, olderThan time.Duration) ([]models.Job, error)
}

// Notifier asks the worker to poll now. Implementations must not block the
// caller and must never fail the operation that triggered them.
type Notifier interface {
	Notify()
}

// JobServiceInterface is the queue client: the boundary HTTP handlers, the
// CLI and other services use to enqueue and administer jobs.
type JobServiceInterface interface {
	Enqueue(ctx context.Context, in *dto.JobCreateDTO) (string, error)
	GetJobStatus(ctx context.Context, id string) (*dto.JobResponseDTO, error)
	ListJobs(ctx context.Context, filter dto.JobFilter) (*dto.JobListDTO, error)
	GetJobStats(ctx context.Context, hours int) (*dto.JobStatsDTO, error)
	ListStuckJobs(ctx context.Context, olderThan time.Duration) ([]dto.JobResponseDTO, error)
	CancelJob(ctx context.Context, id string) (bool, error)
	ForceCancelJob(ctx context.Context, id string) (bool, error)
	RetriggerJob(ctx context.Context, id string) (string, error)
	ClearJobs(ctx context.Context, statuses []config.JobStatus) (int64, error)
}

// JobHandlerInterface defines the contract for HTTP request handlers.
type JobHandlerInterface interface {
	Create(c *gin.Context)
	Get(c *gin.Context)
	List(c *gin.Context)
	Stats(c *gin.Context)
	Stuck(c *gin.Context)
	Cancel(c *gin.Context)
	ForceCancel(c *gin.Context)
	Retrigger(c *gin.Context)
	Clear(c *gin.Context)
}

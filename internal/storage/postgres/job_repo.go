package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storyprint/printqueue/common"
	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/dto"
	"github.com/storyprint/printqueue/internal/job"
	"github.com/storyprint/printqueue/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// claimAttempts bounds the compare-and-swap loop used on dialects without
// SKIP LOCKED. Losing every race just means the caller polls again.
const claimAttempts = 5

type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

var _ job.JobRepoInterface = (*JobRepository)(nil)

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, common.ErrStore, err)
}

// Create inserts a new job record into the database in the pending state.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	job.Status = config.JobStatusPending
	job.StartedAt, job.CompletedAt, job.FailedAt = nil, nil, nil
	job.Error = nil

	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return storeErr("create job", err)
	}
	return nil
}

// Get retrieves a single job record by its ID. A missing row yields an
// error wrapping common.ErrNotFound.
func (r *JobRepository) Get(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("get job %s: %w", id, common.ErrNotFound)
		}
		return nil, storeErr("get job", err)
	}
	return &job, nil
}

// ClaimNextPending atomically moves the best pending job (lowest priority,
// then oldest) to processing and returns it. It returns nil when nothing is
// claimable. types restricts the claim to job types the caller can run.
func (r *JobRepository) ClaimNextPending(ctx context.Context, types []config.JobType) (*models.Job, error) {
	if r.db.Dialector.Name() == "postgres" {
		return r.claimSkipLocked(ctx, types)
	}
	return r.claimCompareAndSwap(ctx, types)
}

func (r *JobRepository) claimSkipLocked(ctx context.Context, types []config.JobType) (*models.Job, error) {
	now := r.now()

	var sb strings.Builder
	args := []any{config.JobStatusProcessing, now, now, config.JobStatusPending}

	sb.WriteString(`UPDATE jobs SET status = ?, started_at = ?, updated_at = ?, attempts = attempts + 1
WHERE id = (
	SELECT id FROM jobs WHERE status = ?`)
	if len(types) > 0 {
		sb.WriteString(" AND type IN ?")
		args = append(args, types)
	}
	sb.WriteString(`
	ORDER BY priority ASC, created_at ASC, id ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
) AND status = ?
RETURNING *`)
	args = append(args, config.JobStatusPending)

	var job models.Job
	res := r.db.WithContext(ctx).Raw(sb.String(), args...).Scan(&job)
	if res.Error != nil {
		return nil, storeErr("claim job", res.Error)
	}
	if res.RowsAffected == 0 || job.ID == "" {
		return nil, nil
	}
	return &job, nil
}

func (r *JobRepository) claimCompareAndSwap(ctx context.Context, types []config.JobType) (*models.Job, error) {
	db := r.db.WithContext(ctx)

	for range claimAttempts {
		q := db.Model(&models.Job{}).Select("id").Where("status = ?", config.JobStatusPending)
		if len(types) > 0 {
			q = q.Where("type IN ?", types)
		}

		var candidate models.Job
		err := q.Order("priority ASC").Order("created_at ASC").Order("id ASC").Take(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, storeErr("claim job", err)
		}

		res := db.Model(&models.Job{}).
			Where("id = ? AND status = ?", candidate.ID, config.JobStatusPending).
			Updates(map[string]any{
				"status":     config.JobStatusProcessing,
				"started_at": r.now(),
				"attempts":   gorm.Expr("attempts + ?", 1),
			})
		if res.Error != nil {
			return nil, storeErr("claim job", res.Error)
		}
		if res.RowsAffected == 1 {
			return r.Get(ctx, candidate.ID)
		}
		// another worker won this row; look for the next one
	}

	return nil, nil
}

// MarkCompleted moves a processing job to completed and stores its result.
// A job that is no longer processing is left untouched and an error wrapping
// common.ErrInvalidTransition is returned.
func (r *JobRepository) MarkCompleted(ctx context.Context, id string, result datatypes.JSON) error {
	return r.finish(ctx, "mark completed", id, map[string]any{
		"status":       config.JobStatusCompleted,
		"completed_at": r.now(),
		"result":       result,
		"error":        nil,
	})
}

// MarkFailed moves a processing job to failed and records errMsg.
func (r *JobRepository) MarkFailed(ctx context.Context, id string, errMsg string) error {
	return r.finish(ctx, "mark failed", id, map[string]any{
		"status":    config.JobStatusFailed,
		"failed_at": r.now(),
		"error":     errMsg,
	})
}

func (r *JobRepository) finish(ctx context.Context, op, id string, values map[string]any) error {
	ok, err := r.transition(ctx, id, config.JobStatusProcessing, values)
	if err != nil {
		return storeErr(op, err)
	}
	if !ok {
		return fmt.Errorf("%s %s: %w", op, id, common.ErrInvalidTransition)
	}
	return nil
}

// CancelPending moves a pending job to cancelled. It reports false when the
// job is missing or not pending.
func (r *JobRepository) CancelPending(ctx context.Context, id string) (bool, error) {
	ok, err := r.transition(ctx, id, config.JobStatusPending, map[string]any{
		"status":    config.JobStatusCancelled,
		"failed_at": r.now(),
	})
	if err != nil {
		return false, storeErr("cancel job", err)
	}
	return ok, nil
}

// ForceCancel moves a processing job to cancelled without touching whatever
// is still executing it. It reports false when the job is not processing.
func (r *JobRepository) ForceCancel(ctx context.Context, id string) (bool, error) {
	ok, err := r.transition(ctx, id, config.JobStatusProcessing, map[string]any{
		"status":    config.JobStatusCancelled,
		"failed_at": r.now(),
	})
	if err != nil {
		return false, storeErr("force cancel job", err)
	}
	return ok, nil
}

// transition applies values only while the row is still in status from.
func (r *JobRepository) transition(ctx context.Context, id string, from config.JobStatus, values map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ? AND status = ?", id, from).
		Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// List returns one page of jobs matching filter, newest first, together with
// the total number of matching rows.
func (r *JobRepository) List(ctx context.Context, filter dto.JobFilter) ([]models.Job, int64, error) {
	scoped := func() *gorm.DB {
		q := r.db.WithContext(ctx).Model(&models.Job{})
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		if filter.Type != "" {
			q = q.Where("type = ?", filter.Type)
		}
		if filter.OrderID != "" {
			q = q.Where("order_id = ?", filter.OrderID)
		}
		return q
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, storeErr("count jobs", err)
	}

	jobs := []models.Job{}
	q := scoped().Order("created_at DESC").Order("id DESC").Offset(filter.Offset)
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if err := q.Find(&jobs).Error; err != nil {
		return nil, 0, storeErr("list jobs", err)
	}

	return jobs, total, nil
}

// Stats counts jobs created at or after since, grouped by status.
func (r *JobRepository) Stats(ctx context.Context, since time.Time) (map[config.JobStatus]int64, error) {
	var rows []struct {
		Status config.JobStatus
		Count  int64
	}

	if err := r.db.WithContext(ctx).Model(&models.Job{}).
		Select("status, COUNT(*) AS count").
		Where("created_at >= ?", since.UTC()).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, storeErr("job stats", err)
	}

	counts := make(map[config.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// DeleteByStatus physically removes every job in one of statuses. It
// bypasses the state machine and is meant for administrative cleanup only.
func (r *JobRepository) DeleteByStatus(ctx context.Context, statuses []config.JobStatus) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}

	res := r.db.WithContext(ctx).Where("status IN ?", statuses).Delete(&models.Job{})
	if res.Error != nil {
		return 0, storeErr("delete jobs", res.Error)
	}
	return res.RowsAffected, nil
}

// ListStuck returns processing jobs started longer than olderThan ago,
// oldest first. It never modifies them.
func (r *JobRepository) ListStuck(ctx context.Context, olderThan time.Duration) ([]models.Job, error) {
	jobs := []models.Job{}
	if err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", config.JobStatusProcessing, r.now().Add(-olderThan)).
		Order("started_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, storeErr("list stuck jobs", err)
	}
	return jobs, nil
}

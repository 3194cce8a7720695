package job

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/storyprint/printqueue/common"
	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/dto"
	"github.com/storyprint/printqueue/internal/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type JobService struct {
	repo   JobRepoInterface
	notify Notifier
	log    *zap.Logger
	now    func() time.Time
}

type nopNotifier struct{}

func (nopNotifier) Notify() {}

// NewJobService builds the queue client. A nil notifier disables wake
// signals; the worker then only sees new work on its next poll.
func NewJobService(repo JobRepoInterface, notifier Notifier, log *zap.Logger) *JobService {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &JobService{
		repo:   repo,
		notify: notifier,
		log:    log,
		now:    time.Now,
	}
}

var _ JobServiceInterface = (*JobService)(nil)

// storeFailure maps a repository error that is not an expected state
// conflict onto an API error. Context errors become timeouts.
func storeFailure(err error, message string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return common.Errf(http.StatusRequestTimeout, "request timed out").Wrap(err)
	}
	return common.Errf(http.StatusInternalServerError, "%s", message).Wrap(common.ErrStore)
}

func notFound(id string) error {
	return common.Errf(http.StatusNotFound, "job %s not found", id).Wrap(common.ErrNotFound)
}

func timedOut(ctx context.Context) error {
	return common.Errf(http.StatusRequestTimeout, "request canceled or timed out").Wrap(ctx.Err())
}

// Enqueue validates the type and payload, inserts a pending job and asks
// the worker to poll. Nothing is written when validation fails.
func (s *JobService) Enqueue(ctx context.Context, in *dto.JobCreateDTO) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", timedOut(ctx)
	}

	if !in.Type.Valid() {
		return "", common.NewAPIError(
			http.StatusBadRequest,
			"invalid job type",
			map[string]any{
				"provided": in.Type,
				"allowed":  config.AllowedJobTypes,
			},
		).Wrap(common.ErrValidation)
	}

	if !json.Valid(in.Payload) {
		return "", common.Errf(http.StatusBadRequest, "payload must be valid JSON").Wrap(common.ErrValidation)
	}

	if err := payloadValidators[in.Type](in.Payload); err != nil {
		return "", err
	}

	priority := config.DefaultPriority
	if in.Priority != nil {
		priority = *in.Priority
	}
	if priority < config.MinPriority || priority > config.MaxPriority {
		return "", common.NewAPIError(
			http.StatusBadRequest,
			"invalid priority",
			map[string]any{"provided": priority, "min": config.MinPriority, "max": config.MaxPriority},
		).Wrap(common.ErrValidation)
	}

	job := models.Job{
		Type:     in.Type,
		Payload:  datatypes.JSON(in.Payload),
		Priority: priority,
		OrderID:  in.OrderID,
	}

	if err := s.repo.Create(ctx, &job); err != nil {
		return "", storeFailure(err, "failed to add job to database")
	}

	s.log.Info("job enqueued",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("priority", job.Priority),
	)
	s.notify.Notify()

	return job.ID, nil
}

// GetJobStatus retrieves a job by its ID. A missing job is reported as a
// 404 API error wrapping common.ErrNotFound.
func (s *JobService) GetJobStatus(ctx context.Context, id string) (*dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, timedOut(ctx)
	}

	job, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, storeFailure(err, "failed to get job")
	}

	resp := toResponse(job)
	return &resp, nil
}

// ListJobs returns one page of jobs, newest first, and the total number of
// jobs matching the filter regardless of paging.
func (s *JobService) ListJobs(ctx context.Context, filter dto.JobFilter) (*dto.JobListDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, timedOut(ctx)
	}

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, common.NewAPIError(
			http.StatusBadRequest,
			"invalid job status",
			map[string]any{"provided": filter.Status, "allowed": config.AllowedJobStatuses},
		).Wrap(common.ErrValidation)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, common.NewAPIError(
			http.StatusBadRequest,
			"invalid job type",
			map[string]any{"provided": filter.Type, "allowed": config.AllowedJobTypes},
		).Wrap(common.ErrValidation)
	}
	if filter.Limit < 0 || filter.Offset < 0 {
		return nil, common.Errf(http.StatusBadRequest, "limit and offset must not be negative").Wrap(common.ErrValidation)
	}

	if filter.Limit == 0 {
		filter.Limit = config.DefaultListLimit
	}
	filter.Limit = min(filter.Limit, config.MaxListLimit)

	jobs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, storeFailure(err, "failed to list jobs")
	}

	out := &dto.JobListDTO{Jobs: make([]dto.JobResponseDTO, len(jobs)), Total: total}
	for i := range jobs {
		out.Jobs[i] = toResponse(&jobs[i])
	}
	return out, nil
}

// GetJobStats counts jobs created within the trailing window, per status.
func (s *JobService) GetJobStats(ctx context.Context, hours int) (*dto.JobStatsDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, timedOut(ctx)
	}

	if hours == 0 {
		hours = config.DefaultStatsHours
	}
	if hours < 0 {
		return nil, common.Errf(http.StatusBadRequest, "hours must be positive").Wrap(common.ErrValidation)
	}

	since := s.now().Add(-time.Duration(hours) * time.Hour)
	counts, err := s.repo.Stats(ctx, since)
	if err != nil {
		return nil, storeFailure(err, "failed to get job stats")
	}

	return &dto.JobStatsDTO{
		WindowHours: hours,
		Pending:     counts[config.JobStatusPending],
		Processing:  counts[config.JobStatusProcessing],
		Completed:   counts[config.JobStatusCompleted],
		Failed:      counts[config.JobStatusFailed],
		Cancelled:   counts[config.JobStatusCancelled],
	}, nil
}

// ListStuckJobs reports processing jobs that started longer than olderThan
// ago. These are candidates for ForceCancelJob.
func (s *JobService) ListStuckJobs(ctx context.Context, olderThan time.Duration) ([]dto.JobResponseDTO, error) {
	if err := ctx.Err(); err != nil {
		return nil, timedOut(ctx)
	}

	if olderThan <= 0 {
		return nil, common.Errf(http.StatusBadRequest, "older_than must be positive").Wrap(common.ErrValidation)
	}

	jobs, err := s.repo.ListStuck(ctx, olderThan)
	if err != nil {
		return nil, storeFailure(err, "failed to list stuck jobs")
	}

	out := make([]dto.JobResponseDTO, len(jobs))
	for i := range jobs {
		out[i] = toResponse(&jobs[i])
	}
	return out, nil
}

// CancelJob cancels a job that has not started. It returns false when the
// job exists but is no longer pending, and a not-found error when it does
// not exist.
func (s *JobService) CancelJob(ctx context.Context, id string) (bool, error) {
	return s.cancel(ctx, id, "cancel", s.repo.CancelPending)
}

// ForceCancelJob marks a processing job cancelled. It exists for jobs whose
// worker died mid-execution; it does not stop a handler that is still
// running, and that handler's late result is rejected by the store.
func (s *JobService) ForceCancelJob(ctx context.Context, id string) (bool, error) {
	return s.cancel(ctx, id, "force-cancel", s.repo.ForceCancel)
}

func (s *JobService) cancel(
	ctx context.Context,
	id string,
	action string,
	apply func(context.Context, string) (bool, error),
) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, timedOut(ctx)
	}

	ok, err := apply(ctx, id)
	if err != nil {
		return false, storeFailure(err, "failed to "+action+" job")
	}

	if !ok {
		// Distinguish a state conflict from an unknown id.
		if _, err := s.repo.Get(ctx, id); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return false, notFound(id)
			}
			return false, storeFailure(err, "failed to get job")
		}
		s.log.Info("job not in a cancellable state", zap.String("job_id", id), zap.String("action", action))
		return false, nil
	}

	s.log.Info("job cancelled", zap.String("job_id", id), zap.String("action", action))
	return true, nil
}

// RetriggerJob clones a failed or cancelled job into a new pending job and
// returns the new id. The original row is left exactly as it was.
func (s *JobService) RetriggerJob(ctx context.Context, id string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", timedOut(ctx)
	}

	original, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", notFound(id)
		}
		return "", storeFailure(err, "failed to get job")
	}

	if !slices.Contains(config.RetriggerableStatuses, original.Status) {
		return "", common.NewAPIError(
			http.StatusConflict,
			"job cannot be retriggered",
			map[string]any{"status": original.Status, "allowed": config.RetriggerableStatuses},
		).Wrap(common.ErrInvalidTransition)
	}

	payload := make(datatypes.JSON, len(original.Payload))
	copy(payload, original.Payload)

	clone := models.Job{
		Type:            original.Type,
		Payload:         payload,
		Priority:        original.Priority,
		OrderID:         original.OrderID,
		RetriggeredFrom: &original.ID,
	}

	if err := s.repo.Create(ctx, &clone); err != nil {
		return "", storeFailure(err, "failed to add job to database")
	}

	s.log.Info("job retriggered", zap.String("job_id", clone.ID), zap.String("source_job_id", original.ID))
	s.notify.Notify()

	return clone.ID, nil
}

// ClearJobs deletes every job in one of statuses, bypassing the state
// machine. With no statuses only terminal jobs are removed.
func (s *JobService) ClearJobs(ctx context.Context, statuses []config.JobStatus) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, timedOut(ctx)
	}

	if len(statuses) == 0 {
		statuses = config.TerminalStatuses
	}
	for _, st := range statuses {
		if !st.Valid() {
			return 0, common.NewAPIError(
				http.StatusBadRequest,
				"invalid job status",
				map[string]any{"provided": st, "allowed": config.AllowedJobStatuses},
			).Wrap(common.ErrValidation)
		}
	}

	deleted, err := s.repo.DeleteByStatus(ctx, statuses)
	if err != nil {
		return 0, storeFailure(err, "failed to clear jobs")
	}

	s.log.Warn("jobs cleared", zap.Any("statuses", statuses), zap.Int64("deleted", deleted))
	return deleted, nil
}

func toResponse(job *models.Job) dto.JobResponseDTO {
	return dto.JobResponseDTO{
		ID:              job.ID,
		Type:            job.Type,
		Status:          job.Status,
		Payload:         json.RawMessage(job.Payload),
		Priority:        job.Priority,
		OrderID:         job.OrderID,
		Attempts:        job.Attempts,
		Result:          json.RawMessage(job.Result),
		Error:           job.Error,
		RetriggeredFrom: job.RetriggeredFrom,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		StartedAt:       job.StartedAt,
		CompletedAt:     job.CompletedAt,
		FailedAt:        job.FailedAt,
	}
}

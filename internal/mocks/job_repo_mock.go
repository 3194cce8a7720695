package mocks

import (
	"context"
	"time"

	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/dto"
	"github.com/storyprint/printqueue/internal/models"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
)

type JobRepoMock struct {
	mock.Mock
}

func (m *JobRepoMock) Create(ctx context.Context, job *models.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *JobRepoMock) Get(ctx context.Context, id string) (*models.Job, error) {
	args := m.Called(ctx, id)

	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) ClaimNextPending(ctx context.Context, types []config.JobType) (*models.Job, error) {
	args := m.Called(ctx, types)

	if fn, ok := args.Get(0).(func(context.Context, []config.JobType) *models.Job); ok {
		return fn(ctx, types), args.Error(1)
	}
	job, _ := args.Get(0).(*models.Job)
	return job, args.Error(1)
}

func (m *JobRepoMock) MarkCompleted(ctx context.Context, id string, result datatypes.JSON) error {
	args := m.Called(ctx, id, result)
	return args.Error(0)
}

func (m *JobRepoMock) MarkFailed(ctx context.Context, id string, errMsg string) error {
	args := m.Called(ctx, id, errMsg)
	return args.Error(0)
}

func (m *JobRepoMock) CancelPending(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) ForceCancel(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobRepoMock) List(ctx context.Context, filter dto.JobFilter) ([]models.Job, int64, error) {
	args := m.Called(ctx, filter)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Get(1).(int64), args.Error(2)
}

func (m *JobRepoMock) Stats(ctx context.Context, since time.Time) (map[config.JobStatus]int64, error) {
	args := m.Called(ctx, since)

	counts, _ := args.Get(0).(map[config.JobStatus]int64)
	return counts, args.Error(1)
}

func (m *JobRepoMock) DeleteByStatus(ctx context.Context, statuses []config.JobStatus) (int64, error) {
	args := m.Called(ctx, statuses)
	return args.Get(0).(int64), args.Error(1)
}

func (m *JobRepoMock) ListStuck(ctx context.Context, olderThan time.Duration) ([]models.Job, error) {
	args := m.Called(ctx, olderThan)

	jobs, _ := args.Get(0).([]models.Job)
	return jobs, args.Error(1)
}

package mocks

import (
	"context"
	"time"

	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/dto"
	"github.com/stretchr/testify/mock"
)

type JobServiceMock struct {
	mock.Mock
}

func (m *JobServiceMock) Enqueue(ctx context.Context, in *dto.JobCreateDTO) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *JobServiceMock) GetJobStatus(ctx context.Context, id string) (*dto.JobResponseDTO, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.JobResponseDTO), args.Error(1)
}

func (m *JobServiceMock) ListJobs(ctx context.Context, filter dto.JobFilter) (*dto.JobListDTO, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.JobListDTO), args.Error(1)
}

func (m *JobServiceMock) GetJobStats(ctx context.Context, hours int) (*dto.JobStatsDTO, error) {
	args := m.Called(ctx, hours)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.JobStatsDTO), args.Error(1)
}

func (m *JobServiceMock) ListStuckJobs(ctx context.Context, olderThan time.Duration) ([]dto.JobResponseDTO, error) {
	args := m.Called(ctx, olderThan)

	jobs, _ := args.Get(0).([]dto.JobResponseDTO)
	return jobs, args.Error(1)
}

func (m *JobServiceMock) CancelJob(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobServiceMock) ForceCancelJob(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *JobServiceMock) RetriggerJob(ctx context.Context, id string) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

func (m *JobServiceMock) ClearJobs(ctx context.Context, statuses []config.JobStatus) (int64, error) {
	args := m.Called(ctx, statuses)
	return args.Get(0).(int64), args.Error(1)
}

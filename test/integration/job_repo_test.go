package integration

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/storyprint/printqueue/common"
	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/dto"
	"github.com/storyprint/printqueue/internal/job"
	"github.com/storyprint/printqueue/internal/models"
	"github.com/storyprint/printqueue/internal/storage/postgres"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func newPendingJob(priority int) *models.Job {
	return &models.Job{
		Type:     config.JobTypeSceneImage,
		Payload:  datatypes.JSON(`{"sceneId":"s1","prompt":"a fox in a library"}`),
		Priority: priority,
	}
}

func TestJobRepository_CreateAndGet(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)

	orderID := "order-42"
	j := newPendingJob(3)
	j.OrderID = &orderID
	require.NoError(t, repo.Create(ctx, j))

	got, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)

	assert.Equal(t, config.JobStatusPending, got.Status)
	assert.Equal(t, 3, got.Priority)
	assert.Equal(t, "order-42", *got.OrderID)
	assert.False(t, got.CreatedAt.IsZero())

	var payload map[string]string
	require.NoError(t, json.Unmarshal(got.Payload, &payload))
	assert.Equal(t, "a fox in a library", payload["prompt"])

	_, err = repo.Get(ctx, "00000000-0000-4000-8000-000000000000")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestJobRepository_StatusCheckConstraint(t *testing.T) {
	db, _ := setupTestDB(t)

	err := db.Exec(`INSERT INTO jobs (id, type, status, payload) VALUES ('x', 'scene-image', 'done', '{}')`).Error
	assert.Error(t, err)
}

func TestJobRepository_ClaimOrder(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)

	low := newPendingJob(50)
	require.NoError(t, repo.Create(ctx, low))
	firstMid := newPendingJob(10)
	require.NoError(t, repo.Create(ctx, firstMid))
	secondMid := newPendingJob(10)
	require.NoError(t, repo.Create(ctx, secondMid))
	urgent := newPendingJob(0)
	require.NoError(t, repo.Create(ctx, urgent))

	var got []string
	for range 4 {
		j, err := repo.ClaimNextPending(ctx, nil)
		require.NoError(t, err)
		require.NotNil(t, j)
		assert.Equal(t, config.JobStatusProcessing, j.Status)
		assert.Equal(t, 1, j.Attempts)
		assert.NotNil(t, j.StartedAt)
		got = append(got, j.ID)
	}

	assert.Equal(t, []string{urgent.ID, firstMid.ID, secondMid.ID, low.ID}, got)

	j, err := repo.ClaimNextPending(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, j)
}

func TestJobRepository_ClaimByType(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)

	require.NoError(t, repo.Create(ctx, newPendingJob(0)))
	pdf := &models.Job{Type: config.JobTypePrintPDF, Payload: datatypes.JSON(`{"orderId":"o1"}`), Priority: 90}
	require.NoError(t, repo.Create(ctx, pdf))

	j, err := repo.ClaimNextPending(ctx, []config.JobType{config.JobTypePrintPDF, config.JobTypePreviewRender})
	require.NoError(t, err)
	require.NotNil(t, j)
	assert.Equal(t, pdf.ID, j.ID)
}

// Many workers racing over the same rows must never share a job.
func TestJobRepository_ConcurrentClaimExclusive(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)

	const (
		jobs    = 50
		workers = 8
	)
	for range jobs {
		require.NoError(t, repo.Create(ctx, newPendingJob(10)))
	}

	var (
		mu      sync.Mutex
		claimed = map[string]int{}
		wg      sync.WaitGroup
		start   = make(chan struct{})
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for {
				j, err := repo.ClaimNextPending(ctx, nil)
				if !assert.NoError(t, err) || j == nil {
					return
				}
				mu.Lock()
				claimed[j.ID]++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Len(t, claimed, jobs)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "job %s claimed %d times", id, n)
	}

	var attempts []int
	require.NoError(t, db.Model(&models.Job{}).Distinct().Pluck("attempts", &attempts).Error)
	assert.Equal(t, []int{1}, attempts)
}

// A single pending row raced by many claimers is claimed exactly once.
func TestJobRepository_SingleRowRace(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)
	require.NoError(t, repo.Create(ctx, newPendingJob(10)))

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		start = make(chan struct{})
	)
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			j, err := repo.ClaimNextPending(ctx, nil)
			assert.NoError(t, err)
			if j != nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func TestJobRepository_GuardedTransitions(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)

	j := newPendingJob(10)
	require.NoError(t, repo.Create(ctx, j))

	ok, err := repo.ForceCancel(ctx, j.ID)
	require.NoError(t, err)
	assert.False(t, ok, "force cancel must refuse a pending job")

	_, err = repo.ClaimNextPending(ctx, nil)
	require.NoError(t, err)

	ok, err = repo.CancelPending(ctx, j.ID)
	require.NoError(t, err)
	assert.False(t, ok, "plain cancel must refuse a processing job")

	require.NoError(t, repo.MarkCompleted(ctx, j.ID, datatypes.JSON(`{"imageUrl":"s3://x.png"}`)))
	first, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)

	err = repo.MarkCompleted(ctx, j.ID, datatypes.JSON(`{"imageUrl":"s3://y.png"}`))
	assert.ErrorIs(t, err, common.ErrInvalidTransition)
	err = repo.MarkFailed(ctx, j.ID, "late failure")
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	second, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, config.JobStatusCompleted, second.Status)
	assert.True(t, first.CompletedAt.Equal(*second.CompletedAt))
	assert.JSONEq(t, `{"imageUrl":"s3://x.png"}`, string(second.Result))
	assert.Nil(t, second.Error)
	assert.Nil(t, second.FailedAt)
}

func TestJobService_AgainstPostgres(t *testing.T) {
	db, ctx := setupTestDB(t)
	repo := postgres.NewJobRepository(db)
	svc := job.NewJobService(repo, nil, nil)

	orderID := "order-7"
	id, err := svc.Enqueue(ctx, &dto.JobCreateDTO{
		Type:    config.JobTypePrintPDF,
		Payload: json.RawMessage(`{"orderId":"order-7","cropMarks":true}`),
		OrderID: &orderID,
	})
	require.NoError(t, err)

	// simulate a worker that dies mid-job
	claimed, err := repo.ClaimNextPending(ctx, nil)
	require.NoError(t, err)
	require.Equal(t, id, claimed.ID)

	stuck, err := svc.ListStuckJobs(ctx, time.Nanosecond)
	require.NoError(t, err)
	require.Len(t, stuck, 1)

	ok, err := svc.ForceCancelJob(ctx, id)
	require.NoError(t, err)
	require.True(t, ok)

	err = repo.MarkCompleted(ctx, id, datatypes.JSON(`{"late":true}`))
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	newID, err := svc.RetriggerJob(ctx, id)
	require.NoError(t, err)

	list, err := svc.ListJobs(ctx, dto.JobFilter{OrderID: orderID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), list.Total)
	assert.Equal(t, newID, list.Jobs[0].ID)
	assert.Equal(t, config.JobStatusCancelled, list.Jobs[1].Status)

	stats, err := svc.GetJobStats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Cancelled)

	deleted, err := svc.ClearJobs(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = svc.GetJobStatus(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

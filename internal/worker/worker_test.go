package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/storyprint/printqueue/common"
	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/mocks"
	"github.com/storyprint/printqueue/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/datatypes"
)

func claimedJob() *models.Job {
	return &models.Job{
		ID:       "job-1",
		Type:     config.JobTypeSceneImage,
		Status:   config.JobStatusProcessing,
		Payload:  datatypes.JSON(`{"sceneId":"s1"}`),
		Attempts: 1,
	}
}

func newTestWorker(store JobStore, h HandlerFunc, opts Options) *Worker {
	reg := NewRegistry()
	if h != nil {
		reg.Register(config.JobTypeSceneImage, h)
	}
	return NewWorker(1, store, reg, opts)
}

var sceneTypes = []config.JobType{config.JobTypeSceneImage}

func TestWorker_ProcessNext(t *testing.T) {
	tests := []struct {
		name      string
		handler   HandlerFunc
		opts      Options
		setupMock func(*mocks.JobRepoMock)
		claimed   bool
	}{
		{
			name:    "empty queue",
			handler: func(context.Context, datatypes.JSON) (any, error) { return nil, nil },
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything, sceneTypes).Return(nil, nil)
			},
			claimed: false,
		},
		{
			name:      "no registered handlers claims nothing",
			handler:   nil,
			setupMock: func(m *mocks.JobRepoMock) {},
			claimed:   false,
		},
		{
			name:    "claim error",
			handler: func(context.Context, datatypes.JSON) (any, error) { return nil, nil },
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything, sceneTypes).
					Return(nil, fmt.Errorf("claim job: %w", common.ErrStore))
			},
			claimed: false,
		},
		{
			name: "handler success records result",
			handler: func(_ context.Context, payload datatypes.JSON) (any, error) {
				return map[string]string{"imageUrl": "s3://scene.png"}, nil
			},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything, sceneTypes).Return(claimedJob(), nil)
				m.On("MarkCompleted", mock.Anything, "job-1", datatypes.JSON(`{"imageUrl":"s3://scene.png"}`)).Return(nil)
			},
			claimed: true,
		},
		{
			name:    "nil result stored as null",
			handler: func(context.Context, datatypes.JSON) (any, error) { return nil, nil },
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything, sceneTypes).Return(claimedJob(), nil)
				m.On("MarkCompleted", mock.Anything, "job-1", datatypes.JSON(nil)).Return(nil)
			},
			claimed: true,
		},
		{
			name: "handler error fails the job",
			handler: func(context.Context, datatypes.JSON) (any, error) {
				return nil, errors.New("image provider unavailable")
			},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything, sceneTypes).Return(claimedJob(), nil)
				m.On("MarkFailed", mock.Anything, "job-1", "image provider unavailable").Return(nil)
			},
			claimed: true,
		},
		{
			name: "handler panic fails the job",
			handler: func(context.Context, datatypes.JSON) (any, error) {
				panic("boom")
			},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything, sceneTypes).Return(claimedJob(), nil)
				m.On("MarkFailed", mock.Anything, "job-1", "handler panic: boom").Return(nil)
			},
			claimed: true,
		},
		{
			name: "unencodable result fails the job",
			handler: func(context.Context, datatypes.JSON) (any, error) {
				return make(chan int), nil
			},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything, sceneTypes).Return(claimedJob(), nil)
				m.On("MarkFailed", mock.Anything, "job-1", mock.MatchedBy(func(msg string) bool {
					return strings.HasPrefix(msg, "encode result:")
				})).Return(nil)
			},
			claimed: true,
		},
		{
			name: "handler timeout fails the job",
			handler: func(ctx context.Context, _ datatypes.JSON) (any, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			opts: Options{HandlerTimeout: 20 * time.Millisecond},
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything, sceneTypes).Return(claimedJob(), nil)
				m.On("MarkFailed", mock.Anything, "job-1", context.DeadlineExceeded.Error()).Return(nil)
			},
			claimed: true,
		},
		{
			name:    "late write back rejected by the store is dropped",
			handler: func(context.Context, datatypes.JSON) (any, error) { return map[string]int{"n": 1}, nil },
			setupMock: func(m *mocks.JobRepoMock) {
				m.On("ClaimNextPending", mock.Anything, sceneTypes).Return(claimedJob(), nil)
				m.On("MarkCompleted", mock.Anything, "job-1", mock.Anything).
					Return(fmt.Errorf("mark completed job-1: %w", common.ErrInvalidTransition))
			},
			claimed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mocks.JobRepoMock)
			tt.setupMock(store)

			w := newTestWorker(store, tt.handler, tt.opts)

			assert.Equal(t, tt.claimed, w.ProcessNext(context.Background()))
			store.AssertExpectations(t)
		})
	}
}

func TestWorker_ProcessNext_UnregisteredType(t *testing.T) {
	store := new(mocks.JobRepoMock)
	job := claimedJob()
	job.Type = config.JobTypePrintPDF
	store.On("ClaimNextPending", mock.Anything, sceneTypes).Return(job, nil)
	store.On("MarkFailed", mock.Anything, "job-1", `no handler registered for job type "print-pdf"`).Return(nil)

	w := newTestWorker(store, func(context.Context, datatypes.JSON) (any, error) { return nil, nil }, Options{})

	assert.True(t, w.ProcessNext(context.Background()))
	store.AssertExpectations(t)
}

func TestWorker_WriteBackSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	store := new(mocks.JobRepoMock)
	store.On("ClaimNextPending", mock.Anything, sceneTypes).Return(claimedJob(), nil)
	store.On("MarkCompleted", mock.MatchedBy(func(c context.Context) bool {
		return c.Err() == nil
	}), "job-1", mock.Anything).Return(nil)

	w := newTestWorker(store, func(context.Context, datatypes.JSON) (any, error) {
		cancel()
		return map[string]bool{"ok": true}, nil
	}, Options{})

	assert.True(t, w.ProcessNext(ctx))
	store.AssertExpectations(t)
}

func TestWorker_LoopSurvivesFailures(t *testing.T) {
	store := new(mocks.JobRepoMock)
	first := claimedJob()
	second := claimedJob()
	second.ID = "job-2"
	completed := make(chan struct{})

	store.On("ClaimNextPending", mock.Anything, sceneTypes).Return(first, nil).Once()
	store.On("ClaimNextPending", mock.Anything, sceneTypes).Return(second, nil).Once()
	store.On("ClaimNextPending", mock.Anything, sceneTypes).Return(nil, nil)
	store.On("MarkFailed", mock.Anything, "job-1", "handler panic: bad scene").Return(nil)
	store.On("MarkCompleted", mock.Anything, "job-2", mock.Anything).
		Run(func(mock.Arguments) { close(completed) }).
		Return(nil)

	calls := 0
	w := newTestWorker(store, func(context.Context, datatypes.JSON) (any, error) {
		calls++
		if calls == 1 {
			panic("bad scene")
		}
		return map[string]int{"n": calls}, nil
	}, Options{PollInterval: time.Hour})

	w.Start(context.Background())

	select {
	case <-completed:
	case <-time.After(2 * time.Second):
		t.Fatal("second job was never completed")
	}

	w.Stop()
	store.AssertExpectations(t)
}

func TestWorker_WakeCutsSleepShort(t *testing.T) {
	var claims atomic.Int32
	store := new(mocks.JobRepoMock)
	store.On("ClaimNextPending", mock.Anything, sceneTypes).
		Run(func(mock.Arguments) { claims.Add(1) }).
		Return(nil, nil)

	w := newTestWorker(store, func(context.Context, datatypes.JSON) (any, error) { return nil, nil }, Options{PollInterval: time.Hour})
	w.Start(context.Background())
	defer w.Stop()

	// initial poll
	assert.Eventually(t, func() bool { return claims.Load() == 1 }, time.Second, 5*time.Millisecond)

	w.Wake()
	assert.Eventually(t, func() bool { return claims.Load() == 2 }, time.Second, 5*time.Millisecond)

	// repeated wakes never block the caller
	for range 10 {
		w.Wake()
	}
}

func TestWorker_StopAndContext(t *testing.T) {
	store := new(mocks.JobRepoMock)
	store.On("ClaimNextPending", mock.Anything, sceneTypes).Return(nil, nil)

	t.Run("stop is idempotent", func(t *testing.T) {
		w := newTestWorker(store, func(context.Context, datatypes.JSON) (any, error) { return nil, nil }, Options{PollInterval: time.Hour})
		w.Start(context.Background())
		w.Stop()
		w.Stop()

		select {
		case <-w.Done():
		default:
			t.Fatal("worker loop still running")
		}
	})

	t.Run("context cancellation ends the loop", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		w := newTestWorker(store, func(context.Context, datatypes.JSON) (any, error) { return nil, nil }, Options{PollInterval: time.Hour})
		w.Start(ctx)
		cancel()

		select {
		case <-w.Done():
		case <-time.After(time.Second):
			t.Fatal("worker loop did not exit")
		}
	})
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	assert.Empty(t, reg.Types())

	noop := func(context.Context, datatypes.JSON) (any, error) { return nil, nil }
	reg.Register(config.JobTypePrintPDF, noop)
	reg.Register(config.JobTypePreviewRender, noop)

	assert.Equal(t, []config.JobType{config.JobTypePreviewRender, config.JobTypePrintPDF}, reg.Types())

	_, ok := reg.Lookup(config.JobTypePrintPDF)
	assert.True(t, ok)
	_, ok = reg.Lookup(config.JobTypeSceneImage)
	assert.False(t, ok)
}

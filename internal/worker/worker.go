package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/storyprint/printqueue/common"
	"github.com/storyprint/printqueue/internal/config"
	"github.com/storyprint/printqueue/internal/models"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// writeBackTimeout bounds recording a finished job's outcome.
const writeBackTimeout = 10 * time.Second

// JobStore is the part of the job store a worker needs.
type JobStore interface {
	ClaimNextPending(ctx context.Context, types []config.JobType) (*models.Job, error)
	MarkCompleted(ctx context.Context, id string, result datatypes.JSON) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
}

type Options struct {
	// PollInterval is the idle sleep between claim attempts.
	PollInterval time.Duration
	// HandlerTimeout bounds a single handler run. Zero means no bound.
	HandlerTimeout time.Duration
	Logger         *zap.Logger
}

type Worker struct {
	ID             int
	store          JobStore
	registry       *Registry
	pollInterval   time.Duration
	handlerTimeout time.Duration
	log            *zap.Logger

	wake     chan struct{}
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewWorker(id int, store JobStore, registry *Registry, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Worker{
		ID:             id,
		store:          store,
		registry:       registry,
		pollInterval:   opts.PollInterval,
		handlerTimeout: opts.HandlerTimeout,
		log:            opts.Logger.With(zap.Int("worker_id", id)),
		wake:           make(chan struct{}, 1),
		quit:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// Start runs the poll loop in a new goroutine until Stop is called or ctx is
// done. Handlers receive a context derived from ctx.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)

		w.log.Info("worker started",
			zap.Duration("poll_interval", w.pollInterval),
			zap.Any("types", w.registry.Types()),
		)

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-timer.C:
			case <-w.wake:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			case <-w.quit:
				w.log.Info("worker stopped")
				return
			case <-ctx.Done():
				w.log.Info("worker context done", zap.Error(ctx.Err()))
				return
			}

			// drain the queue before sleeping again
			for w.running(ctx) {
				if !w.ProcessNext(ctx) {
					break
				}
			}

			timer.Reset(w.pollInterval)
		}
	}()
}

func (w *Worker) running(ctx context.Context) bool {
	select {
	case <-w.quit:
		return false
	case <-ctx.Done():
		return false
	default:
		return true
	}
}

// Wake cuts the current idle sleep short. It never blocks; wakes that
// arrive while one is already pending are merged.
func (w *Worker) Wake() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Stop asks the loop to exit after the job in flight, if any, and waits for
// it to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.quit) })
	<-w.done
}

// Done is closed once the poll loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// ProcessNext claims one job, runs its handler and records the outcome. It
// reports whether a job was claimed.
func (w *Worker) ProcessNext(ctx context.Context) bool {
	types := w.registry.Types()
	if len(types) == 0 {
		return false
	}

	job, err := w.store.ClaimNextPending(ctx, types)
	if err != nil {
		if ctx.Err() == nil {
			w.log.Error("claim failed", zap.Error(err))
		}
		return false
	}
	if job == nil {
		return false
	}

	log := w.log.With(
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.Int("attempt", job.Attempts),
	)
	log.Info("job claimed")

	start := time.Now()
	res, err := w.execute(ctx, job)
	if err != nil {
		herr := &common.HandlerError{JobID: job.ID, Type: string(job.Type), Err: err}
		log.Warn("job failed", zap.Error(herr), zap.Duration("took", time.Since(start)))
		w.markFailed(ctx, log, job.ID, err.Error())
		return true
	}

	var result datatypes.JSON
	if res != nil {
		b, err := json.Marshal(res)
		if err != nil {
			w.markFailed(ctx, log, job.ID, fmt.Sprintf("encode result: %v", err))
			return true
		}
		result = datatypes.JSON(b)
	}

	if err := w.writeBack(ctx, func(wctx context.Context) error {
		return w.store.MarkCompleted(wctx, job.ID, result)
	}); err != nil {
		logWriteBackError(log, "mark completed", err)
		return true
	}

	log.Info("job completed", zap.Duration("took", time.Since(start)))
	return true
}

// execute runs the registered handler. A panic inside the handler is turned
// into an error so it fails only this job.
func (w *Worker) execute(ctx context.Context, job *models.Job) (res any, err error) {
	h, ok := w.registry.Lookup(job.Type)
	if !ok {
		return nil, fmt.Errorf("no handler registered for job type %q", job.Type)
	}

	if w.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.handlerTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("handler panic: %v", r)
		}
	}()

	return h(ctx, job.Payload)
}

func (w *Worker) markFailed(ctx context.Context, log *zap.Logger, id, msg string) {
	if err := w.writeBack(ctx, func(wctx context.Context) error {
		return w.store.MarkFailed(wctx, id, msg)
	}); err != nil {
		logWriteBackError(log, "mark failed", err)
	}
}

// writeBack records an outcome on a context that survives worker shutdown,
// so a job that finished is never left processing.
func (w *Worker) writeBack(ctx context.Context, fn func(context.Context) error) error {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
	defer cancel()
	return fn(wctx)
}

func logWriteBackError(log *zap.Logger, op string, err error) {
	if errors.Is(err, common.ErrInvalidTransition) {
		// force-cancelled or otherwise finished while the handler ran
		log.Warn("job no longer processing, outcome dropped", zap.String("op", op), zap.Error(err))
		return
	}
	log.Error("failed to record job outcome", zap.String("op", op), zap.Error(err))
}

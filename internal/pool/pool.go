package pool

import (
	"context"
	"sync"
	"time"

	"github.com/storyprint/printqueue/internal/models"
	"github.com/storyprint/printqueue/internal/worker"
	"go.uber.org/zap"
)

// Store is what the pool needs from the job store: the worker operations
// plus read-only access to long-running jobs.
type Store interface {
	worker.JobStore
	ListStuck(ctx context.Context, olderThan time.Duration) ([]models.Job, error)
}

type Options struct {
	Concurrency    int
	PollInterval   time.Duration
	HandlerTimeout time.Duration
	// StuckAfter is how long a job may stay processing before it is reported.
	StuckAfter time.Duration
	// StuckCheckInterval is how often the reporter looks. Defaults to 1m.
	StuckCheckInterval time.Duration
	Logger             *zap.Logger
}

type WorkerPool struct {
	workers    []*worker.Worker
	store      Store
	stuckAfter time.Duration
	checkEvery time.Duration
	log        *zap.Logger

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewWorkerPool(store Store, reg *worker.Registry, opts Options) *WorkerPool {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.StuckAfter <= 0 {
		opts.StuckAfter = 30 * time.Minute
	}
	if opts.StuckCheckInterval <= 0 {
		opts.StuckCheckInterval = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		store:      store,
		stuckAfter: opts.StuckAfter,
		checkEvery: opts.StuckCheckInterval,
		log:        opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 1; i <= opts.Concurrency; i++ {
		p.workers = append(p.workers, worker.NewWorker(i, store, reg, worker.Options{
			PollInterval:   opts.PollInterval,
			HandlerTimeout: opts.HandlerTimeout,
			Logger:         opts.Logger,
		}))
	}
	return p
}

func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		w.Start(p.ctx)
	}

	p.wg.Add(1)
	go p.reporter()
}

// Wake interrupts the idle sleep of every worker.
func (p *WorkerPool) Wake() {
	for _, w := range p.workers {
		w.Wake()
	}
}

// Notify lets the pool act as the queue client's notifier when the API and
// the workers share a process.
func (p *WorkerPool) Notify() {
	p.Wake()
}

func (p *WorkerPool) reporter() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.ReportStuck(p.ctx)
		case <-p.ctx.Done():
			return
		}
	}
}

// ReportStuck logs every job processing for longer than the stuck
// threshold and returns how many it found. Jobs are left untouched;
// recovering them is an operator decision (force-cancel).
func (p *WorkerPool) ReportStuck(ctx context.Context) int {
	stuck, err := p.store.ListStuck(ctx, p.stuckAfter)
	if err != nil {
		if ctx.Err() == nil {
			p.log.Error("stuck job check failed", zap.Error(err))
		}
		return 0
	}

	now := time.Now()
	for _, j := range stuck {
		fields := []zap.Field{
			zap.String("job_id", j.ID),
			zap.String("type", string(j.Type)),
			zap.Int("attempts", j.Attempts),
		}
		if j.StartedAt != nil {
			fields = append(fields, zap.Time("started_at", *j.StartedAt), zap.Duration("running_for", now.Sub(*j.StartedAt)))
		}
		p.log.Warn("job stuck in processing", fields...)
	}
	return len(stuck)
}

// Stop lets every worker finish its current job and exit. If ctx ends
// first, running handlers are cancelled and ctx.Err is returned once the
// workers have exited.
func (p *WorkerPool) Stop(ctx context.Context) error {
	stopped := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, w := range p.workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Stop()
			}()
		}
		wg.Wait()
		close(stopped)
	}()

	var err error
	select {
	case <-stopped:
	case <-ctx.Done():
		err = ctx.Err()
		p.log.Warn("shutdown deadline reached, cancelling running jobs")
	}

	p.cancel()
	<-stopped
	p.wg.Wait()
	return err
}

package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/litgraph/litgraph/pkg/logger"
)

// Worker claims and processes jobs one at a time. The store is the
// only synchronization point between workers.
type Worker struct {
	id           string
	store        Store
	registry     *Registry
	pollInterval time.Duration
	log          *slog.Logger

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewWorker creates a single worker loop.
func NewWorker(id string, store Store, registry *Registry, pollInterval time.Duration, log *slog.Logger) *Worker {
	return &Worker{
		id:           id,
		store:        store,
		registry:     registry,
		pollInterval: pollInterval,
		log:          log.With(logger.Scope("worker"), slog.String("worker_id", id)),
		stopCh:       make(chan struct{}),
		stoppedCh:    make(chan struct{}),
	}
}

// ID returns the worker's queue identity.
func (w *Worker) ID() string { return w.id }

// Run loops until Stop: claim, dispatch, complete. An empty queue
// sleeps for the poll interval. A handler panic fails the job but
// keeps the worker alive.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.stoppedCh)
	w.log.Info("worker started")

	for {
		select {
		case <-w.stopCh:
			w.log.Info("worker stopped")
			return
		default:
		}

		job, err := w.store.Claim(ctx, w.id)
		if err != nil {
			w.log.Error("claim failed", logger.Error(err))
			w.sleep()
			continue
		}
		if job == nil {
			w.sleep()
			continue
		}
		w.processJob(ctx, job)
	}
}

// Stop signals the loop to exit after the in-flight job finishes.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// Done is closed once the loop has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.stoppedCh
}

func (w *Worker) sleep() {
	select {
	case <-w.stopCh:
	case <-time.After(w.pollInterval):
	}
}

func (w *Worker) processJob(ctx context.Context, job *Job) {
	log := w.log.With(
		slog.String("job_id", job.ID.String()),
		slog.String("kind", string(job.Kind)),
	)
	log.Info("processing job",
		slog.Int("attempt", job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
	)
	start := time.Now()

	result, err := w.dispatch(ctx, job)
	if err != nil {
		if cerr := w.store.Complete(ctx, job.ID, w.id, StatusFailed, nil, err.Error()); cerr != nil {
			log.Error("complete(failed) rejected", logger.Error(cerr))
		}
		log.Error("job failed",
			slog.Duration("duration", time.Since(start)),
			logger.Error(err),
		)
		return
	}

	if cerr := w.store.Complete(ctx, job.ID, w.id, StatusCompleted, result, ""); cerr != nil {
		log.Error("complete(completed) rejected", logger.Error(cerr))
		return
	}
	log.Info("job completed", slog.Duration("duration", time.Since(start)))
}

func (w *Worker) dispatch(ctx context.Context, job *Job) (result JSONMap, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.registry.Handle(ctx, job)
}

// PoolConfig tunes the worker pool.
type PoolConfig struct {
	Workers      int
	PollInterval time.Duration
	StaleAfter   time.Duration
}

// Pool runs N workers plus the periodic stale-claim sweeper.
type Pool struct {
	store    Store
	registry *Registry
	cfg      PoolConfig
	log      *slog.Logger

	workers []*Worker
	wg      sync.WaitGroup
	cron    *cron.Cron
}

// NewPool creates a worker pool.
func NewPool(store Store, registry *Registry, cfg PoolConfig, log *slog.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 30 * time.Minute
	}
	return &Pool{
		store:    store,
		registry: registry,
		cfg:      cfg,
		log:      log.With(logger.Scope("pool")),
	}
}

// Start launches the workers and the sweeper.
func (p *Pool) Start(ctx context.Context) error {
	p.log.Info("starting workers",
		slog.Int("count", p.cfg.Workers),
		slog.Duration("poll_interval", p.cfg.PollInterval),
	)

	for i := 0; i < p.cfg.Workers; i++ {
		id := fmt.Sprintf("worker-%d-%s", i+1, shortID())
		w := NewWorker(id, p.store, p.registry, p.cfg.PollInterval, p.log)
		p.workers = append(p.workers, w)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			w.Run(ctx)
		}()
	}

	p.cron = cron.New()
	if _, err := p.cron.AddFunc("@every 1m", func() {
		if _, err := p.store.RecoverStale(context.Background(), p.cfg.StaleAfter); err != nil {
			p.log.Error("stale job recovery failed", logger.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule stale sweeper: %w", err)
	}
	p.cron.Start()

	return nil
}

// Stop drains the pool: workers finish their current job, then exit.
// Returns early with the context error if the drain outlives ctx.
func (p *Pool) Stop(ctx context.Context) error {
	p.log.Info("stopping workers")
	if p.cron != nil {
		p.cron.Stop()
	}
	for _, w := range p.workers {
		w.Stop()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("all workers stopped")
		return nil
	case <-ctx.Done():
		p.log.Warn("shutdown timed out with workers still running")
		return ctx.Err()
	}
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
}

// Package jobs runs the background worker pool that claims queued generation
// jobs and dispatches them to registered pipeline handlers.
package jobs

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/jobs/runtime"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/repos"
)

const (
	claimInterval     = 1 * time.Second
	heartbeatInterval = 30 * time.Second
	maxAttempts       = 3
	retryDelay        = 30 * time.Second
	staleRunning      = 2 * time.Minute
)

type Worker struct {
	db          *gorm.DB
	log         *logger.Logger
	repo        repos.GenerationJobRepo
	registry    *runtime.Registry
	notify      runtime.Notifier
	concurrency int
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.GenerationJobRepo, registry *runtime.Registry, notify runtime.Notifier, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		db:          db,
		log:         baseLog.With("component", "JobWorker"),
		repo:        repo,
		registry:    registry,
		notify:      notify,
		concurrency: concurrency,
	}
}

// Start launches the worker pool. Each slot polls for claimable jobs and runs
// at most one at a time, so concurrency bounds in-flight LLM generations.
// Returns immediately; the pool drains when ctx is canceled.
func (w *Worker) Start(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		slot := i
		g.Go(func() error {
			w.runLoop(gctx, slot)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		w.log.Info("job worker pool stopped")
	}()
}

func (w *Worker) runLoop(ctx context.Context, slot int) {
	ticker := time.NewTicker(claimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job, err := w.repo.ClaimNextRunnable(ctx, w.db, maxAttempts, retryDelay, staleRunning)
			if err != nil {
				w.log.Warn("claim next runnable failed", "slot", slot, "error", err)
				continue
			}
			if job == nil {
				continue
			}
			w.execute(ctx, job)
		}
	}
}

func (w *Worker) execute(ctx context.Context, job *domain.GenerationJob) {
	jc := runtime.NewContext(ctx, w.db, job, w.repo, w.notify)

	h, ok := w.registry.Get(job.JobType)
	if !ok {
		w.log.Warn("no handler registered", "job_type", job.JobType, "job_id", job.ID)
		jc.Fail("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
		return
	}

	// Heartbeat while the handler runs so a healthy long generation is not
	// mistaken for a stale one and reclaimed.
	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				if err := w.repo.Heartbeat(hbCtx, w.db, job.ID); err != nil {
					w.log.Warn("heartbeat failed", "job_id", job.ID, "error", err)
				}
			}
		}
	}()
	defer stopHeartbeat()

	defer func() {
		if r := recover(); r != nil {
			w.log.Error("job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
			jc.Fail("panic", fmt.Errorf("内部错误：任务执行异常"))
		}
	}()

	if err := h.Run(jc); err != nil {
		// Handlers normally call Fail themselves with a stage; this is the
		// backstop for errors that escaped.
		if job.Status != domain.JobStatusFailed && job.Status != domain.JobStatusCompleted {
			jc.Fail(domain.StageError, err)
		}
	}
}

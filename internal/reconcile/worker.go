package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/packwise/internal/model"
	"github.com/dukerupert/packwise/internal/store"
)

// Worker drains the reconcile_jobs queue on a ticker. A job whose lists
// partly fail goes back to pending narrowed to the failed lists until it
// runs out of attempts.
type Worker struct {
	mu          sync.RWMutex
	engine      *Engine
	jobs        *store.ReconcileJobStore
	interval    time.Duration
	maxAttempts int
	batch       int
	onFinish    func(*model.ReconcileJob, *Report)
	logger      *slog.Logger
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewWorker(engine *Engine, jobs *store.ReconcileJobStore, interval time.Duration, maxAttempts int, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Worker{
		engine:      engine,
		jobs:        jobs,
		interval:    interval,
		maxAttempts: maxAttempts,
		batch:       20,
		logger:      logger.With("component", "reconcile_worker"),
	}
}

// OnFinish registers fn to run after each processed attempt.
func (w *Worker) OnFinish(fn func(*model.ReconcileJob, *Report)) {
	w.mu.Lock()
	w.onFinish = fn
	w.mu.Unlock()
}

// Start begins the worker loop. Jobs left running by a previous process
// are returned to the queue first.
func (w *Worker) Start(ctx context.Context) {
	if n, err := w.jobs.ResetRunning(ctx); err != nil {
		w.logger.Error("reset running jobs", "error", err)
	} else if n > 0 {
		w.logger.Warn("requeued interrupted jobs", "count", n)
	}

	w.mu.Lock()
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.RunOnce(ctx)
			}
		}
	}()
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() {
	w.mu.RLock()
	cancel := w.cancel
	done := w.done
	w.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunOnce processes one batch of pending jobs and returns how many it ran.
func (w *Worker) RunOnce(ctx context.Context) int {
	jobs, err := w.jobs.ListPending(ctx, w.batch)
	if err != nil {
		w.logger.Error("list pending jobs", "error", err)
		return 0
	}

	ran := 0
	for i := range jobs {
		if ctx.Err() != nil {
			return ran
		}
		if w.process(ctx, &jobs[i]) {
			ran++
		}
	}
	return ran
}

func (w *Worker) process(ctx context.Context, job *model.ReconcileJob) bool {
	claimed, err := w.jobs.Claim(ctx, job.ID)
	if err != nil {
		w.logger.Error("claim job", "job_id", job.ID, "error", err)
		return false
	}
	if !claimed {
		return false
	}
	attempt := job.Attempts + 1

	// A nil ListIDs reaches every subscribed list; a retry carries only
	// the lists that failed before.
	delta := Delta{TemplateID: job.TemplateID, ToAdd: job.ToAdd, ToRemove: job.ToRemove}
	report := w.engine.Apply(ctx, delta, job.ActorUserID, job.ListIDs)

	status := model.JobDone
	lastError := ""
	if err := report.Err(); err != nil {
		lastError = err.Error()
		switch {
		case attempt < w.maxAttempts:
			status = model.JobPending
		case len(report.Succeeded) > 0 || job.ListIDs != nil:
			status = model.JobPartial
		default:
			status = model.JobFailed
		}
	}

	if err := w.jobs.Finish(ctx, job.ID, status, report.Failed, lastError); err != nil {
		w.logger.Error("finish job", "job_id", job.ID, "error", err)
		return true
	}
	w.logger.Info("job processed", "job_id", job.ID, "template_id", job.TemplateID,
		"attempt", attempt, "status", status, "failed", len(report.Failed))

	job.Attempts = attempt
	job.Status = status
	job.FailedListIDs = report.Failed
	job.LastError = lastError

	w.mu.RLock()
	fn := w.onFinish
	w.mu.RUnlock()
	if fn != nil {
		fn(job, report)
	}
	return true
}

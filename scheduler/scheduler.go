package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultShutdownWait bounds how long Stop waits for in-flight runs.
const DefaultShutdownWait = 30 * time.Second

// ErrShutdownTimeout is returned by Stop when a job run outlives the
// shutdown wait.
var ErrShutdownTimeout = errors.New("scheduler: jobs still running after shutdown wait")

// Job is one periodic task.
type Job struct {
	// Name identifies the job in logs.
	Name string

	// Interval is the pause between run starts. Required.
	Interval time.Duration

	// Run executes one pass. A returned error is logged, never fatal to
	// the schedule.
	Run func(ctx context.Context) error
}

// Options configures a Runner.
type Options struct {
	Jobs []Job

	// ShutdownWait bounds Stop. Default: 30s.
	ShutdownWait time.Duration

	// Logger receives job events. Default: slog.Default().
	Logger *slog.Logger
}

// Runner executes jobs on their intervals until stopped.
type Runner struct {
	jobs         []Job
	shutdownWait time.Duration
	logger       *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// NewRunner validates the options and applies defaults.
func NewRunner(opts Options) (*Runner, error) {
	for _, job := range opts.Jobs {
		if job.Name == "" || job.Run == nil {
			return nil, errors.New("scheduler: every job needs a name and a run function")
		}
		if job.Interval <= 0 {
			return nil, fmt.Errorf("scheduler: job %s needs a positive interval", job.Name)
		}
	}
	if opts.ShutdownWait <= 0 {
		opts.ShutdownWait = DefaultShutdownWait
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Runner{
		jobs:         opts.Jobs,
		shutdownWait: opts.ShutdownWait,
		logger:       opts.Logger.With("component", "scheduler"),
	}, nil
}

// Start launches one goroutine per job. Starting an already-started runner
// is an error.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.New("scheduler: already started")
	}
	r.started = true

	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})

	var wg sync.WaitGroup
	for _, job := range r.jobs {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()
			r.runJob(ctx, job)
		}(job)
	}
	go func() {
		wg.Wait()
		close(r.done)
	}()

	r.logger.Info("scheduler started", "jobs", len(r.jobs))
	return nil
}

func (r *Runner) runJob(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	logger := r.logger.With("job", job.Name)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("job run failed", "error", err, "duration", time.Since(start))
			continue
		}
		logger.Debug("job run finished", "duration", time.Since(start))
	}
}

// Stop cancels the job contexts and waits up to the shutdown bound for
// in-flight runs to finish. Stopping a runner that never started is a
// no-op.
func (r *Runner) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	cancel, done := r.cancel, r.done
	r.mu.Unlock()

	cancel()
	select {
	case <-done:
		r.logger.Info("scheduler stopped")
		return nil
	case <-time.After(r.shutdownWait):
		r.logger.Error("scheduler shutdown timed out", "wait", r.shutdownWait)
		return ErrShutdownTimeout
	}
}

package sim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sourcegraph/conc/pool"
)

// Runner fans engine jobs out across states. RunAll returns only after
// every job has finished.
type Runner struct {
	engine    Engine
	parallel  int
	logger    *slog.Logger
	observers []Observer
}

// NewRunner returns a runner executing at most parallel jobs at once.
// Values below two run jobs one after another.
func NewRunner(engine Engine, parallel int, logger *slog.Logger) *Runner {
	if parallel < 1 {
		parallel = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: engine, parallel: parallel, logger: logger}
}

func (r *Runner) AddObserver(o Observer) { r.observers = append(r.observers, o) }

func (r *Runner) Parallel() int { return r.parallel }

func (r *Runner) RunAll(ctx context.Context, jobs []Job) ([]Result, error) {
	results := make([]Result, len(jobs))

	if r.parallel == 1 {
		for i, job := range jobs {
			results[i] = r.run(ctx, job)
			if results[i].Err != nil {
				return results[:i+1], results[i].Err
			}
		}
		return results, nil
	}

	p := pool.New().
		WithMaxGoroutines(r.parallel).
		WithContext(ctx).
		WithCancelOnError()
	for i, job := range jobs {
		i, job := i, job
		p.Go(func(ctx context.Context) error {
			results[i] = r.run(ctx, job)
			return results[i].Err
		})
	}
	if err := p.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) run(ctx context.Context, job Job) Result {
	start := time.Now()
	err := ctx.Err()
	if err == nil {
		err = r.engine.Run(ctx, job)
	}
	if err != nil {
		err = fmt.Errorf("run state %s: %w", job.StateID, err)
	}

	res := Result{StateID: job.StateID, Duration: time.Since(start), Err: err}
	r.logger.Info("engine run complete", "state", job.StateID, "elapsed", res.Duration.Round(time.Millisecond), "ok", err == nil)
	for _, o := range r.observers {
		o.OnJobDone(res)
	}
	return res
}

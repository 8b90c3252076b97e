// Package sim runs the external molecular dynamics engine for each state of
// an optimization.
package sim

import (
	"context"
	"time"
)

// Job is one engine invocation: a run script inside a state directory.
type Job struct {
	StateID string
	Dir     string
	Script  string
	Output  string
}

// Engine executes a prepared run script. Implementations must block until
// the output trajectory is complete or the run failed.
type Engine interface {
	Run(ctx context.Context, job Job) error
}

// EngineFunc adapts a function to the Engine interface.
type EngineFunc func(ctx context.Context, job Job) error

func (f EngineFunc) Run(ctx context.Context, job Job) error { return f(ctx, job) }

// Observer is notified after each job. With a parallel runner OnJobDone is
// called from several goroutines.
type Observer interface {
	OnJobDone(r Result)
}

type Result struct {
	StateID  string
	Duration time.Duration
	Err      error
}

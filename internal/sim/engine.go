package sim

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/san-kum/msibi/internal/ibi"
)

const (
	LogFile        = "engine.log"
	maxStderrLines = 20
)

var DefaultCommand = []string{"python3"}

// CommandEngine runs Command followed by the script name inside the job's
// state directory. Stdout and stderr go to engine.log; the tail of stderr
// is attached to the error of a failed run.
type CommandEngine struct {
	Command []string
	Env     []string
	Logger  *slog.Logger

	buffers *BufferPool
}

func NewCommandEngine(command []string, logger *slog.Logger) *CommandEngine {
	if len(command) == 0 {
		command = DefaultCommand
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandEngine{
		Command: append([]string(nil), command...),
		Logger:  logger,
		buffers: NewBufferPool(),
	}
}

func (e *CommandEngine) Run(ctx context.Context, job Job) error {
	if len(e.Command) == 0 {
		return ibi.Configf("engine command must not be empty")
	}
	if e.buffers == nil {
		e.buffers = NewBufferPool()
	}

	logPath := filepath.Join(job.Dir, LogFile)
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("%w: open engine log: %v", ibi.ErrEngine, err)
	}
	defer logFile.Close()

	stderr := e.buffers.Get()
	defer e.buffers.Put(stderr)

	args := append(append([]string(nil), e.Command[1:]...), job.Script)
	cmd := exec.CommandContext(ctx, e.Command[0], args...)
	cmd.Dir = job.Dir
	cmd.Stdout = logFile
	cmd.Stderr = &teeWriter{a: logFile, b: stderr}
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	start := time.Now()
	e.Logger.Debug("engine started", "state", job.StateID, "command", strings.Join(cmd.Args, " "))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: state %s: %v: %s", ibi.ErrEngine, job.StateID, err, tail(stderr.String(), maxStderrLines))
	}

	if job.Output != "" {
		if _, err := os.Stat(job.Output); err != nil {
			return fmt.Errorf("%w: state %s: engine produced no trajectory at %s", ibi.ErrEngine, job.StateID, job.Output)
		}
	}
	e.Logger.Debug("engine finished", "state", job.StateID, "elapsed", time.Since(start))
	return nil
}

type teeWriter struct {
	a, b interface{ Write([]byte) (int, error) }
}

func (t *teeWriter) Write(p []byte) (int, error) {
	if _, err := t.b.Write(p); err != nil {
		return 0, err
	}
	return t.a.Write(p)
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

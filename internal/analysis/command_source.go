package analysis

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/san-kum/msibi/internal/ibi"
)

// CommandSource computes distributions by running an external analysis
// program. The request is appended to Command as flags and the program must
// print a two-column (x, P) table on stdout.
type CommandSource struct {
	Command []string
	Logger  *slog.Logger
}

func NewCommandSource(command []string, logger *slog.Logger) *CommandSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommandSource{Command: command, Logger: logger}
}

func (c *CommandSource) Distribution(ctx context.Context, req Request) ([]float64, error) {
	if len(c.Command) == 0 {
		return nil, ibi.Configf("analysis command is empty")
	}

	args := append(append([]string{}, c.Command[1:]...), req.Args()...)
	cmd := exec.CommandContext(ctx, c.Command[0], args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	c.Logger.Debug("computing distribution",
		"kind", req.Kind,
		"types", strings.Join(req.Types, "-"),
		"trajectory", req.Trajectory,
	)

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("analysis command %q: %w: %s", c.Command[0], err, strings.TrimSpace(stderr.String()))
	}

	cols, err := ReadColumns(&stdout, 2)
	if err != nil {
		return nil, fmt.Errorf("parse analysis output: %w", err)
	}
	dist := cols[1]
	if len(dist) != req.NBins+1 {
		return nil, fmt.Errorf("%w: analysis returned %d samples, want %d",
			ibi.ErrDimensionMismatch, len(dist), req.NBins+1)
	}
	return dist, nil
}

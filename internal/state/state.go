// Package state describes the reference thermodynamic states of a
// multistate optimization and the engine input written for each of them.
package state

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/san-kum/msibi/internal/forces"
	"github.com/san-kum/msibi/internal/ibi"
)

const (
	StatesDir      = "states"
	QueryFile      = "query.gsd"
	RunscriptFile  = "run.py"
	DefaultAlpha   = 1.0
	DefaultNFrames = 10
)

type Config struct {
	Name             string
	KT               float64
	TrajFile         string
	Alpha            float64
	BackupTrajectory bool
	NFrames          int
	Root             string
	Logger           *slog.Logger
}

// State is one reference condition: a temperature, a target trajectory and
// the weight its distributions carry in the potential update.
type State struct {
	Name             string
	KT               float64
	TrajFile         string
	Alpha            float64
	Dir              string
	QueryTraj        string
	BackupTrajectory bool
	NFrames          int

	logger *slog.Logger
}

// New validates cfg and creates <root>/states/<name>_<kT>. The state
// directory must not exist yet; the filesystem error is returned untouched
// (errors.Is(err, fs.ErrExist)) so stale outputs are never mixed with a new
// run.
func New(cfg Config) (*State, error) {
	if cfg.Name == "" {
		return nil, ibi.Configf("state name must not be empty")
	}
	if strings.ContainsRune(cfg.Name, filepath.Separator) {
		return nil, ibi.Configf("state name %q must not contain a path separator", cfg.Name)
	}
	if cfg.KT <= 0 {
		return nil, ibi.Configf("state %s: kT must be positive, got %g", cfg.Name, cfg.KT)
	}
	if cfg.Alpha < 0 || cfg.Alpha > 1 {
		return nil, ibi.Configf("state %s: alpha should be between 0.0 and 1.0, got %g", cfg.Name, cfg.Alpha)
	}
	if cfg.TrajFile == "" {
		return nil, ibi.Configf("state %s: target trajectory is required", cfg.Name)
	}
	if cfg.NFrames < 0 {
		return nil, ibi.Configf("state %s: n_frames must not be negative, got %d", cfg.Name, cfg.NFrames)
	}

	traj, err := filepath.Abs(cfg.TrajFile)
	if err != nil {
		return nil, fmt.Errorf("resolve trajectory %s: %w", cfg.TrajFile, err)
	}

	dir, err := setupDir(cfg.Root, DirName(cfg.Name, cfg.KT))
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nframes := cfg.NFrames
	if nframes == 0 {
		nframes = DefaultNFrames
	}

	s := &State{
		Name:             cfg.Name,
		KT:               cfg.KT,
		TrajFile:         traj,
		Alpha:            cfg.Alpha,
		Dir:              dir,
		QueryTraj:        filepath.Join(dir, QueryFile),
		BackupTrajectory: cfg.BackupTrajectory,
		NFrames:          nframes,
		logger:           logger.With("state", filepath.Base(dir)),
	}
	s.logger.Debug("state created", "dir", dir, "kT", cfg.KT, "alpha", cfg.Alpha)
	return s, nil
}

// DirName is the canonical working directory name of a state.
func DirName(name string, kT float64) string {
	return name + "_" + formatKT(kT)
}

// formatKT renders kT with at least one decimal place: 1 -> "1.0".
func formatKT(kT float64) string {
	s := strconv.FormatFloat(kT, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func setupDir(root, name string) (string, error) {
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		root = cwd
	}

	parent := filepath.Join(root, StatesDir)
	if err := os.MkdirAll(parent, 0755); err != nil {
		return "", fmt.Errorf("create %s: %w", parent, err)
	}

	dir := filepath.Join(parent, name)
	if err := os.Mkdir(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("state directory %s already exists: %w", dir, err)
		}
		return "", err
	}
	return filepath.Abs(dir)
}

// ID identifies the state towards interactions.
func (s *State) ID() string {
	return filepath.Base(s.Dir)
}

func (s *State) Info() forces.StateInfo {
	return forces.StateInfo{ID: s.ID(), KT: s.KT, Alpha: s.Alpha}
}

func (s *State) RunscriptPath() string {
	return filepath.Join(s.Dir, RunscriptFile)
}

// TablePath is where a table interaction's potential for the given
// iteration is written.
func (s *State) TablePath(f *forces.Force, iteration int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%s_%s.iter%d.txt", f.Kind(), f.Name(), iteration))
}

// BackupPath is where the query trajectory produced by an iteration is kept
// when backups are enabled.
func (s *State) BackupPath(iteration int) string {
	return filepath.Join(s.Dir, fmt.Sprintf("query_%d.gsd", iteration))
}

// PrepareQuery clears the way for the query trajectory of iteration. The
// previous trajectory is renamed when backups are enabled and removed
// otherwise.
func (s *State) PrepareQuery(iteration int) error {
	if _, err := os.Stat(s.QueryTraj); errors.Is(err, fs.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	if s.BackupTrajectory && iteration > 0 {
		backup := s.BackupPath(iteration - 1)
		if err := os.Rename(s.QueryTraj, backup); err != nil {
			return fmt.Errorf("back up query trajectory: %w", err)
		}
		s.logger.Debug("query trajectory backed up", "path", backup)
		return nil
	}
	if err := os.Remove(s.QueryTraj); err != nil {
		return fmt.Errorf("remove previous query trajectory: %w", err)
	}
	return nil
}

// SaveRunscript writes the current table of every table interaction and the
// engine run script for this state.
func (s *State) SaveRunscript(p RunParams, interactions []forces.Interaction, iteration int) error {
	tables := make(map[string]string)
	for _, in := range interactions {
		f := in.Base()
		if f.Format() != forces.FormatTable {
			continue
		}
		path := s.TablePath(f, iteration)
		if err := f.WriteTable(path); err != nil {
			return fmt.Errorf("write table for %s: %w", f, err)
		}
		tables[tableKey(f)] = path
	}

	script, err := BuildScript(s, p, interactions, tables)
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.RunscriptPath(), []byte(script.Render()), 0644); err != nil {
		return fmt.Errorf("write run script: %w", err)
	}
	s.logger.Debug("run script written", "path", s.RunscriptPath(), "iteration", iteration, "tables", len(tables))
	return nil
}

func tableKey(f *forces.Force) string {
	return f.Kind().String() + ":" + f.Name()
}

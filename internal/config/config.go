// Package config loads msibi run definitions from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/msibi/internal/ibi"
	"github.com/san-kum/msibi/internal/optimizer"
	"github.com/san-kum/msibi/internal/state"
)

const (
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
	DefaultNIterations = 10
	DefaultParallel    = 1
)

type Config struct {
	Name         string             `yaml:"name"`
	Root         string             `yaml:"root"`
	LogLevel     string             `yaml:"log_level"`
	LogFormat    string             `yaml:"log_format"`
	Engine       EngineConfig       `yaml:"engine"`
	Analyzer     AnalyzerConfig     `yaml:"analyzer"`
	Optimization OptimizationConfig `yaml:"optimization"`
	States       []StateConfig      `yaml:"states"`
	Forces       []ForceConfig      `yaml:"forces"`

	// baseDir resolves relative paths; it is the directory of the loaded
	// file.
	baseDir string
}

type EngineConfig struct {
	Preset           string         `yaml:"preset,omitempty"`
	Command          []string       `yaml:"command"`
	NSteps           int            `yaml:"n_steps"`
	Integrator       string         `yaml:"integrator"`
	IntegratorKwargs map[string]any `yaml:"integrator_kwargs"`
	Dt               float64        `yaml:"dt"`
	OutputPeriod     int            `yaml:"output_period"`
	TableWidth       int            `yaml:"table_width"`
	Parallel         int            `yaml:"parallel"`
}

type AnalyzerConfig struct {
	Command []string `yaml:"command"`
}

type ConvergenceConfig struct {
	Enabled   bool    `yaml:"enabled"`
	Patience  int     `yaml:"patience"`
	Threshold float64 `yaml:"threshold"`
}

type OptimizationConfig struct {
	NIterations      int               `yaml:"n_iterations"`
	DensityThreshold float64           `yaml:"density_threshold"`
	Convergence      ConvergenceConfig `yaml:"convergence"`
}

type StateConfig struct {
	Name             string   `yaml:"name"`
	KT               float64  `yaml:"kT"`
	TrajFile         string   `yaml:"traj_file"`
	Alpha            *float64 `yaml:"alpha,omitempty"`
	BackupTrajectory bool     `yaml:"backup_trajectory"`
	NFrames          int      `yaml:"n_frames"`
}

type HarmonicConfig struct {
	K  float64 `yaml:"k"`
	X0 float64 `yaml:"x0"`
	D  int     `yaml:"d,omitempty"`
	N  int     `yaml:"n,omitempty"`
}

type QuadraticConfig struct {
	X0   float64 `yaml:"x0"`
	K2   float64 `yaml:"k2"`
	K3   float64 `yaml:"k3"`
	K4   float64 `yaml:"k4"`
	XMin float64 `yaml:"x_min"`
	XMax float64 `yaml:"x_max"`
}

type LJConfig struct {
	Epsilon float64 `yaml:"epsilon"`
	Sigma   float64 `yaml:"sigma"`
	RMin    float64 `yaml:"r_min"`
	RCut    float64 `yaml:"r_cut"`
}

type ForceConfig struct {
	Kind            string           `yaml:"kind"`
	Types           []string         `yaml:"types"`
	Optimize        bool             `yaml:"optimize"`
	NBins           int              `yaml:"nbins,omitempty"`
	SmoothingWindow int              `yaml:"smoothing_window,omitempty"`
	SmoothingOrder  int              `yaml:"smoothing_order,omitempty"`
	RCut            float64          `yaml:"r_cut,omitempty"`
	ExcludeBonded   bool             `yaml:"exclude_bonded,omitempty"`
	Harmonic        *HarmonicConfig  `yaml:"harmonic,omitempty"`
	Quadratic       *QuadraticConfig `yaml:"quadratic,omitempty"`
	LJ              *LJConfig        `yaml:"lj,omitempty"`
	TableFile       string           `yaml:"table_file,omitempty"`
}

func DefaultConfig() *Config {
	p := state.DefaultRunParams()
	return &Config{
		Name:      "msibi",
		LogLevel:  DefaultLogLevel,
		LogFormat: DefaultLogFormat,
		Engine: EngineConfig{
			NSteps:           p.NSteps,
			Integrator:       p.Integrator,
			IntegratorKwargs: p.IntegratorKwargs,
			Dt:               p.Dt,
			OutputPeriod:     p.OutputPeriod,
			TableWidth:       p.TableWidth,
			Parallel:         DefaultParallel,
		},
		Optimization: OptimizationConfig{
			NIterations:      DefaultNIterations,
			DensityThreshold: optimizer.DefaultDensityThreshold,
			Convergence: ConvergenceConfig{
				Patience:  optimizer.DefaultConvergenceConfig().Patience,
				Threshold: optimizer.DefaultConvergenceConfig().Threshold,
			},
		},
	}
}

// Load reads and validates a config file. Relative paths inside it are
// resolved against the file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg.baseDir = abs
	return cfg, nil
}

// Parse decodes YAML over the defaults. A named engine preset is applied
// first so explicit engine keys in data override it.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: yaml: %v", ibi.ErrConfig, err)
	}

	if cfg.Engine.Preset != "" {
		preset := cfg.Engine.Preset
		cfg = DefaultConfig()
		if err := cfg.ApplyPreset(preset); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("%w: yaml: %v", ibi.ErrConfig, err)
		}
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks a config built or modified in code.
func (c *Config) Validate() error {
	return validateConfig(c)
}

func (c *Config) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || c.baseDir == "" {
		return path
	}
	return filepath.Join(c.baseDir, path)
}

// RootDir is the directory the states tree is created in.
func (c *Config) RootDir() string {
	if c.Root == "" {
		return c.baseDir
	}
	return c.resolve(c.Root)
}

// Package config provides YAML configuration loading for SPFM runs.
package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cwbudde/algo-spfm/spfm/core"
	"github.com/cwbudde/algo-spfm/spfm/criterion"
	"github.com/cwbudde/algo-spfm/spfm/estimate"
	"github.com/cwbudde/algo-spfm/spfm/hrf"
)

// Config represents a complete SPFM run configuration
type Config struct {
	// TR is the repetition time in seconds
	TR float64 `yaml:"tr" json:"tr"`
	// TE lists the echo times, in ms or s (ms are converted when all >= 1)
	TE []float64 `yaml:"te" json:"te"`
	// HRF is "spm", "glover" or the path of a .1D/.txt kernel file
	HRF string `yaml:"hrf" json:"hrf"`
	// HRFLength is the sampled HRF duration in seconds (0 = model default)
	HRFLength float64 `yaml:"hrf_length" json:"hrf_length"`

	// FFT selects the lazy FFT convolution operator (single-echo spike
	// model only)
	FFT bool `yaml:"fft" json:"fft"`

	// Block enables the block (innovation) model
	Block bool `yaml:"block" json:"block"`
	// BlockLength is the block length in samples when Block is set
	BlockLength int `yaml:"block_length" json:"block_length"`
	// Debias refits amplitudes on the selected support
	Debias bool `yaml:"debias" json:"debias"`

	// Criterion is a path criterion (factor, knee, bic, aic) or a lambda rule
	// (mad, mad_update, ut, lut, factor_lambda, pcg, eigval)
	Criterion string `yaml:"criterion" json:"criterion"`
	Factor    float64 `yaml:"factor" json:"factor"`
	PCG       float64 `yaml:"pcg" json:"pcg"`
	// Noise overrides the wavelet noise estimate when positive
	Noise float64 `yaml:"noise" json:"noise"`
	// LambdaEcho selects the echo of the noise estimate (-1 = last)
	LambdaEcho int `yaml:"lambda_echo" json:"lambda_echo"`

	MaxIterFactor float64 `yaml:"max_iter_factor" json:"max_iter_factor"`
	MaxIterFISTA  int     `yaml:"max_iter_fista" json:"max_iter_fista"`
	MinIterFISTA  int     `yaml:"min_iter_fista" json:"min_iter_fista"`
	Tolerance     float64 `yaml:"tolerance" json:"tolerance"`

	// Group is the share of the group-norm penalty in [0, 1]
	Group     float64 `yaml:"group" json:"group"`
	GroupSize int     `yaml:"group_size" json:"group_size"`

	NLambdas    int     `yaml:"n_lambdas" json:"n_lambdas"`
	LambdaRatio float64 `yaml:"lambda_ratio" json:"lambda_ratio"`
	Seed        uint64  `yaml:"seed" json:"seed"`

	// Jobs is the number of pipeline workers
	Jobs int `yaml:"jobs" json:"jobs"`
	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	est := estimate.DefaultConfig()
	return &Config{
		TR:            2,
		TE:            []float64{0},
		HRF:           "spm",
		Debias:        true,
		Criterion:     est.Criterion,
		Factor:        est.Factor,
		PCG:           est.PCG,
		LambdaEcho:    est.LambdaEcho,
		MaxIterFactor: est.MaxIterFactor,
		MaxIterFISTA:  est.MaxIterFISTA,
		MinIterFISTA:  est.MinIterFISTA,
		Tolerance:     est.Tol,
		GroupSize:     est.GroupSize,
		NLambdas:      est.NLambdas,
		LambdaRatio:   est.LambdaRatio,
		Jobs:          1,
		LogLevel:      "info",
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if !(c.TR > 0) || math.IsInf(c.TR, 0) {
		return core.Configf("tr must be positive, got %v", c.TR)
	}
	if len(c.TE) == 0 {
		return core.Configf("te needs at least one echo time")
	}
	for _, te := range c.TE {
		if te < 0 || math.IsNaN(te) {
			return core.Configf("te must be >= 0, got %v", te)
		}
	}
	if strings.TrimSpace(c.HRF) == "" {
		return core.Configf("hrf is required")
	}
	if c.BlockLength < 0 {
		return core.Configf("block_length must be >= 0, got %d", c.BlockLength)
	}
	if c.FFT && (c.Block || c.Acquisition().MultiEcho()) {
		return core.Configf("fft needs the single-echo spike model")
	}
	name := strings.ToLower(strings.TrimSpace(c.Criterion))
	switch {
	case name == "factor" || name == "knee" || name == "bic" || name == "aic":
	case criterion.IsRule(name):
	default:
		return core.Configf("unknown criterion %q", c.Criterion)
	}
	if (name == "factor" || name == "factor_lambda") && !(c.Factor > 0) {
		return core.Configf("factor must be positive, got %v", c.Factor)
	}
	if name == "pcg" && (!(c.PCG > 0) || c.PCG > 1) {
		return core.Configf("pcg must be in (0, 1], got %v", c.PCG)
	}
	if c.Noise < 0 {
		return core.Configf("noise must be >= 0, got %v", c.Noise)
	}
	if lim := len(c.TE); c.LambdaEcho >= lim || c.LambdaEcho < -lim {
		return core.Configf("lambda_echo %d out of range for %d echoes", c.LambdaEcho, lim)
	}
	if !(c.MaxIterFactor > 0) {
		return core.Configf("max_iter_factor must be positive, got %v", c.MaxIterFactor)
	}
	if c.MaxIterFISTA <= 0 || c.MinIterFISTA < 0 {
		return core.Configf("max_iter_fista must be positive and min_iter_fista >= 0")
	}
	if c.Tolerance < 0 {
		return core.Configf("tolerance must be >= 0, got %v", c.Tolerance)
	}
	if c.Group < 0 || c.Group > 1 {
		return core.Configf("group must be between 0 and 1, got %v", c.Group)
	}
	if c.GroupSize < 1 {
		return core.Configf("group_size must be >= 1, got %d", c.GroupSize)
	}
	if c.NLambdas < 2 || !(c.LambdaRatio > 0) || c.LambdaRatio >= 1 {
		return core.Configf("n_lambdas must be >= 2 and lambda_ratio in (0, 1)")
	}
	if c.Jobs < 1 {
		return core.Configf("jobs must be >= 1, got %d", c.Jobs)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, core.Configf("log_level: %v", err)
	}
	return l, nil
}

// Acquisition returns the sampling description, echo times in seconds.
func (c *Config) Acquisition() core.Acquisition {
	return core.ApplyAcquisitionOptions(core.WithTR(c.TR), core.WithEchoTimes(c.TE...))
}

// Kernel generates or loads the configured HRF.
func (c *Config) Kernel() ([]float64, error) {
	var opts []hrf.ModelOption
	if c.HRFLength > 0 {
		opts = append(opts, hrf.WithLength(c.HRFLength))
	}
	return hrf.Generate(c.HRF, c.Acquisition().TR, opts...)
}

// Operator builds the dense convolution operator for series of n samples.
func (c *Config) Operator(n int) (*hrf.Operator, error) {
	k, err := c.Kernel()
	if err != nil {
		return nil, err
	}
	opts := []hrf.Option{hrf.WithAcquisition(c.Acquisition())}
	if c.Block {
		opts = append(opts, hrf.WithBlockLength(max(c.BlockLength, 1)))
	}
	return hrf.Build(k, n, opts...)
}

// Model returns the operator the estimator runs on: the lazy FFT
// convolution when FFT is set, the dense operator otherwise.
func (c *Config) Model(n int) (estimate.Model, error) {
	if !c.FFT {
		return c.Operator(n)
	}
	if c.Block || c.Acquisition().MultiEcho() {
		return nil, core.Configf("fft needs the single-echo spike model")
	}
	k, err := c.Kernel()
	if err != nil {
		return nil, err
	}
	return hrf.NewConvolution(k, n)
}

// Estimate returns the per-voxel estimator configuration.
func (c *Config) Estimate() estimate.Config {
	return estimate.Config{
		Criterion:     c.Criterion,
		Factor:        c.Factor,
		Noise:         c.Noise,
		PCG:           c.PCG,
		LambdaEcho:    c.LambdaEcho,
		MaxIterFISTA:  c.MaxIterFISTA,
		MinIterFISTA:  c.MinIterFISTA,
		MaxIterFactor: c.MaxIterFactor,
		Tol:           c.Tolerance,
		Group:         c.Group,
		GroupSize:     c.GroupSize,
		Debias:        c.Debias,
		NLambdas:      c.NLambdas,
		LambdaRatio:   c.LambdaRatio,
		Seed:          c.Seed,
	}
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// mergers copies one YAML key from src into dst.
var mergers = map[string]func(dst, src *Config){
	"tr":              func(d, s *Config) { d.TR = s.TR },
	"te":              func(d, s *Config) { d.TE = append([]float64(nil), s.TE...) },
	"hrf":             func(d, s *Config) { d.HRF = s.HRF },
	"hrf_length":      func(d, s *Config) { d.HRFLength = s.HRFLength },
	"fft":             func(d, s *Config) { d.FFT = s.FFT },
	"block":           func(d, s *Config) { d.Block = s.Block },
	"block_length":    func(d, s *Config) { d.BlockLength = s.BlockLength },
	"debias":          func(d, s *Config) { d.Debias = s.Debias },
	"criterion":       func(d, s *Config) { d.Criterion = s.Criterion },
	"factor":          func(d, s *Config) { d.Factor = s.Factor },
	"pcg":             func(d, s *Config) { d.PCG = s.PCG },
	"noise":           func(d, s *Config) { d.Noise = s.Noise },
	"lambda_echo":     func(d, s *Config) { d.LambdaEcho = s.LambdaEcho },
	"max_iter_factor": func(d, s *Config) { d.MaxIterFactor = s.MaxIterFactor },
	"max_iter_fista":  func(d, s *Config) { d.MaxIterFISTA = s.MaxIterFISTA },
	"min_iter_fista":  func(d, s *Config) { d.MinIterFISTA = s.MinIterFISTA },
	"tolerance":       func(d, s *Config) { d.Tolerance = s.Tolerance },
	"group":           func(d, s *Config) { d.Group = s.Group },
	"group_size":      func(d, s *Config) { d.GroupSize = s.GroupSize },
	"n_lambdas":       func(d, s *Config) { d.NLambdas = s.NLambdas },
	"lambda_ratio":    func(d, s *Config) { d.LambdaRatio = s.LambdaRatio },
	"seed":            func(d, s *Config) { d.Seed = s.Seed },
	"jobs":            func(d, s *Config) { d.Jobs = s.Jobs },
	"log_level":       func(d, s *Config) { d.LogLevel = s.LogLevel },
}

// IsKey reports whether key names a configuration field.
func IsKey(key string) bool {
	_, ok := mergers[key]
	return ok
}

// Merge copies the named keys from other into c, zero values included, so
// explicitly set values (such as debias: false) take effect.
func (c *Config) Merge(other *Config, keys ...string) error {
	if other == nil {
		return nil
	}
	for _, key := range keys {
		merge, ok := mergers[key]
		if !ok {
			return core.Configf("unknown config key %q", key)
		}
		merge(c, other)
	}
	return nil
}

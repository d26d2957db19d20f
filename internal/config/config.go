package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"symptomsim/adapters/orthant"
	"symptomsim/adapters/report"
	"symptomsim/app"
	"symptomsim/domain/symptom"
	"symptomsim/internal/errors"
	"symptomsim/internal/population"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the complete application configuration
type Config struct {
	Population  int                 `yaml:"population"`
	Replicates  int                 `yaml:"replicates"`
	Seed        int64               `yaml:"seed"`
	Threshold   float64             `yaml:"threshold"`
	MinCriteria int                 `yaml:"min_criteria"`
	MinCases    int                 `yaml:"min_cases"`
	Workers     int                 `yaml:"workers"`
	Model       ModelConfig         `yaml:"model"`
	Indicators  []symptom.Indicator `yaml:"indicators"`
	Estimator   EstimatorConfig     `yaml:"estimator"`
	Output      OutputConfig        `yaml:"output"`
	LogLevel    string              `yaml:"log_level"`
}

// ModelConfig holds the generating model parameters shared by all indicators
type ModelConfig struct {
	BaseMean   float64 `yaml:"base_mean"`
	Prevalence float64 `yaml:"prevalence"`
	RangeMin   float64 `yaml:"range_min"`
	RangeMax   float64 `yaml:"range_max"`
}

// EstimatorConfig selects and tunes the orthant integration backend
type EstimatorConfig struct {
	Backend   string  `yaml:"backend"`
	AbsTol    float64 `yaml:"abs_tol"`
	RelTol    float64 `yaml:"rel_tol"`
	MaxPoints int     `yaml:"max_points"`
	Shifts    int     `yaml:"shifts"`
	Samples   int     `yaml:"samples"`
}

// OutputConfig holds report settings
type OutputConfig struct {
	Formats []string `yaml:"formats"`
	Dir     string   `yaml:"dir"`
}

// envConfig is the flat environment view of Config. The indicator table is
// only configurable from a file.
type envConfig struct {
	Population  int      `env:"SYMPTOMSIM_POPULATION" envDefault:"1000"`
	Replicates  int      `env:"SYMPTOMSIM_REPLICATES" envDefault:"100"`
	Seed        int64    `env:"SYMPTOMSIM_SEED" envDefault:"123"`
	Threshold   float64  `env:"SYMPTOMSIM_THRESHOLD" envDefault:"2.0"`
	MinCriteria int      `env:"SYMPTOMSIM_MIN_CRITERIA" envDefault:"2"`
	MinCases    int      `env:"SYMPTOMSIM_MIN_CASES" envDefault:"6"`
	Workers     int      `env:"SYMPTOMSIM_WORKERS" envDefault:"1"`
	BaseMean    float64  `env:"SYMPTOMSIM_BASE_MEAN" envDefault:"2.0"`
	Prevalence  float64  `env:"SYMPTOMSIM_PREVALENCE" envDefault:"0.5"`
	RangeMin    float64  `env:"SYMPTOMSIM_RANGE_MIN" envDefault:"0"`
	RangeMax    float64  `env:"SYMPTOMSIM_RANGE_MAX" envDefault:"4"`
	Estimator   string   `env:"SYMPTOMSIM_ESTIMATOR" envDefault:"genz"`
	AbsTol      float64  `env:"SYMPTOMSIM_ABS_TOL" envDefault:"0.001"`
	RelTol      float64  `env:"SYMPTOMSIM_REL_TOL" envDefault:"0"`
	MaxPoints   int      `env:"SYMPTOMSIM_MAX_POINTS" envDefault:"25000"`
	Shifts      int      `env:"SYMPTOMSIM_SHIFTS" envDefault:"12"`
	Samples     int      `env:"SYMPTOMSIM_MC_SAMPLES" envDefault:"100000"`
	Formats     []string `env:"SYMPTOMSIM_FORMATS" envDefault:"text" envSeparator:","`
	OutputDir   string   `env:"SYMPTOMSIM_OUTPUT_DIR" envDefault:"."`
	LogLevel    string   `env:"LOG_LEVEL" envDefault:"INFO"`
}

// Default returns the built-in configuration
func Default() *Config {
	sim := app.DefaultSimulationConfig()
	tol := orthant.DefaultTolerance()
	return &Config{
		Population:  sim.Population,
		Replicates:  sim.Replicates,
		Seed:        sim.Seed,
		Threshold:   sim.Threshold,
		MinCriteria: sim.Rule.MinCriteria,
		MinCases:    sim.MinCases,
		Workers:     sim.Workers,
		Model: ModelConfig{
			BaseMean:   sim.Generator.BaseMean,
			Prevalence: sim.Generator.Prevalence,
			RangeMin:   sim.Generator.RangeMin,
			RangeMax:   sim.Generator.RangeMax,
		},
		Indicators: symptom.DefaultIndicators(),
		Estimator: EstimatorConfig{
			Backend:   orthant.BackendGenz,
			AbsTol:    tol.AbsTol,
			RelTol:    tol.RelTol,
			MaxPoints: tol.MaxPoints,
			Shifts:    tol.Shifts,
			Samples:   orthant.DefaultSamples,
		},
		Output: OutputConfig{
			Formats: []string{"text"},
			Dir:     ".",
		},
		LogLevel: "INFO",
	}
}

// Load reads configuration from environment variables and, when path is not
// empty, overlays the YAML file at path. The result is not validated so that
// callers can apply command line overrides first.
func Load(path string) (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// FromEnv builds a configuration from SYMPTOMSIM_* variables and LOG_LEVEL
func FromEnv() (*Config, error) {
	var e envConfig
	if err := env.Parse(&e); err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("parse env: %w", err))
	}

	cfg := Default()
	cfg.Population = e.Population
	cfg.Replicates = e.Replicates
	cfg.Seed = e.Seed
	cfg.Threshold = e.Threshold
	cfg.MinCriteria = e.MinCriteria
	cfg.MinCases = e.MinCases
	cfg.Workers = e.Workers
	cfg.Model = ModelConfig{
		BaseMean:   e.BaseMean,
		Prevalence: e.Prevalence,
		RangeMin:   e.RangeMin,
		RangeMax:   e.RangeMax,
	}
	cfg.Estimator = EstimatorConfig{
		Backend:   e.Estimator,
		AbsTol:    e.AbsTol,
		RelTol:    e.RelTol,
		MaxPoints: e.MaxPoints,
		Shifts:    e.Shifts,
		Samples:   e.Samples,
	}
	cfg.Output = OutputConfig{Formats: e.Formats, Dir: e.OutputDir}
	cfg.LogLevel = e.LogLevel
	return cfg, nil
}

// MergeFile overlays the YAML file at path. Fields absent from the file keep
// their current values; an indicators list replaces the whole table.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("read config file: %w", err))
	}
	return c.MergeYAML(data)
}

// MergeYAML overlays a YAML document. Unknown keys are rejected.
func (c *Config) MergeYAML(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("parse config yaml: %w", err))
	}
	return nil
}

// ToYAML renders the effective configuration
func (c *Config) ToYAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render configuration")
	}
	return out, nil
}

// Simulation converts the configuration into the service's input
func (c *Config) Simulation() app.SimulationConfig {
	return app.SimulationConfig{
		Population: c.Population,
		Replicates: c.Replicates,
		Seed:       c.Seed,
		Threshold:  c.Threshold,
		Rule: symptom.DiagnosticRule{
			MinCriteria: c.MinCriteria,
			Total:       len(c.Indicators),
		},
		MinCases: c.MinCases,
		Workers:  c.Workers,
		Generator: population.Config{
			Indicators: append([]symptom.Indicator(nil), c.Indicators...),
			BaseMean:   c.Model.BaseMean,
			Prevalence: c.Model.Prevalence,
			RangeMin:   c.Model.RangeMin,
			RangeMax:   c.Model.RangeMax,
		},
	}
}

// OrthantSettings converts the estimator section for orthant.New
func (c *Config) OrthantSettings() orthant.Settings {
	return orthant.Settings{
		Backend: c.Estimator.Backend,
		Tolerance: orthant.Tolerance{
			AbsTol:    c.Estimator.AbsTol,
			RelTol:    c.Estimator.RelTol,
			MaxPoints: c.Estimator.MaxPoints,
			Shifts:    c.Estimator.Shifts,
		},
		Samples: c.Estimator.Samples,
	}
}

// Validate checks every section and reports the first problem
func (c *Config) Validate() error {
	if err := c.Simulation().Validate(); err != nil {
		return err
	}
	if _, err := orthant.New(c.OrthantSettings()); err != nil {
		return err
	}
	for _, f := range c.Output.Formats {
		if !report.IsFormat(f) {
			return errors.ConfigInvalidf("unknown output format %q (want one of %s)", f, strings.Join(report.Formats, ", "))
		}
	}
	return nil
}

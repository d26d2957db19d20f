package config

import (
	"os"
	"path/filepath"
	"testing"

	"symptomsim/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
	require.NoError(t, cfg.Validate())

	sim := cfg.Simulation()
	assert.Equal(t, 1000, sim.Population)
	assert.Equal(t, 100, sim.Replicates)
	assert.Equal(t, int64(123), sim.Seed)
	assert.Equal(t, "2-of-5", sim.Rule.String())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("SYMPTOMSIM_POPULATION", "500")
	t.Setenv("SYMPTOMSIM_SEED", "7")
	t.Setenv("SYMPTOMSIM_ESTIMATOR", "montecarlo")
	t.Setenv("SYMPTOMSIM_FORMATS", "csv,xlsx")
	t.Setenv("LOG_LEVEL", "DEBUG")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Population)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, "montecarlo", cfg.Estimator.Backend)
	assert.Equal(t, []string{"csv", "xlsx"}, cfg.Output.Formats)
	assert.Equal(t, "DEBUG", cfg.LogLevel)
}

func TestFromEnv_BadValue(t *testing.T) {
	t.Setenv("SYMPTOMSIM_REPLICATES", "many")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
	assert.Contains(t, err.Error(), "parse env:")
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "symptomsim.yaml")
	doc := `
replicates: 20
estimator:
  backend: montecarlo
  samples: 5000
indicators:
  - {name: S1, loading: 2.0, noise_sd: 0.5}
  - {name: S2, loading: 1.8, noise_sd: 0.5}
  - {name: W1, loading: 1.6, noise_sd: 1.0}
  - {name: W2, loading: 1.4, noise_sd: 1.0}
  - {name: M, loading: 1.2, noise_sd: 0.8}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.Replicates)
	assert.Equal(t, 1000, cfg.Population, "fields absent from the file keep their values")
	assert.Equal(t, 5000, cfg.Estimator.Samples)
	assert.Equal(t, 1.6, cfg.Indicators[2].Loading)
	assert.Equal(t, 1.6, cfg.Simulation().Generator.Indicators[2].Loading)
}

func TestMergeYAML_RejectsUnknownKeys(t *testing.T) {
	cfg := Default()
	err := cfg.MergeYAML([]byte("replicatez: 3\n"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))

	require.NoError(t, cfg.MergeYAML(nil))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"single individual", func(c *Config) { c.Population = 1 }},
		{"k above n", func(c *Config) { c.MinCriteria = 6 }},
		{"zero k", func(c *Config) { c.MinCriteria = 0 }},
		{"inverted range", func(c *Config) { c.Model.RangeMin, c.Model.RangeMax = 4, 0 }},
		{"unknown estimator", func(c *Config) { c.Estimator.Backend = "bogus" }},
		{"negative tolerance", func(c *Config) { c.Estimator.AbsTol = -1 }},
		{"unknown format", func(c *Config) { c.Output.Formats = []string{"docx"} }},
		{"duplicate indicator", func(c *Config) { c.Indicators[1].Name = c.Indicators[0].Name }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, errors.CodeConfigInvalid, errors.GetCode(err))
		})
	}
}

func TestToYAML_RoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Seed = 99

	out, err := cfg.ToYAML()
	require.NoError(t, err)
	assert.Contains(t, string(out), "seed: 99")
	assert.Contains(t, string(out), "noise_sd: 0.5")

	back := &Config{}
	require.NoError(t, back.MergeYAML(out))
	assert.Equal(t, cfg, back)
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the command tree with args and returns stdout
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRun_FlagsOverrideFileOverrideEnv(t *testing.T) {
	t.Setenv("SYMPTOMSIM_REPLICATES", "7")
	t.Setenv("SYMPTOMSIM_SEED", "5")
	t.Setenv("SYMPTOMSIM_ESTIMATOR", "montecarlo")
	t.Setenv("SYMPTOMSIM_MC_SAMPLES", "2000")
	t.Setenv("LOG_LEVEL", "ERROR")

	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("population: 500\nreplicates: 3\nseed: 77\n"), 0o644))

	out, err := execute(t, "run", "--config", path, "-r", "2", "-f", "text,csv", "-o", dir)
	require.NoError(t, err)

	assert.Contains(t, out, "population 500, replicates 2 (2 succeeded, 0 skipped), seed 77")
	assert.Contains(t, out, "estimator montecarlo")
	assert.Contains(t, out, "Combinations meeting criteria (26 of 32)")

	csv, err := os.ReadFile(filepath.Join(dir, "symptom_combinations.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csv), "combination,mean_probability,sd_probability,meets_criteria,rank")
}

func TestRun_RejectsInvalidFlag(t *testing.T) {
	t.Setenv("LOG_LEVEL", "ERROR")
	_, err := execute(t, "run", "--threshold", "9")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")
}

func TestCombinations_CountsCriteria(t *testing.T) {
	out, err := execute(t, "combinations")
	require.NoError(t, err)
	assert.Contains(t, out, "26 of 32 combinations meet 2-of-5")
	assert.Contains(t, out, "S1+S2+W1+W2+M")

	out, err = execute(t, "combinations", "-k", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "16 of 32 combinations meet 3-of-5")
}

func TestConfig_PrintsEffectiveYAML(t *testing.T) {
	t.Setenv("SYMPTOMSIM_SEED", "9")
	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "seed: 9")
	assert.Contains(t, out, "population: 1000")
}

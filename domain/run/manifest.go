package run

import (
	"crypto/sha256"
	"fmt"

	"symptomsim/domain/core"
	"symptomsim/domain/symptom"
)

// Manifest records everything needed to replay a simulation run
type Manifest struct {
	RunID       core.RunID             `json:"run_id"`
	Seed        int64                  `json:"seed"`
	Population  int                    `json:"population"`
	Replicates  int                    `json:"replicates"`
	Threshold   float64                `json:"threshold"`
	Rule        symptom.DiagnosticRule `json:"rule"`
	Indicators  []symptom.Indicator    `json:"indicators"`
	Estimator   string                 `json:"estimator"`
	ConfigHash  core.Hash              `json:"config_hash"`
	CodeVersion string                 `json:"code_version"`
	Fingerprint core.Hash              `json:"fingerprint"` // Determinism fingerprint
	CreatedAt   core.Timestamp         `json:"created_at"`
}

// NewManifest creates a manifest and computes its fingerprint
func NewManifest(
	runID core.RunID,
	seed int64,
	population, replicates int,
	threshold float64,
	rule symptom.DiagnosticRule,
	indicators []symptom.Indicator,
	estimator string,
	configHash core.Hash,
	codeVersion string,
) *Manifest {
	return &Manifest{
		RunID:       runID,
		Seed:        seed,
		Population:  population,
		Replicates:  replicates,
		Threshold:   threshold,
		Rule:        rule,
		Indicators:  indicators,
		Estimator:   estimator,
		ConfigHash:  configHash,
		CodeVersion: codeVersion,
		Fingerprint: computeFingerprint(configHash, seed, estimator, codeVersion),
		CreatedAt:   core.Now(),
	}
}

// computeFingerprint hashes the determinism parameters. Two runs with equal
// fingerprints produce equal aggregate tables.
func computeFingerprint(configHash core.Hash, seed int64, estimator, codeVersion string) core.Hash {
	data := fmt.Sprintf("config:%s|seed:%d|estimator:%s|code:%s", configHash, seed, estimator, codeVersion)
	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewValidationError("run_manifest", "run_id cannot be empty")
	}
	if m.Population < 1 {
		return core.NewValidationError("run_manifest", "population must be positive")
	}
	if m.Replicates < 1 {
		return core.NewValidationError("run_manifest", "replicates must be positive")
	}
	if m.ConfigHash.IsEmpty() {
		return core.NewValidationError("run_manifest", "config_hash cannot be empty")
	}
	if m.Estimator == "" {
		return core.NewValidationError("run_manifest", "estimator cannot be empty")
	}
	return nil
}

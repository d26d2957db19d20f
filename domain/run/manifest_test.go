package run

import (
	"testing"

	"symptomsim/domain/core"
	"symptomsim/domain/symptom"
)

func newTestManifest(seed int64, estimator string) *Manifest {
	return NewManifest(
		core.RunID("run-1"),
		seed,
		1000,
		10,
		2.0,
		symptom.DefaultRule(),
		symptom.DefaultIndicators(),
		estimator,
		core.Hash("config-hash"),
		"1.0.0",
	)
}

func TestManifestFingerprint_Deterministic(t *testing.T) {
	m1 := newTestManifest(42, "genz")
	m2 := newTestManifest(42, "genz")

	if m1.Fingerprint != m2.Fingerprint {
		t.Errorf("Fingerprints not identical: %s vs %s", m1.Fingerprint, m2.Fingerprint)
	}
}

func TestManifestFingerprint_Unique(t *testing.T) {
	base := newTestManifest(42, "genz")

	testCases := []struct {
		name string
		m    *Manifest
	}{
		{"seed", newTestManifest(43, "genz")},
		{"estimator", newTestManifest(42, "montecarlo")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.m.Fingerprint == base.Fingerprint {
				t.Errorf("Changing %s did not change the fingerprint", tc.name)
			}
		})
	}
}

func TestManifestValidate(t *testing.T) {
	m := newTestManifest(42, "genz")
	if err := m.Validate(); err != nil {
		t.Fatalf("Expected valid manifest, got %v", err)
	}

	m.RunID = ""
	if err := m.Validate(); err == nil {
		t.Error("Expected error for empty run ID")
	}
}

func TestReportTop(t *testing.T) {
	r := &Report{}
	if _, ok := r.Top(); ok {
		t.Error("Expected no top row on an empty report")
	}

	r.Criteria = []CombinationRow{{Combination: "11000", Rank: 1}}
	top, ok := r.Top()
	if !ok || top.Combination != "11000" {
		t.Errorf("Expected top row 11000, got %+v", top)
	}
}

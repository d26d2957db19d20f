package orthant

import (
	"strings"

	"symptomsim/internal/errors"
	"symptomsim/ports"
)

// Backend names accepted by New
const (
	BackendGenz       = "genz"
	BackendMonteCarlo = "montecarlo"
)

// Settings configures whichever backend New builds
type Settings struct {
	Backend   string
	Tolerance Tolerance
	Samples   int // Monte Carlo draws
}

// New returns the backend named in s
func New(s Settings) (ports.OrthantEstimator, error) {
	switch strings.ToLower(strings.TrimSpace(s.Backend)) {
	case BackendGenz, "genz-bretz", "qmc", "":
		return NewGenz(s.Tolerance)
	case BackendMonteCarlo, "monte-carlo", "mc", "simulation":
		return NewMonteCarlo(s.Samples)
	default:
		return nil, errors.ConfigInvalidf("unknown orthant estimator %q (want %s or %s)",
			s.Backend, BackendGenz, BackendMonteCarlo)
	}
}

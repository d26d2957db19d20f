package population

import (
	"fmt"
	"math/rand/v2"

	"symptomsim/domain/core"
	"symptomsim/domain/symptom"
	"symptomsim/internal/errors"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Config holds the generating model for one population
type Config struct {
	Indicators []symptom.Indicator
	BaseMean   float64 // mean of every indicator when the latent state is absent
	Prevalence float64 // P(L = 1)
	RangeMin   float64
	RangeMax   float64
}

// DefaultConfig returns the default five-indicator model rescaled to [0, 4]
func DefaultConfig() Config {
	return Config{
		Indicators: symptom.DefaultIndicators(),
		BaseMean:   2.0,
		Prevalence: 0.5,
		RangeMin:   0,
		RangeMax:   4,
	}
}

// Validate checks the generating model
func (c Config) Validate() error {
	if len(c.Indicators) == 0 {
		return errors.ConfigInvalid("at least one indicator is required")
	}
	if len(c.Indicators) > symptom.MaxDimension {
		return errors.ConfigInvalidf("at most %d indicators are supported, got %d", symptom.MaxDimension, len(c.Indicators))
	}
	seen := make(map[string]bool, len(c.Indicators))
	for _, ind := range c.Indicators {
		if ind.Name == "" {
			return errors.ConfigInvalid("indicator name cannot be empty")
		}
		if seen[ind.Name] {
			return errors.ConfigInvalidf("duplicate indicator %q", ind.Name)
		}
		seen[ind.Name] = true
		if !(ind.NoiseSD > 0) {
			return errors.ConfigInvalidf("indicator %s: noise sd must be positive, got %g", ind.Name, ind.NoiseSD)
		}
	}
	if c.Prevalence < 0 || c.Prevalence > 1 {
		return errors.ConfigInvalidf("prevalence must be within [0, 1], got %g", c.Prevalence)
	}
	if !(c.RangeMin < c.RangeMax) {
		return errors.ConfigInvalidf("range min %g must be below range max %g", c.RangeMin, c.RangeMax)
	}
	return nil
}

// Population is one generated sample. Values holds the rescaled indicators,
// one row per individual and one column per indicator.
type Population struct {
	Names  []string
	Latent []int
	Values *mat.Dense
}

// Size returns the number of individuals
func (p *Population) Size() int {
	return len(p.Latent)
}

// Generator draws populations from the latent-class model
type Generator struct {
	cfg Config
}

// NewGenerator validates cfg and creates a generator
func NewGenerator(cfg Config) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg}, nil
}

// Generate draws n individuals using rng as the only source of randomness.
//
// Each indicator is generated for the whole sample first and then rescaled so
// that the realized minimum maps to RangeMin and the maximum to RangeMax.
func (g *Generator) Generate(rng *rand.Rand, n int) (*Population, error) {
	if n < 1 {
		return nil, errors.InvalidInput(fmt.Sprintf("population size must be positive, got %d", n))
	}

	latent := make([]int, n)
	bern := distuv.Bernoulli{P: g.cfg.Prevalence, Src: rng}
	for i := range latent {
		latent[i] = int(bern.Rand())
	}

	k := len(g.cfg.Indicators)
	values := mat.NewDense(n, k, nil)
	raw := make([]float64, n)
	for j, ind := range g.cfg.Indicators {
		noise := distuv.Normal{Mu: g.cfg.BaseMean, Sigma: ind.NoiseSD, Src: rng}
		for i := range raw {
			raw[i] = ind.Loading*float64(latent[i]) + noise.Rand()
		}

		scaled, err := Rescale(raw, g.cfg.RangeMin, g.cfg.RangeMax)
		if err != nil {
			return nil, errors.Wrapf(err, "indicator %s", ind.Name)
		}
		values.SetCol(j, scaled)
	}

	return &Population{
		Names:  symptom.Names(g.cfg.Indicators),
		Latent: latent,
		Values: values,
	}, nil
}

// Rescale maps raw linearly so its minimum becomes lo and its maximum hi.
// A sample with zero range cannot be rescaled and yields a degenerate sample
// error instead of NaN.
func Rescale(raw []float64, lo, hi float64) ([]float64, error) {
	minV, err := stats.Min(raw)
	if err != nil {
		return nil, errors.InvalidInput("cannot rescale an empty sample")
	}
	maxV, err := stats.Max(raw)
	if err != nil {
		return nil, errors.InvalidInput("cannot rescale an empty sample")
	}
	if !(maxV > minV) {
		return nil, errors.WithCode(errors.CodeDegenerateSample,
			fmt.Errorf("%w: min = max = %g", core.ErrZeroRange, minV))
	}

	span := maxV - minV
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = lo + (v-minV)/span*(hi-lo)
	}
	return out, nil
}

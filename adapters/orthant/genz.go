package orthant

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"symptomsim/domain/core"
	"symptomsim/domain/symptom"
	"symptomsim/internal/errors"
	"symptomsim/ports"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Tolerance bounds the work done per orthant. Integration stops when the
// error estimate drops below max(AbsTol, RelTol*|value|) and fails once
// MaxPoints integrand evaluations have been spent without getting there.
type Tolerance struct {
	AbsTol    float64 `json:"abs_tol" yaml:"abs_tol"`
	RelTol    float64 `json:"rel_tol" yaml:"rel_tol"`
	MaxPoints int     `json:"max_points" yaml:"max_points"`
	Shifts    int     `json:"shifts" yaml:"shifts"` // random lattice shifts per stage
}

// DefaultTolerance matches the usual Genz-Bretz defaults
func DefaultTolerance() Tolerance {
	return Tolerance{
		AbsTol:    1e-3,
		RelTol:    0,
		MaxPoints: 25000,
		Shifts:    12,
	}
}

// Validate checks the tolerance settings
func (t Tolerance) Validate() error {
	if t.AbsTol < 0 || t.RelTol < 0 {
		return errors.ConfigInvalidf("tolerances must be non-negative (abs %g, rel %g)", t.AbsTol, t.RelTol)
	}
	if t.AbsTol == 0 && t.RelTol == 0 {
		return errors.ConfigInvalid("at least one of abs_tol and rel_tol must be positive")
	}
	if t.Shifts < 2 {
		return errors.ConfigInvalidf("at least 2 lattice shifts are needed for an error estimate, got %d", t.Shifts)
	}
	if t.MaxPoints < 4*t.Shifts {
		return errors.ConfigInvalidf("max_points %d is too small for %d shifts", t.MaxPoints, t.Shifts)
	}
	return nil
}

// errorScale converts the standard error over shifts into the reported error
const errorScale = 3.0

// initialLattice is the number of lattice points per shift in the first stage
const initialLattice = 16

// Result is one integral estimate
type Result struct {
	Value  float64
	Error  float64
	Points int
}

// Genz integrates multivariate normal rectangles with the separation of
// variables transform: after a Cholesky factorization the integral becomes an
// integral over the unit cube of dimension k-1, estimated with randomly
// shifted Richtmyer lattice rules.
type Genz struct {
	tol Tolerance
}

var _ ports.OrthantEstimator = (*Genz)(nil)

// NewGenz creates a Genz backend with the given tolerance
func NewGenz(tol Tolerance) (*Genz, error) {
	if err := tol.Validate(); err != nil {
		return nil, err
	}
	return &Genz{tol: tol}, nil
}

// Name identifies the backend
func (g *Genz) Name() string {
	return "genz"
}

// Tolerance returns the configured tolerance
func (g *Genz) Tolerance() Tolerance {
	return g.tol
}

// EstimateOrthantProbabilities integrates N(mean, cov) over each pattern's orthant
func (g *Genz) EstimateOrthantProbabilities(
	ctx context.Context,
	rng *rand.Rand,
	mean []float64,
	cov mat.Symmetric,
	patterns []symptom.Pattern,
	threshold float64,
) ([]float64, error) {
	l, err := choleskyRows(mean, cov)
	if err != nil {
		return nil, err
	}

	probs := make([]float64, len(patterns))
	for i, p := range patterns {
		if p.Dim() != len(mean) {
			return nil, fmt.Errorf("%w: pattern %s for %d indicators", core.ErrDimensionMismatch, p.Label(), len(mean))
		}
		lower, upper := p.Bounds(threshold)
		for j := range lower {
			lower[j] -= mean[j]
			upper[j] -= mean[j]
		}

		res, err := g.integrate(ctx, rng, l, lower, upper)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			return nil, errors.WithCode(errors.CodeIntegrationFailure,
				&core.CombinationError{Combination: p.Label(), Err: err})
		}
		probs[i] = res.Value
	}
	return probs, nil
}

// Integrate estimates P(lower <= X < upper) for X ~ N(0, cov).
func (g *Genz) Integrate(ctx context.Context, rng *rand.Rand, cov mat.Symmetric, lower, upper []float64) (Result, error) {
	l, err := choleskyRows(make([]float64, cov.SymmetricDim()), cov)
	if err != nil {
		return Result{}, err
	}
	if len(lower) != len(l) || len(upper) != len(l) {
		return Result{}, core.ErrDimensionMismatch
	}
	return g.integrate(ctx, rng, l, lower, upper)
}

func (g *Genz) integrate(ctx context.Context, rng *rand.Rand, l [][]float64, a, b []float64) (Result, error) {
	k := len(l)
	if k == 1 {
		v := phi(b[0]/l[0][0]) - phi(a[0]/l[0][0])
		return Result{Value: v, Points: 1}, nil
	}

	dims := k - 1
	gen := richtmyer(dims)
	shift := make([]float64, dims)
	w := make([]float64, dims)
	wa := make([]float64, dims)
	y := make([]float64, k)

	var sumW, sumWV float64
	points := 0
	n := initialLattice
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		// One estimate per random shift; their spread gives the error.
		var mean, m2 float64
		for s := 1; s <= g.tol.Shifts; s++ {
			for j := range shift {
				shift[j] = rng.Float64()
			}
			var acc float64
			for i := 1; i <= n; i++ {
				for j := range w {
					x := frac(float64(i)*gen[j] + shift[j])
					w[j] = math.Abs(2*x - 1) // tent periodization
					wa[j] = 1 - w[j]
				}
				acc += (sov(l, a, b, w, y) + sov(l, a, b, wa, y)) / 2
			}
			est := acc / float64(n)
			delta := est - mean
			mean += delta / float64(s)
			m2 += delta * (est - mean)
		}
		points += 2 * n * g.tol.Shifts

		shifts := float64(g.tol.Shifts)
		variance := m2 / (shifts - 1) / shifts
		if variance <= 0 {
			// Every shift agreed exactly; nothing left to refine.
			return Result{Value: clamp01(mean), Points: points}, nil
		}
		sumW += 1 / variance
		sumWV += mean / variance
		value := sumWV / sumW
		errEst := errorScale * math.Sqrt(1/sumW)

		if errEst <= math.Max(g.tol.AbsTol, g.tol.RelTol*math.Abs(value)) {
			return Result{Value: clamp01(value), Error: errEst, Points: points}, nil
		}
		if points >= g.tol.MaxPoints {
			return Result{Value: value, Error: errEst, Points: points},
				fmt.Errorf("%w: error %.3g after %d points (abs tol %g, rel tol %g)",
					core.ErrNotConverged, errEst, points, g.tol.AbsTol, g.tol.RelTol)
		}

		next := n * 3 / 2
		if remaining := (g.tol.MaxPoints - points) / (2 * g.tol.Shifts); next > remaining {
			next = remaining
		}
		if next < 1 {
			next = 1
		}
		n = next
	}
}

// sov evaluates the separation of variables integrand at w in [0,1]^(k-1).
// l is the lower Cholesky factor; a and b are centred bounds.
func sov(l [][]float64, a, b, w, y []float64) float64 {
	d := phi(a[0] / l[0][0])
	e := phi(b[0] / l[0][0])
	f := e - d
	for i := 1; i < len(l); i++ {
		if f <= 0 {
			return 0
		}
		u := d + w[i-1]*(e-d)
		y[i-1] = phiInv(u)

		var s float64
		for j := 0; j < i; j++ {
			s += l[i][j] * y[j]
		}
		d = phi((a[i] - s) / l[i][i])
		e = phi((b[i] - s) / l[i][i])
		f *= e - d
	}
	if f < 0 {
		return 0
	}
	return f
}

// choleskyRows factorizes cov and returns the lower factor as rows. A
// factorization failure or a vanishing pivot means the covariance is not
// positive definite.
func choleskyRows(mean []float64, cov mat.Symmetric) ([][]float64, error) {
	k := cov.SymmetricDim()
	if k != len(mean) || k == 0 {
		return nil, fmt.Errorf("%w: mean has %d entries, covariance is %dx%d", core.ErrDimensionMismatch, len(mean), k, k)
	}
	for i := 0; i < k; i++ {
		if math.IsNaN(mean[i]) || math.IsInf(mean[i], 0) {
			return nil, errors.IntegrationFailure("non-finite mean", core.ErrNotPositiveDefinite)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, errors.IntegrationFailure("cholesky factorization failed", core.ErrNotPositiveDefinite)
	}
	var lt mat.TriDense
	chol.LTo(&lt)

	maxDiag := 0.0
	for i := 0; i < k; i++ {
		maxDiag = math.Max(maxDiag, math.Abs(cov.At(i, i)))
	}
	rows := make([][]float64, k)
	for i := 0; i < k; i++ {
		rows[i] = make([]float64, i+1)
		for j := 0; j <= i; j++ {
			rows[i][j] = lt.At(i, j)
		}
		if piv := rows[i][i]; !(piv > 1e-10*math.Sqrt(maxDiag)) {
			return nil, errors.IntegrationFailure(
				fmt.Sprintf("pivot %d is %.3g", i, piv), core.ErrNotPositiveDefinite)
		}
	}
	return rows, nil
}

// richtmyer returns lattice generators frac(sqrt(p)) for the first dims primes.
func richtmyer(dims int) []float64 {
	gen := make([]float64, dims)
	p := 2
	for j := 0; j < dims; j++ {
		for !isPrime(p) {
			p++
		}
		gen[j] = frac(math.Sqrt(float64(p)))
		p++
	}
	return gen
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	for d := 2; d*d <= n; d++ {
		if n%d == 0 {
			return false
		}
	}
	return true
}

func frac(x float64) float64 {
	return x - math.Floor(x)
}

func phi(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// phiInv keeps u away from 0 and 1 so the quantile stays finite.
func phiInv(u float64) float64 {
	const eps = 1e-15
	if u < eps {
		u = eps
	} else if u > 1-eps {
		u = 1 - eps
	}
	return distuv.UnitNormal.Quantile(u)
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

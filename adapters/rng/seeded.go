package rng

import (
	"context"
	"math/rand/v2"

	"symptomsim/ports"
)

// SeededAdapter implements ports.RNGPort on PCG generators
type SeededAdapter struct{}

var _ ports.RNGPort = (*SeededAdapter)(nil)

// NewSeededAdapter creates the default RNG adapter
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{}
}

// ReplicateStream creates the stream for replicate r. The second PCG word is
// derived from the replicate index only, so stream r is the same whatever
// order replicates are scheduled in.
func (a *SeededAdapter) ReplicateStream(ctx context.Context, baseSeed int64, replicate int) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return rand.New(rand.NewPCG(mix(uint64(baseSeed)), mix(uint64(replicate)+0x9e3779b97f4a7c15))), nil
}

// mix is the splitmix64 finalizer; it spreads nearby seeds apart.
func mix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

package ports

import (
	"context"
	"math/rand/v2"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// ReplicateStream creates the stream for one replicate of a run. Streams
	// for different replicates are independent, so replicates can run in any
	// order and still reproduce the same results.
	ReplicateStream(ctx context.Context, baseSeed int64, replicate int) (*rand.Rand, error)
}

package simulation

import (
	crand "crypto/rand"
	"encoding/binary"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

// ErrorSource produces the stochastic perturbation added to actuation and
// sensing. Implementations are zero-mean with a spread that grows with the
// magnitude, and return exactly 0 for a magnitude of 0.
type ErrorSource interface {
	Sample(magnitude float64) float64
}

// gaussianSource draws normally distributed errors with standard deviation equal
// to the requested magnitude.
type gaussianSource struct {
	mu  sync.Mutex
	src rand.Source
}

// seedStream is the second PCG word; it only has to be fixed.
const seedStream = 0x5eed_1e55_0ddb_a11

// NewSeededSource returns a repeatable error stream. Two sources created with
// the same seed yield the same sequence of samples.
func NewSeededSource(seed uint64) ErrorSource {
	return &gaussianSource{src: rand.NewPCG(seed, seedStream)}
}

// NewRandomSource returns a non-repeatable error stream seeded from the
// operating system's entropy pool.
func NewRandomSource() ErrorSource {
	var b [16]byte
	if _, err := crand.Read(b[:]); err != nil {
		// crypto/rand only fails on a broken platform; fall back to the runtime seed.
		return &gaussianSource{src: rand.NewPCG(rand.Uint64(), rand.Uint64())}
	}
	return &gaussianSource{src: rand.NewPCG(binary.LittleEndian.Uint64(b[:8]), binary.LittleEndian.Uint64(b[8:]))}
}

// NewErrorSource picks the strategy once at start-up.
func NewErrorSource(random bool, seed uint64) ErrorSource {
	if random {
		return NewRandomSource()
	}
	return NewSeededSource(seed)
}

func (g *gaussianSource) Sample(magnitude float64) float64 {
	if magnitude == 0 {
		return 0
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	normal := distuv.Normal{Mu: 0, Sigma: math.Abs(magnitude), Src: g.src}
	return normal.Rand()
}

// NoError is an ErrorSource that never perturbs anything.
type NoError struct{}

func (NoError) Sample(float64) float64 { return 0 }

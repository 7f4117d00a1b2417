// Package dist provides the seeded random source and the statistical
// distributions the generator draws from. Every draw goes through an explicit
// Source so a run is a pure function of (config, seed).
package dist

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"sort"
)

// Source is a seeded stream of random draws. It is not safe for concurrent
// use; derive a sub-stream per worker instead of sharing one.
type Source struct {
	seed uint64
	rng  *rand.Rand
}

// New creates a source seeded with the given value.
func New(seed uint64) *Source {
	return &Source{
		seed: seed,
		rng:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Derive returns an independent sub-stream keyed by name. The same parent
// seed and name always produce the same stream, which keeps per-customer
// generation reproducible under parallel execution.
func (s *Source) Derive(name string) *Source {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &Source{
		seed: s.seed,
		rng:  rand.New(rand.NewPCG(s.seed, h.Sum64())),
	}
}

// Uint64 returns a uniform 64-bit draw.
func (s *Source) Uint64() uint64 {
	return s.rng.Uint64()
}

// Read fills p with random bytes so the source can back seeded UUID
// generation. It never fails.
func (s *Source) Read(p []byte) (int, error) {
	for i := 0; i < len(p); i += 8 {
		v := s.rng.Uint64()
		for j := 0; j < 8 && i+j < len(p); j++ {
			p[i+j] = byte(v >> (8 * j))
		}
	}
	return len(p), nil
}

// Float64 returns a uniform draw in [0, 1).
func (s *Source) Float64() float64 {
	return s.rng.Float64()
}

// IntN returns a uniform draw in [0, n).
func (s *Source) IntN(n int) int {
	return s.rng.IntN(n)
}

// Bool returns true with probability p.
func (s *Source) Bool(p float64) bool {
	return s.rng.Float64() < p
}

// Normal returns a draw from N(mean, std).
func (s *Source) Normal(mean, std float64) float64 {
	return mean + std*s.rng.NormFloat64()
}

// LogNormal returns a draw whose logarithm is N(mu, sigma).
func (s *Source) LogNormal(mu, sigma float64) float64 {
	return math.Exp(mu + sigma*s.rng.NormFloat64())
}

// Exponential returns a draw from an exponential distribution with the
// given mean.
func (s *Source) Exponential(mean float64) float64 {
	return mean * s.rng.ExpFloat64()
}

// SkewNormal returns a draw from a skew-normal distribution with shape a,
// location loc and scale. Uses the two-normal construction: with
// delta = a / sqrt(1+a^2), z = delta*|u0| + sqrt(1-delta^2)*u1 is
// skew-normal(a) for independent standard normals u0, u1.
func (s *Source) SkewNormal(a, loc, scale float64) float64 {
	delta := a / math.Sqrt(1+a*a)
	u0 := s.rng.NormFloat64()
	u1 := s.rng.NormFloat64()
	z := delta*math.Abs(u0) + math.Sqrt(1-delta*delta)*u1
	return loc + scale*z
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// WeightedChooser picks items with probability proportional to their weight.
// Item order is fixed by sorting keys so picks are deterministic for a given
// stream regardless of map iteration order.
type WeightedChooser struct {
	items []string
	cum   []float64
	total float64
}

// NewWeightedChooser builds a chooser from a weight table. It fails fast on
// an empty table, a non-positive total, or any negative weight.
func NewWeightedChooser(weights map[string]float64) (*WeightedChooser, error) {
	if len(weights) == 0 {
		return nil, fmt.Errorf("weight table is empty")
	}

	items := make([]string, 0, len(weights))
	for item := range weights {
		items = append(items, item)
	}
	sort.Strings(items)

	c := &WeightedChooser{
		items: items,
		cum:   make([]float64, len(items)),
	}
	for i, item := range items {
		w := weights[item]
		if w < 0 {
			return nil, fmt.Errorf("negative weight for %q: %v", item, w)
		}
		c.total += w
		c.cum[i] = c.total
	}
	if c.total <= 0 {
		return nil, fmt.Errorf("weight table sums to zero")
	}

	return c, nil
}

// Pick returns one item drawn according to the weights.
func (c *WeightedChooser) Pick(s *Source) string {
	target := s.Float64() * c.total
	idx := sort.Search(len(c.cum), func(i int) bool { return c.cum[i] > target })
	if idx >= len(c.items) {
		idx = len(c.items) - 1
	}
	return c.items[idx]
}

// Items returns the chooser's items in pick order.
func (c *WeightedChooser) Items() []string {
	return c.items
}

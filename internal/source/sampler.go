package source

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/pardreamin/prospectsync/pkg/prospect"
)

// ErrNoListings is returned when listings must be drawn from an empty pool.
var ErrNoListings = errors.New("listing pool is empty")

// ListingSampler draws a uniformly sized random set of listings, with
// replacement, for each recipient.
type ListingSampler struct {
	pool []prospect.Listing
	min  int
	max  int
	rng  *rand.Rand
}

// NewListingSampler creates a sampler drawing between minCount and maxCount listings
// (inclusive) from pool.
func NewListingSampler(pool []prospect.Listing, minCount, maxCount int, rng *rand.Rand) (*ListingSampler, error) {
	if minCount < 0 || maxCount < minCount {
		return nil, fmt.Errorf("invalid listing count range [%d, %d]", minCount, maxCount)
	}
	if len(pool) == 0 && maxCount > 0 {
		return nil, ErrNoListings
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &ListingSampler{pool: pool, min: minCount, max: maxCount, rng: rng}, nil
}

// SampleFor returns the listings shown to r. The recipient does not influence
// the draw.
func (s *ListingSampler) SampleFor(_ prospect.Recipient) []prospect.Listing {
	n := s.min + s.rng.IntN(s.max-s.min+1)
	out := make([]prospect.Listing, n)
	for i := range out {
		out[i] = s.pool[s.rng.IntN(len(s.pool))]
	}
	return out
}

// NewSeededRand returns a deterministic generator for seed.
func NewSeededRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Package profile creates and holds the persistent per-customer state for a
// generation run.
package profile

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/dist"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Age, risk factor and balance distribution parameters. Fixed policy of the
// generator, not tunable inputs.
const (
	ageSkew     = 5.0
	ageLoc      = 35.0
	ageScale    = 15.0
	ageMin      = 18
	ageMax      = 80
	riskSigma   = 0.3
	riskMin     = 0.1
	riskMax     = 2.0
	balanceMu   = 7.0
	balanceSig  = 0.5
	balanceMin  = 100.0
	idPrefixLen = 8
)

// Pool is a fixed-size population of customer profiles. Profiles are created
// once at run start, mutated by every event attributed to them, and discarded
// when the run ends.
type Pool struct {
	profiles map[string]*domain.CustomerProfile

	// ids preserves creation order so iteration and uniform picks are
	// deterministic for a given seed.
	ids []string
}

// NewPool creates poolSize profiles with attributes drawn from the source.
func NewPool(cfg domain.GeneratorConfig, src *dist.Source) (*Pool, error) {
	if cfg.PoolSize <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", cfg.PoolSize)
	}
	if len(cfg.Countries) == 0 {
		return nil, fmt.Errorf("country set is empty")
	}

	p := &Pool{
		profiles: make(map[string]*domain.CustomerProfile, cfg.PoolSize),
		ids:      make([]string, 0, cfg.PoolSize),
	}

	for i := 0; i < cfg.PoolSize; i++ {
		id, err := newID(src)
		if err != nil {
			return nil, err
		}
		for p.profiles[id] != nil {
			if id, err = newID(src); err != nil {
				return nil, err
			}
		}

		age := int(dist.Clamp(src.SkewNormal(ageSkew, ageLoc, ageScale), ageMin, ageMax))
		country := cfg.Countries[src.IntN(len(cfg.Countries))]
		countryRisk, ok := cfg.CountryRisk[country]
		if !ok {
			countryRisk = 1.0
		}

		balance := src.LogNormal(balanceMu, balanceSig)
		if balance < balanceMin {
			balance = balanceMin
		}

		p.profiles[id] = &domain.CustomerProfile{
			ID:             id,
			Age:            age,
			HomeCountry:    country,
			RiskFactor:     dist.Clamp(src.LogNormal(0, riskSigma), riskMin, riskMax),
			CountryRisk:    countryRisk,
			InitialBalance: balance,
			Balance:        balance,
		}
		p.ids = append(p.ids, id)
	}

	return p, nil
}

// Size returns the number of profiles in the pool.
func (p *Pool) Size() int {
	return len(p.ids)
}

// IDs returns the customer identifiers in creation order.
func (p *Pool) IDs() []string {
	return p.ids
}

// Get returns the profile for an identifier, or nil if absent.
func (p *Pool) Get(id string) *domain.CustomerProfile {
	return p.profiles[id]
}

// PickID returns a uniformly drawn customer identifier.
func (p *Pool) PickID(src *dist.Source) string {
	return p.ids[src.IntN(len(p.ids))]
}

// newID draws an opaque identifier from the seeded source so the pool is
// reproducible for a given seed.
func newID(src *dist.Source) (string, error) {
	u, err := uuid.NewRandomFromReader(src)
	if err != nil {
		return "", fmt.Errorf("failed to generate customer id: %w", err)
	}
	return u.String()[:idPrefixLen], nil
}

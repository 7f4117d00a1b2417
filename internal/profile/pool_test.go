package profile

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/dist"
	"github.com/opensource-finance/kestrel/internal/domain"
)

func testConfig(poolSize int) domain.GeneratorConfig {
	cfg := domain.DefaultGeneratorConfig()
	cfg.PoolSize = poolSize
	return cfg
}

func TestNewPool(t *testing.T) {
	t.Run("InvalidPoolSize", func(t *testing.T) {
		for _, size := range []int{0, -1} {
			if _, err := NewPool(testConfig(size), dist.New(1)); err == nil {
				t.Errorf("expected error for pool size %d", size)
			}
		}
	})

	t.Run("EmptyCountrySet", func(t *testing.T) {
		cfg := testConfig(10)
		cfg.Countries = nil
		if _, err := NewPool(cfg, dist.New(1)); err == nil {
			t.Error("expected error for empty country set")
		}
	})

	t.Run("DistinctIDs", func(t *testing.T) {
		pool, err := NewPool(testConfig(500), dist.New(1))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if pool.Size() != 500 {
			t.Fatalf("expected 500 profiles, got %d", pool.Size())
		}
		seen := make(map[string]bool)
		for _, id := range pool.IDs() {
			if seen[id] {
				t.Fatalf("duplicate customer id %s", id)
			}
			seen[id] = true
			if pool.Get(id) == nil {
				t.Fatalf("missing profile for id %s", id)
			}
		}
	})

	t.Run("AttributeClamps", func(t *testing.T) {
		for _, size := range []int{1, 10, 1000} {
			pool, err := NewPool(testConfig(size), dist.New(3))
			if err != nil {
				t.Fatalf("unexpected error for size %d: %v", size, err)
			}
			for _, id := range pool.IDs() {
				p := pool.Get(id)
				if p.Age < 18 || p.Age > 80 {
					t.Errorf("age %d outside [18, 80]", p.Age)
				}
				if p.RiskFactor < 0.1 || p.RiskFactor > 2.0 {
					t.Errorf("risk factor %v outside [0.1, 2.0]", p.RiskFactor)
				}
				if p.Balance < 100 {
					t.Errorf("initial balance %v below floor 100", p.Balance)
				}
				if p.Balance != p.InitialBalance {
					t.Errorf("fresh profile balance %v != initial %v", p.Balance, p.InitialBalance)
				}
			}
		}
	})

	t.Run("CountryRiskLookup", func(t *testing.T) {
		cfg := testConfig(200)
		cfg.Countries = []string{"BR", "JP", "ZZ"} // ZZ absent from risk table
		pool, err := NewPool(cfg, dist.New(5))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, id := range pool.IDs() {
			p := pool.Get(id)
			want, ok := cfg.CountryRisk[p.HomeCountry]
			if !ok {
				want = 1.0
			}
			if p.CountryRisk != want {
				t.Errorf("country %s risk %v, want %v", p.HomeCountry, p.CountryRisk, want)
			}
		}
	})

	t.Run("Reproducible", func(t *testing.T) {
		a, err := NewPool(testConfig(50), dist.New(42))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		b, err := NewPool(testConfig(50), dist.New(42))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i, id := range a.IDs() {
			if b.IDs()[i] != id {
				t.Fatalf("id order diverged at %d: %s vs %s", i, id, b.IDs()[i])
			}
			pa, pb := a.Get(id), b.Get(id)
			if *pa != *pb {
				t.Fatalf("profile %s diverged: %+v vs %+v", id, pa, pb)
			}
		}
	})
}

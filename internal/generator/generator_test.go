package generator

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func testConfig(pool, txns int) domain.GeneratorConfig {
	cfg := domain.DefaultGeneratorConfig()
	cfg.PoolSize = pool
	cfg.NumTransactions = txns
	cfg.Workers = 4
	return cfg
}

func TestNew(t *testing.T) {
	t.Run("InvalidTransactionCount", func(t *testing.T) {
		for _, n := range []int{0, -10} {
			cfg := testConfig(100, n)
			if _, err := New(cfg); err == nil {
				t.Errorf("expected error for %d transactions", n)
			}
		}
	})

	t.Run("InvalidPoolSize", func(t *testing.T) {
		if _, err := New(testConfig(0, 100)); err == nil {
			t.Error("expected error for empty pool")
		}
	})

	t.Run("ZeroSumWeights", func(t *testing.T) {
		cfg := testConfig(100, 100)
		cfg.CategoryWeights = map[string]float64{"a": 0, "b": 0}
		if _, err := New(cfg); err == nil {
			t.Error("expected error for zero-sum weight table")
		}
	})
}

func TestRun(t *testing.T) {
	cfg := testConfig(200, 5000)
	gen, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ds, err := gen.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(ds.Events) != 5000 {
		t.Fatalf("expected 5000 events, got %d", len(ds.Events))
	}

	t.Run("BalanceContinuity", func(t *testing.T) {
		byCustomer := groupByCustomer(ds.Events)
		for id, events := range byCustomer {
			sort.Slice(events, func(i, j int) bool {
				return events[i].Timestamp.Before(events[j].Timestamp)
			})
			for i, e := range events {
				if math.Abs(e.NewBalance-(e.OldBalance-e.Amount)) > 1e-6 {
					t.Fatalf("customer %s event %d: new_balance %v != old %v - amount %v",
						id, i, e.NewBalance, e.OldBalance, e.Amount)
				}
				if i > 0 {
					prev := events[i-1]
					if math.Abs(e.OldBalance-prev.NewBalance) > 1e-6 {
						t.Fatalf("customer %s event %d: old_balance %v != prior new_balance %v",
							id, i, e.OldBalance, prev.NewBalance)
					}
				}
			}
		}
	})

	t.Run("VelocityMonotonicity", func(t *testing.T) {
		for id, events := range groupByCustomer(ds.Events) {
			sort.Slice(events, func(i, j int) bool {
				return events[i].Timestamp.Before(events[j].Timestamp)
			})
			for i, e := range events {
				if e.TxnFreq != i+1 {
					t.Fatalf("customer %s event %d: txn_freq %d, want %d", id, i, e.TxnFreq, i+1)
				}
			}
			if events[0].HasPrior {
				t.Fatalf("customer %s first event claims a prior event", id)
			}
		}
	})

	t.Run("PerCustomerChronology", func(t *testing.T) {
		for id, events := range groupByCustomer(ds.Events) {
			for i := 1; i < len(events); i++ {
				if events[i].Timestamp.Before(events[i-1].Timestamp) {
					t.Fatalf("customer %s events out of order at index %d", id, i)
				}
			}
		}
	})

	t.Run("LabelThresholdProperty", func(t *testing.T) {
		atOrAbove := 0
		frauds := 0
		for _, e := range ds.Events {
			if e.Score >= ds.Threshold {
				atOrAbove++
			}
			frauds += e.IsFraud
		}
		if frauds != atOrAbove {
			t.Errorf("fraud labels %d != scores at/above threshold %d", frauds, atOrAbove)
		}
		// ~5% in expectation, loose bounds for sampling noise.
		rate := float64(frauds) / float64(len(ds.Events))
		if rate < 0.03 || rate > 0.08 {
			t.Errorf("fraud rate %.3f far from nominal 0.05", rate)
		}
	})

	t.Run("PositiveAmounts", func(t *testing.T) {
		for _, e := range ds.Events {
			if e.Amount <= 0 {
				t.Fatalf("non-positive amount %v", e.Amount)
			}
			cents := e.Amount * 100
			if math.Abs(cents-math.Round(cents)) > 1e-6 {
				t.Fatalf("amount %v not rounded to cents", e.Amount)
			}
		}
	})
}

func TestRunReproducible(t *testing.T) {
	cfg := testConfig(100, 2000)

	runOnce := func() *domain.Dataset {
		gen, err := New(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ds, err := gen.Run(context.Background())
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}
		return ds
	}

	a, b := runOnce(), runOnce()
	if a.Threshold != b.Threshold {
		t.Errorf("thresholds diverged: %v vs %v", a.Threshold, b.Threshold)
	}
	for i := range a.Events {
		ea, eb := a.Events[i], b.Events[i]
		if ea.CustomerID != eb.CustomerID || ea.Amount != eb.Amount ||
			ea.Score != eb.Score || ea.IsFraud != eb.IsFraud ||
			ea.Merchant != eb.Merchant || ea.Category != eb.Category ||
			!ea.Timestamp.Equal(eb.Timestamp) {
			t.Fatalf("event %d diverged between identical runs:\n%+v\n%+v", i, ea, eb)
		}
	}
}

func TestRunTimeAnchor(t *testing.T) {
	t.Run("ZeroAnchorIsStable", func(t *testing.T) {
		// A config that never set the anchor must still reproduce byte for
		// byte: the fallback is a fixed date, not the wall clock.
		cfg := testConfig(20, 400)
		cfg.TimeAnchor = time.Time{}

		runOnce := func() *domain.Dataset {
			gen, err := New(cfg)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			ds, err := gen.Run(context.Background())
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}
			return ds
		}

		a, b := runOnce(), runOnce()
		for i := range a.Events {
			if !a.Events[i].Timestamp.Equal(b.Events[i].Timestamp) {
				t.Fatalf("event %d timestamp diverged: %v vs %v",
					i, a.Events[i].Timestamp, b.Events[i].Timestamp)
			}
		}
	})

	t.Run("AnchorBoundsTimelines", func(t *testing.T) {
		anchor := time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)
		cfg := testConfig(20, 400)
		cfg.TimeAnchor = anchor

		gen, err := New(cfg)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ds, err := gen.Run(context.Background())
		if err != nil {
			t.Fatalf("run failed: %v", err)
		}

		// Timelines start 6-12 months before the anchor and walk forward,
		// so nothing can land before the window floor.
		floor := anchor.Add(-366 * 24 * time.Hour)
		for _, e := range ds.Events {
			if e.Timestamp.Before(floor) {
				t.Fatalf("event before window floor: %v", e.Timestamp)
			}
		}
	})
}

func TestRunOverdraftScenario(t *testing.T) {
	// A pool of one customer receiving every event shows overdraft
	// propagating through the balance chain.
	cfg := testConfig(1, 3)
	gen, err := New(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ds, err := gen.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(ds.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(ds.Events))
	}

	balance := ds.Events[0].OldBalance
	for i, e := range ds.Events {
		if math.Abs(e.OldBalance-balance) > 1e-6 {
			t.Fatalf("event %d old_balance %v, want %v", i, e.OldBalance, balance)
		}
		balance -= e.Amount
		if math.Abs(e.NewBalance-balance) > 1e-6 {
			t.Fatalf("event %d new_balance %v, want %v", i, e.NewBalance, balance)
		}
	}
}

func groupByCustomer(events []*domain.TransactionEvent) map[string][]*domain.TransactionEvent {
	byCustomer := make(map[string][]*domain.TransactionEvent)
	for _, e := range events {
		byCustomer[e.CustomerID] = append(byCustomer[e.CustomerID], e)
	}
	return byCustomer
}

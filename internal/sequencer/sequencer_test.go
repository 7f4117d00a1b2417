package sequencer

import (
	"math"
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/dist"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/profile"
)

func newTestPool(t *testing.T, size int, seed uint64) *profile.Pool {
	t.Helper()
	cfg := domain.DefaultGeneratorConfig()
	cfg.PoolSize = size
	pool, err := profile.NewPool(cfg, dist.New(seed))
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	return pool
}

func TestNew(t *testing.T) {
	cfg := domain.DefaultGeneratorConfig()

	t.Run("NilPool", func(t *testing.T) {
		if _, err := New(nil, cfg); err == nil {
			t.Error("expected error for nil pool")
		}
	})

	t.Run("ZeroSumWeights", func(t *testing.T) {
		bad := cfg
		bad.CategoryWeights = map[string]float64{"x": 0}
		if _, err := New(newTestPool(t, 5, 1), bad); err == nil {
			t.Error("expected error for zero-sum category weights")
		}
	})
}

func TestAssign(t *testing.T) {
	pool := newTestPool(t, 20, 1)
	seq, err := New(pool, domain.DefaultGeneratorConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Run("InvalidCount", func(t *testing.T) {
		for _, n := range []int{0, -1} {
			if _, err := seq.Assign(n, dist.New(2)); err == nil {
				t.Errorf("expected error for count %d", n)
			}
		}
	})

	t.Run("CountsSumToTotal", func(t *testing.T) {
		counts, err := seq.Assign(1000, dist.New(2))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(counts) != pool.Size() {
			t.Fatalf("counts length %d != pool size %d", len(counts), pool.Size())
		}
		total := 0
		for _, c := range counts {
			total += c
		}
		if total != 1000 {
			t.Errorf("assigned %d events, want 1000", total)
		}
	})
}

func TestTimeline(t *testing.T) {
	cfg := domain.DefaultGeneratorConfig()
	pool := newTestPool(t, 3, 7)
	seq, err := New(pool, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id := pool.IDs()[0]
	p := pool.Get(id)
	initial := p.Balance

	events := seq.Timeline(p, 50, dist.New(99))
	if len(events) != 50 {
		t.Fatalf("expected 50 events, got %d", len(events))
	}

	t.Run("Chronological", func(t *testing.T) {
		for i := 1; i < len(events); i++ {
			if events[i].Timestamp.Before(events[i-1].Timestamp) {
				t.Fatalf("timestamps out of order at event %d", i)
			}
		}
	})

	t.Run("BalanceChain", func(t *testing.T) {
		balance := initial
		for i, e := range events {
			if math.Abs(e.OldBalance-balance) > 1e-6 {
				t.Fatalf("event %d old_balance %v, want %v", i, e.OldBalance, balance)
			}
			if math.Abs(e.NewBalance-(e.OldBalance-e.Amount)) > 1e-6 {
				t.Fatalf("event %d balance arithmetic broken", i)
			}
			balance = e.NewBalance
		}
		if math.Abs(p.Balance-balance) > 1e-6 {
			t.Errorf("profile balance %v not advanced to %v", p.Balance, balance)
		}
	})

	t.Run("RunningCount", func(t *testing.T) {
		for i, e := range events {
			if e.TxnFreq != i+1 {
				t.Fatalf("event %d txn_freq %d, want %d", i, e.TxnFreq, i+1)
			}
		}
		if events[0].HasPrior {
			t.Error("first event must not report a prior gap")
		}
		for i := 1; i < len(events); i++ {
			if !events[i].HasPrior {
				t.Fatalf("event %d missing prior gap", i)
			}
			gap := events[i].Timestamp.Sub(events[i-1].Timestamp)
			if events[i].SinceLast != gap {
				t.Fatalf("event %d since_last %v != timestamp gap %v", i, events[i].SinceLast, gap)
			}
		}
	})

	t.Run("AmountsRounded", func(t *testing.T) {
		for _, e := range events {
			if e.Amount <= 0 {
				t.Fatalf("non-positive amount %v", e.Amount)
			}
			cents := e.Amount * 100
			if math.Abs(cents-math.Round(cents)) > 1e-6 {
				t.Fatalf("amount %v not rounded to cents", e.Amount)
			}
		}
	})

	t.Run("LocationShape", func(t *testing.T) {
		for _, e := range events {
			parts := strings.Split(e.Location, ", ")
			if len(parts) != 2 {
				t.Fatalf("malformed location %q", e.Location)
			}
			if parts[1] != e.TxnCountry {
				t.Fatalf("location country %q != txn country %q", parts[1], e.TxnCountry)
			}
		}
	})

	t.Run("MerchantSuffixes", func(t *testing.T) {
		for _, e := range events {
			switch e.Category {
			case "electronics":
				if !strings.HasSuffix(e.Merchant, " Electronics") {
					t.Errorf("electronics merchant %q missing suffix", e.Merchant)
				}
			case "travel":
				if !strings.HasSuffix(e.Merchant, " Travel") {
					t.Errorf("travel merchant %q missing suffix", e.Merchant)
				}
			}
		}
	})
}

func TestCrossBorder(t *testing.T) {
	cfg := domain.DefaultGeneratorConfig()
	cfg.CrossBorderProb = 1.0 // force every transaction abroad
	pool := newTestPool(t, 1, 3)
	seq, err := New(pool, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p := pool.Get(pool.IDs()[0])
	for _, e := range seq.Timeline(p, 100, dist.New(4)) {
		if !e.CrossBorder() {
			t.Fatalf("expected cross-border event, got country %s (home %s)", e.TxnCountry, e.HomeCountry)
		}
	}
}

func TestDebitOverdraft(t *testing.T) {
	// Three spends of [100, 2000, 50] against a starting balance of 1000:
	// overdraft propagates through the chain instead of erroring.
	p := &domain.CustomerProfile{ID: "c1", Balance: 1000}

	wantOld := []float64{1000, 900, -1100}
	wantNew := []float64{900, -1100, -1150}
	for i, amount := range []float64{100, 2000, 50} {
		oldBal, newBal := p.Debit(amount)
		if oldBal != wantOld[i] || newBal != wantNew[i] {
			t.Fatalf("debit %d: got (%v, %v), want (%v, %v)", i, oldBal, newBal, wantOld[i], wantNew[i])
		}
	}
	if p.Balance != -1150 {
		t.Errorf("final balance %v, want -1150", p.Balance)
	}
}

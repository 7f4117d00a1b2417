// Package sequencer advances simulated time per customer, producing each
// customer's chronologically ordered stream of raw transaction events while
// mutating the customer's balance and cursor state.
package sequencer

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/dist"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/profile"
)

// Amount and timing distribution parameters. Fixed policy of the generator.
const (
	smallAmountMu    = 3.0
	smallAmountSigma = 0.5
	largeAmountMu    = 6.0
	largeAmountSigma = 0.8

	// First events start in a historical window 6 to 12 months back.
	startWindowMin = 6 * 30 * 24 * time.Hour
	startWindowMax = 12 * 30 * 24 * time.Hour
)

var genders = []string{"M", "F"}

var transactionTypes = []string{"online", "POS", "ATM"}

// Sequencer generates raw, unlabeled transaction events against a customer
// pool.
type Sequencer struct {
	pool       *profile.Pool
	cfg        domain.GeneratorConfig
	categories *dist.WeightedChooser

	// anchor is the reference point of the historical start window. Taken
	// from the config, never the wall clock, so a run is a pure function
	// of (config, seed).
	anchor time.Time
}

// New creates a sequencer. It fails fast on an empty pool or a malformed
// category weight table.
func New(pool *profile.Pool, cfg domain.GeneratorConfig) (*Sequencer, error) {
	if pool == nil || pool.Size() == 0 {
		return nil, fmt.Errorf("customer pool is empty")
	}

	categories, err := dist.NewWeightedChooser(cfg.CategoryWeights)
	if err != nil {
		return nil, fmt.Errorf("invalid category weights: %w", err)
	}

	anchor := cfg.TimeAnchor
	if anchor.IsZero() {
		anchor = domain.DefaultTimeAnchor
	}

	return &Sequencer{
		pool:       pool,
		cfg:        cfg,
		categories: categories,
		anchor:     anchor.UTC().Truncate(time.Second),
	}, nil
}

// Assign distributes numTransactions across the pool, drawing a customer
// uniformly with replacement for each event. It returns per-customer event
// counts in pool creation order.
func (s *Sequencer) Assign(numTransactions int, src *dist.Source) ([]int, error) {
	if numTransactions <= 0 {
		return nil, fmt.Errorf("transaction count must be positive, got %d", numTransactions)
	}

	counts := make([]int, s.pool.Size())
	for i := 0; i < numTransactions; i++ {
		counts[src.IntN(s.pool.Size())]++
	}
	return counts, nil
}

// Timeline generates count events for one customer in strict chronological
// order, mutating the profile's balance and cursor. The caller must own the
// profile exclusively for the duration of the call.
func (s *Sequencer) Timeline(p *domain.CustomerProfile, count int, src *dist.Source) []*domain.TransactionEvent {
	if count <= 0 {
		return nil
	}

	events := make([]*domain.TransactionEvent, 0, count)
	cursor := s.startTime(src)

	for i := 0; i < count; i++ {
		gap := time.Duration(src.Exponential(s.cfg.GapMeanHours) * float64(time.Hour))
		cursor = cursor.Add(gap)

		e := s.nextEvent(p, cursor, src)
		if p.TxnCount > 1 {
			e.SinceLast = gap
			e.HasPrior = true
		}
		events = append(events, e)
	}

	return events
}

// nextEvent draws one event at the given timestamp and applies it to the
// profile.
func (s *Sequencer) nextEvent(p *domain.CustomerProfile, ts time.Time, src *dist.Source) *domain.TransactionEvent {
	amount := s.drawAmount(src)
	category := s.categories.Pick(src)

	txnCountry := p.HomeCountry
	if src.Bool(s.cfg.CrossBorderProb) {
		txnCountry = s.pickForeignCountry(p.HomeCountry, src)
	}

	oldBalance, newBalance := p.Debit(amount)
	p.TxnCount++
	p.LastTimestamp = ts

	return &domain.TransactionEvent{
		CustomerID:      p.ID,
		Timestamp:       ts,
		Amount:          amount,
		OldBalance:      oldBalance,
		NewBalance:      newBalance,
		Merchant:        pickMerchant(category, src),
		Category:        category,
		Location:        pickCity(src) + ", " + txnCountry,
		Age:             p.Age,
		Gender:          genders[src.IntN(len(genders))],
		TransactionType: transactionTypes[src.IntN(len(transactionTypes))],
		TxnFreq:         p.TxnCount,
		HomeCountry:     p.HomeCountry,
		TxnCountry:      txnCountry,
	}
}

// drawAmount picks from the small log-normal most of the time and the large
// one with LargeAmountProb, rounded to cents.
func (s *Sequencer) drawAmount(src *dist.Source) float64 {
	var amount float64
	if src.Bool(s.cfg.LargeAmountProb) {
		amount = src.LogNormal(largeAmountMu, largeAmountSigma)
	} else {
		amount = src.LogNormal(smallAmountMu, smallAmountSigma)
	}
	return math.Round(amount*100) / 100
}

// startTime draws the customer's timeline anchor uniformly from the
// historical window.
func (s *Sequencer) startTime(src *dist.Source) time.Time {
	span := startWindowMax - startWindowMin
	back := startWindowMin + time.Duration(src.Float64()*float64(span))
	return s.anchor.Add(-back)
}

// pickForeignCountry draws any country other than home. With a single-entry
// country set there is nowhere else to go, so home is returned.
func (s *Sequencer) pickForeignCountry(home string, src *dist.Source) string {
	if len(s.cfg.Countries) < 2 {
		return home
	}
	for {
		c := s.cfg.Countries[src.IntN(len(s.cfg.Countries))]
		if c != home {
			return c
		}
	}
}

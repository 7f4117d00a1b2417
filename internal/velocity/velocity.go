// Package velocity tracks live per-customer transaction velocity.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

const (
	// counterWindow bounds the rolling count used for the frequency term.
	counterWindow = 24 * time.Hour

	// lastSeenTTL keeps the last-seen marker around long enough that a
	// dormant customer is treated as new again.
	lastSeenTTL = 30 * 24 * time.Hour
)

// Observation is the velocity snapshot for a single incoming transaction.
type Observation struct {
	// TxnFreq is the customer's running transaction count, this one included.
	TxnFreq int

	// SinceLastHours is the gap to the previous transaction. Zero when
	// HasPrior is false.
	SinceLastHours float64

	// HasPrior reports whether the customer has been seen before.
	HasPrior bool
}

// Tracker computes velocity observations backed by the cache layer.
// Counters live in the cache so multiple nodes see the same counts.
type Tracker struct {
	cache domain.Cache
}

// NewTracker creates a velocity tracker on top of the given cache.
func NewTracker(cache domain.Cache) *Tracker {
	return &Tracker{cache: cache}
}

// Observe records a transaction at ts and returns the velocity snapshot
// the scoring model needs. The counter increment and last-seen update
// happen as part of the call, so each transaction is counted exactly once.
func (t *Tracker) Observe(ctx context.Context, tenantID, customerID string, ts time.Time) (*Observation, error) {
	if tenantID == "" || customerID == "" {
		return nil, fmt.Errorf("tenantID and customerID are required")
	}

	obs := &Observation{}

	// Previous sighting, if any.
	raw, err := t.cache.Get(ctx, tenantID, lastSeenKey(customerID))
	if err != nil {
		return nil, fmt.Errorf("failed to read last-seen marker: %w", err)
	}
	if raw != nil {
		last, perr := time.Parse(domain.TimestampLayout, string(raw))
		if perr != nil {
			return nil, fmt.Errorf("corrupt last-seen marker for %s: %w", customerID, perr)
		}
		obs.HasPrior = true
		obs.SinceLastHours = ts.Sub(last).Hours()
	}

	count, err := t.cache.IncrementCounter(ctx, tenantID, "velocity:"+customerID, counterWindow)
	if err != nil {
		return nil, fmt.Errorf("failed to increment velocity counter: %w", err)
	}
	obs.TxnFreq = int(count)

	marker := []byte(ts.Format(domain.TimestampLayout))
	if err := t.cache.Set(ctx, tenantID, lastSeenKey(customerID), marker, lastSeenTTL); err != nil {
		return nil, fmt.Errorf("failed to update last-seen marker: %w", err)
	}

	return obs, nil
}

func lastSeenKey(customerID string) string {
	return "lastseen:" + customerID
}

// Package scoring computes the composite fraud-risk score for a transaction
// event given the customer state at that moment plus rolling context.
package scoring

import (
	"math"

	"github.com/opensource-finance/kestrel/internal/dist"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Scoring policy constants. The score is the sum of ten independent terms;
// all weights here are fixed policy, not inputs.
const (
	categoryMultiplier = 2.5

	amountCap        = 2.0
	amountDivisor    = 1000.0
	amountExcessBase = 5000.0
	amountExcessDiv  = 10000.0

	nightRisk    = 0.8
	lunchRisk    = 0.4
	eveningRisk  = 0.3
	burstRisk    = 1.5 // prior event < 6 minutes ago
	rapidRisk    = 0.8 // prior event < 1 hour ago
	burstWindow  = 0.1 // hours
	rapidWindow  = 1.0 // hours
	overdraft    = 1.5 // amount exceeds 105% of balance
	overdraftPct = 1.05
	lowBalance   = 0.7
	lowBalanceAt = 50.0

	countryRiskWeight  = 0.8
	customerRiskWeight = 1.2

	newCustomerMaxFreq = 5
	newCustomerDecay   = 0.15

	crossBorderRisk = 0.9

	noiseStd = 0.3
)

// Input carries everything the model needs for one event.
type Input struct {
	Amount     float64
	OldBalance float64
	NewBalance float64
	Category   string
	Hour       int // local hour of the event timestamp

	// Rolling context
	TxnFreq        int     // running per-customer count, 1-based
	SinceLastHours float64 // gap to the customer's prior event
	HasPrior       bool    // false for a customer's first event

	// Profile attributes
	RiskFactor  float64
	CountryRisk float64
	CrossBorder bool
}

// Model computes composite fraud scores. Scores are unbounded and may be
// negative; higher means riskier.
type Model struct {
	categoryWeights map[string]float64
}

// NewModel creates a model using the given category weight table, the same
// table the sequencer samples categories from.
func NewModel(categoryWeights map[string]float64) *Model {
	return &Model{categoryWeights: categoryWeights}
}

// Score returns the deterministic part of the composite score: the sum of
// the nine non-noise terms. Repeated calls with identical inputs return
// identical values.
func (m *Model) Score(in Input) float64 {
	score := 0.0

	// 1. Category base risk
	score += m.categoryWeights[in.Category] * categoryMultiplier

	// 2. Amount risk
	score += math.Min(in.Amount/amountDivisor, amountCap)
	score += math.Max(0, (in.Amount-amountExcessBase)/amountExcessDiv)

	// 3. Time-of-day risk
	switch {
	case in.Hour < 5 || in.Hour > 22:
		score += nightRisk
	case in.Hour >= 12 && in.Hour <= 14:
		score += lunchRisk
	case in.Hour >= 17 && in.Hour <= 19:
		score += eveningRisk
	}

	// 4. Velocity risk, intra-customer only
	if in.HasPrior {
		switch {
		case in.SinceLastHours < burstWindow:
			score += burstRisk
		case in.SinceLastHours < rapidWindow:
			score += rapidRisk
		}
	}

	// 5. Balance patterns
	if in.Amount > in.OldBalance*overdraftPct {
		score += overdraft
	}
	if in.NewBalance < lowBalanceAt {
		score += lowBalance
	}

	// 6. Geographic risk
	score += in.CountryRisk * countryRiskWeight

	// 7. Intrinsic customer risk
	score += in.RiskFactor * customerRiskWeight

	// 8. New customer pattern
	if in.TxnFreq <= newCustomerMaxFreq {
		score += math.Max(0, 1.0-float64(in.TxnFreq)*newCustomerDecay)
	}

	// 9. Cross-border movement
	if in.CrossBorder {
		score += crossBorderRisk
	}

	return score
}

// ScoreWithNoise adds the irreducible noise term on top of the deterministic
// score. The noise keeps the label from being perfectly recoverable from the
// features.
func (m *Model) ScoreWithNoise(in Input, src *dist.Source) float64 {
	return m.Score(in) + src.Normal(0, noiseStd)
}

// InputFromEvent builds a scoring input from a generated event.
func InputFromEvent(e *domain.TransactionEvent, p *domain.CustomerProfile) Input {
	return Input{
		Amount:         e.Amount,
		OldBalance:     e.OldBalance,
		NewBalance:     e.NewBalance,
		Category:       e.Category,
		Hour:           e.Timestamp.Hour(),
		TxnFreq:        e.TxnFreq,
		SinceLastHours: e.SinceLast.Hours(),
		HasPrior:       e.HasPrior,
		RiskFactor:     p.RiskFactor,
		CountryRisk:    p.CountryRisk,
		CrossBorder:    e.CrossBorder(),
	}
}

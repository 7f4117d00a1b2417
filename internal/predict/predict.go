// Package predict serves fraud decisions for individual transactions.
// It scores the transaction, applies operator overrides, and maps the
// score onto a calibrated fraud probability.
package predict

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

// Processor turns a scored transaction into a final fraud decision.
type Processor struct {
	model     *scoring.Model
	overrides *rules.Engine

	// threshold is the score at which a transaction is flagged as fraud,
	// stored as float bits so a generation run can recalibrate it while
	// predict requests are in flight. It comes from the labelling
	// percentile of the reference dataset.
	threshold atomic.Uint64

	// Scale controls how sharply scores away from the threshold map to
	// probabilities near 0 or 1. Fixed at construction.
	Scale float64
}

// NewProcessor creates a decision processor with default calibration.
// The override engine is optional.
func NewProcessor(model *scoring.Model, overrides *rules.Engine, threshold float64) *Processor {
	if threshold <= 0 {
		threshold = 4.0
	}
	p := &Processor{
		model:     model,
		overrides: overrides,
		Scale:     1.0,
	}
	p.threshold.Store(math.Float64bits(threshold))
	return p
}

// Threshold returns the current fraud threshold.
func (p *Processor) Threshold() float64 {
	return math.Float64frombits(p.threshold.Load())
}

// SetThreshold recalibrates the fraud threshold. Non-positive values are
// ignored. Safe to call concurrently with Process.
func (p *Processor) SetThreshold(threshold float64) {
	if threshold > 0 {
		p.threshold.Store(math.Float64bits(threshold))
	}
}

// DecisionInput contains all data needed for a decision.
type DecisionInput struct {
	TenantID   string
	TraceID    string
	CustomerID string

	// Features is the scoring-model input assembled by the caller from
	// the request, the cached profile, and the live velocity snapshot.
	Features scoring.Input

	// Country strings for override expressions. Features only carries the
	// numeric country risk.
	Country     string
	HomeCountry string

	StartTime time.Time
}

// Process scores the transaction, evaluates overrides, and produces the
// final prediction.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Prediction {
	start := time.Now()
	threshold := p.Threshold()

	pred := &domain.Prediction{
		ID:         uuid.New().String(),
		TenantID:   input.TenantID,
		CustomerID: input.CustomerID,
		Threshold:  threshold,
		Timestamp:  time.Now().UTC(),
	}

	score := p.model.Score(input.Features)
	scoreMs := time.Since(start).Milliseconds()

	pred.Score = score
	pred.Probability = p.probability(score, threshold)
	pred.IsFraud = score >= threshold
	if pred.IsFraud {
		pred.Reasons = append(pred.Reasons, "model score at or above fraud threshold")
	}

	overrideStart := time.Now()
	overridesEvaluated := 0
	if p.overrides != nil {
		results, err := p.overrides.EvaluateAll(ctx, &rules.Input{
			Amount:         input.Features.Amount,
			OldBalance:     input.Features.OldBalance,
			NewBalance:     input.Features.NewBalance,
			Category:       input.Features.Category,
			Country:        input.Country,
			HomeCountry:    input.HomeCountry,
			Hour:           input.Features.Hour,
			TxnFreq:        float64(input.Features.TxnFreq),
			SinceLastHours: input.Features.SinceLastHours,
			CrossBorder:    input.Features.CrossBorder,
			Score:          score,
		})
		if err != nil {
			slog.Error("override evaluation failed",
				"tenant_id", input.TenantID,
				"trace_id", input.TraceID,
				"error", err)
		} else {
			overridesEvaluated = len(results)
			for _, r := range results {
				if r.Triggered {
					// A triggered override forces the fraud decision.
					pred.IsFraud = true
					if r.Reason != "" {
						pred.Reasons = append(pred.Reasons, r.Reason)
					}
				}
			}
		}
	}
	overridesMs := time.Since(overrideStart).Milliseconds()

	pred.RiskLevel = domain.RiskLevelFor(pred.Probability)

	totalStart := input.StartTime
	if totalStart.IsZero() {
		totalStart = start
	}

	pred.Metadata = domain.PredictionMetadata{
		TraceID:     input.TraceID,
		ScoreMs:     scoreMs,
		OverridesMs: overridesMs,
		TotalMs:     time.Since(totalStart).Milliseconds(),
		Overrides:   overridesEvaluated,
	}

	return pred
}

// probability maps a raw model score to a fraud probability with a
// logistic curve centered on the decision threshold. A score exactly at
// the threshold maps to 0.5.
func (p *Processor) probability(score, threshold float64) float64 {
	scale := p.Scale
	if scale <= 0 {
		scale = 1.0
	}
	return 1.0 / (1.0 + math.Exp(-(score-threshold)/scale))
}

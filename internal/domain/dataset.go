package domain

import (
	"time"
)

// Dataset is the labeled output of one generation run.
type Dataset struct {
	// RunID identifies the generation run.
	RunID string `json:"runId"`

	// Seed reproduces the run together with the generator config.
	Seed uint64 `json:"seed"`

	// Events holds one labeled row per generated transaction, grouped by
	// customer and chronologically ordered within each customer.
	Events []*TransactionEvent `json:"-"`

	// Threshold is the score percentile cutoff used for labeling.
	Threshold float64 `json:"threshold"`

	// FraudRate is the realized share of fraud labels. Roughly
	// 1 - percentile/100 in expectation, not an exact guarantee.
	FraudRate float64 `json:"fraudRate"`

	GeneratedAt time.Time `json:"generatedAt"`
}

// RunInfo is the persisted metadata of a generation run. The serving path
// loads the latest run's threshold to turn raw scores into decisions.
type RunInfo struct {
	RunID       string    `json:"runId"`
	Seed        uint64    `json:"seed"`
	Rows        int       `json:"rows"`
	Threshold   float64   `json:"threshold"`
	FraudRate   float64   `json:"fraudRate"`
	GeneratedAt time.Time `json:"generatedAt"`
}

// Info returns the run metadata for a dataset.
func (d *Dataset) Info() *RunInfo {
	return &RunInfo{
		RunID:       d.RunID,
		Seed:        d.Seed,
		Rows:        len(d.Events),
		Threshold:   d.Threshold,
		FraudRate:   d.FraudRate,
		GeneratedAt: d.GeneratedAt,
	}
}

// FraudRateByCategory returns the realized fraud rate per category.
func (d *Dataset) FraudRateByCategory() map[string]float64 {
	totals := make(map[string]int)
	frauds := make(map[string]int)
	for _, e := range d.Events {
		totals[e.Category]++
		frauds[e.Category] += e.IsFraud
	}
	rates := make(map[string]float64, len(totals))
	for cat, n := range totals {
		rates[cat] = float64(frauds[cat]) / float64(n)
	}
	return rates
}

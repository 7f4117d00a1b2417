package domain

import (
	"time"
)

// PredictionRequest is a transaction record submitted for scoring, i.e. a
// dataset row missing is_fraud. Optional fields are substituted with the
// documented defaults ("UNKNOWN" customer/merchant, current time).
type PredictionRequest struct {
	CustomerID      string  `json:"customer_id,omitempty"`
	Timestamp       string  `json:"timestamp,omitempty"` // TimestampLayout
	Amount          float64 `json:"amount"`
	OldBalance      float64 `json:"old_balance"`
	NewBalance      float64 `json:"new_balance"`
	Merchant        string  `json:"merchant,omitempty"`
	Category        string  `json:"category"`
	Location        string  `json:"location"`
	Age             int     `json:"age"`
	Gender          string  `json:"gender"`
	TransactionType string  `json:"transaction_type"`
}

// UnknownValue is substituted for absent optional identity fields.
const UnknownValue = "UNKNOWN"

// Prediction is the scored outcome for a single submitted transaction.
type Prediction struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	CustomerID string    `json:"customerId"`
	IsFraud    bool      `json:"is_fraud"`
	Probability float64  `json:"fraud_probability"`
	Score      float64   `json:"score"`
	Threshold  float64   `json:"threshold"`
	RiskLevel  string    `json:"risk_level"` // HIGH, MEDIUM, LOW
	Reasons    []string  `json:"reasons,omitempty"`
	Timestamp  time.Time `json:"timestamp"`

	// Processing metadata
	Metadata PredictionMetadata `json:"metadata"`
}

// PredictionMetadata contains processing information.
type PredictionMetadata struct {
	TraceID     string `json:"traceId"`
	ScoreMs     int64  `json:"scoreMs"`
	OverridesMs int64  `json:"overridesMs"`
	TotalMs     int64  `json:"totalMs"`
	Overrides   int    `json:"overridesEvaluated"`
}

// Risk level bands, matching the served probability cutoffs.
const (
	RiskLevelHigh   = "HIGH"   // probability > 0.8
	RiskLevelMedium = "MEDIUM" // probability > 0.5
	RiskLevelLow    = "LOW"
)

// RiskLevelFor maps a fraud probability to its risk level.
func RiskLevelFor(probability float64) string {
	switch {
	case probability > 0.8:
		return RiskLevelHigh
	case probability > 0.5:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

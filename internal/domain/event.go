package domain

import (
	"time"
)

// TransactionEvent is one generated transaction row.
//
// Timestamps are monotonically non-decreasing per customer but carry no
// global ordering across customers; each customer's timeline is independent.
type TransactionEvent struct {
	// CustomerID links the event to its CustomerProfile.
	CustomerID string `json:"customer_id"`

	Timestamp time.Time `json:"timestamp"`

	// Amount is positive; OldBalance is the customer balance immediately
	// before this event and NewBalance = OldBalance - Amount.
	Amount     float64 `json:"amount"`
	OldBalance float64 `json:"old_balance"`
	NewBalance float64 `json:"new_balance"`

	Merchant string `json:"merchant"`
	Category string `json:"category"`

	// Location is "City, CC". The country may differ from the customer's
	// home country; that inequality is the cross-border signal.
	Location string `json:"location"`

	Age             int    `json:"age"`
	Gender          string `json:"gender"`
	TransactionType string `json:"transaction_type"`

	// IsFraud is assigned only after the whole batch is scored; it is a
	// batch-relative percentile label, not a per-event property.
	IsFraud int `json:"is_fraud"`

	// Scoring context, derived during sequencing. Not part of the output
	// table.
	TxnFreq     int           `json:"-"` // running per-customer count, 1-based
	SinceLast   time.Duration `json:"-"` // gap to the customer's prior event
	HasPrior    bool          `json:"-"` // false for a customer's first event
	HomeCountry string        `json:"-"`
	TxnCountry  string        `json:"-"`
	Score       float64       `json:"-"`
}

// CrossBorder reports whether the transaction country differs from the
// customer's home country.
func (e *TransactionEvent) CrossBorder() bool {
	return e.TxnCountry != e.HomeCountry
}

// DatasetColumns is the output table column order.
var DatasetColumns = []string{
	"customer_id", "timestamp", "amount", "old_balance", "new_balance",
	"merchant", "category", "location", "age", "gender", "transaction_type",
	"is_fraud",
}

// TimestampLayout is the serialization format for event timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

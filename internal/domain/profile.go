// Package domain defines the core types and interfaces for Kestrel.
package domain

import (
	"time"
)

// CustomerProfile is the persistent state of one synthetic customer.
// Created once per generation run, mutated by every event attributed to the
// customer, never reset.
type CustomerProfile struct {
	// ID is an opaque unique identifier.
	ID string `json:"id"`

	// Age in years, clamped to [18, 80].
	Age int `json:"age"`

	// HomeCountry is the customer's resident country code.
	HomeCountry string `json:"homeCountry"`

	// RiskFactor models inherent customer riskiness, clamped to [0.1, 2.0].
	// Fixed for the customer's lifetime.
	RiskFactor float64 `json:"riskFactor"`

	// CountryRisk is looked up from the country risk table at creation.
	CountryRisk float64 `json:"countryRisk"`

	// InitialBalance is the balance at pool creation, floored at 100.
	InitialBalance float64 `json:"initialBalance"`

	// Balance is the live balance. Every event moves it down by the event
	// amount. Overdraft (negative balance) is a modeled condition, not an
	// error.
	Balance float64 `json:"balance"`

	// Sequencer cursor: the customer's running event count and the
	// timestamp of their most recent event. TxnCount is zero and
	// LastTimestamp is the zero time before the first event.
	TxnCount      int       `json:"txnCount"`
	LastTimestamp time.Time `json:"lastTimestamp"`
}

// Debit consumes amount from the balance and returns the balance before and
// after. The balance is unbounded downward; going negative is overdraft, a
// modeled condition that flows through to scoring unchanged.
func (p *CustomerProfile) Debit(amount float64) (oldBalance, newBalance float64) {
	oldBalance = p.Balance
	newBalance = oldBalance - amount
	p.Balance = newBalance
	return oldBalance, newBalance
}

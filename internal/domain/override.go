package domain

// OverrideRule is an operator-supplied CEL expression evaluated against a
// scored transaction. A triggered override forces the fraud decision
// regardless of the model score.
type OverrideRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Expression is a CEL expression over the prediction-time features
	// (amount, old_balance, new_balance, category, country, home_country,
	// hour, txn_freq, time_since_last_hours, cross_border, score). It must
	// evaluate to bool.
	Expression string `json:"expression"`

	// Reason is attached to the prediction when the override triggers.
	Reason string `json:"reason"`

	// Whether the override is active
	Enabled bool `json:"enabled"`
}

// OverrideResult is the outcome of evaluating one override rule.
type OverrideResult struct {
	RuleID    string `json:"ruleId"`
	Triggered bool   `json:"triggered"`
	Reason    string `json:"reason,omitempty"`
	Err       string `json:"error,omitempty"`
	ProcessMs int64  `json:"processMs"`
}

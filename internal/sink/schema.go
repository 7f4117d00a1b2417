package sink

// Schema definitions for the Kestrel dataset store.
// Compatible with both SQLite and PostgreSQL.

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    seed BIGINT NOT NULL,
    row_count INTEGER NOT NULL,
    threshold REAL NOT NULL,
    fraud_rate REAL NOT NULL,
    generated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_generated ON runs(generated_at);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    run_id TEXT NOT NULL,
    customer_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    amount REAL NOT NULL,
    old_balance REAL NOT NULL,
    new_balance REAL NOT NULL,
    merchant TEXT NOT NULL,
    category TEXT NOT NULL,
    location TEXT NOT NULL,
    age INTEGER NOT NULL,
    gender TEXT NOT NULL,
    transaction_type TEXT NOT NULL,
    is_fraud INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_run ON transactions(run_id);
CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(run_id, customer_id);
CREATE INDEX IF NOT EXISTS idx_transactions_fraud ON transactions(run_id, is_fraud);
`

// AllSchemas returns every schema statement in creation order.
func AllSchemas() []string {
	return []string{
		schemaRuns,
		schemaTransactions,
	}
}

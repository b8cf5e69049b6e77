package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

// The scorecard model occupies a single slot: no version history, each
// successful training run replaces the row. The record itself carries
// an explicit schema_version for safe evolution.
const schemaModelSlot = `
CREATE TABLE IF NOT EXISTS model_slot (
    slot INTEGER PRIMARY KEY,
    schema_version INTEGER NOT NULL,
    weights TEXT NOT NULL,
    metrics TEXT NOT NULL,
    trained_at TIMESTAMP NOT NULL
);
`

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    customer_id TEXT NOT NULL,
    amount REAL NOT NULL,
    type TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_customer ON transactions(customer_id, timestamp);
`

const schemaAlerts = `
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    customer_id TEXT NOT NULL,
    community_id TEXT NOT NULL,
    alert_type TEXT NOT NULL,
    description TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_alerts_community ON alerts(community_id, timestamp);
`

const schemaReports = `
CREATE TABLE IF NOT EXISTS community_reports (
    id TEXT PRIMARY KEY,
    community_id TEXT NOT NULL,
    alert_count INTEGER NOT NULL,
    risk_score REAL NOT NULL,
    risk_customers TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_reports_community ON community_reports(community_id, timestamp);
`

// AllSchemas returns all schema definitions in creation order.
func AllSchemas() []string {
	return []string{
		schemaModelSlot,
		schemaTransactions,
		schemaAlerts,
		schemaReports,
	}
}

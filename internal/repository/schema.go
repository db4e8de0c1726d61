package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaClaims = `
CREATE TABLE IF NOT EXISTS claims (
    id TEXT PRIMARY KEY,
    attributes TEXT NOT NULL,
    received_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_claims_received ON claims(received_at);
`

const schemaScoreRecords = `
CREATE TABLE IF NOT EXISTS score_records (
    id TEXT PRIMARY KEY,
    claim_id TEXT NOT NULL,
    claim TEXT NOT NULL,
    score INTEGER NOT NULL,
    risk_segment TEXT NOT NULL,
    recommended_action TEXT,
    model_mode TEXT NOT NULL,
    probability REAL NOT NULL,
    key_risk_factors TEXT,
    scorecard_breakdown TEXT,
    processing_ms REAL NOT NULL DEFAULT 0,
    model_version TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_score_records_claim ON score_records(claim_id);
CREATE INDEX IF NOT EXISTS idx_score_records_created ON score_records(created_at);
CREATE INDEX IF NOT EXISTS idx_score_records_segment ON score_records(risk_segment, created_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaClaims,
		schemaScoreRecords,
	}
}

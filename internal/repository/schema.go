package repository

// Schema definitions for the Kestrel audit store.
// Compatible with both SQLite and PostgreSQL.

const schemaSimulations = `
CREATE TABLE IF NOT EXISTS simulations (
    id TEXT PRIMARY KEY,
    simulation_id TEXT NOT NULL,
    sender_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    amount REAL NOT NULL,
    verdict TEXT NOT NULL,
    verdict_reason TEXT NOT NULL DEFAULT '',
    result TEXT,
    recorded_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_simulations_recorded ON simulations(recorded_at);
CREATE INDEX IF NOT EXISTS idx_simulations_sender ON simulations(sender_id);
CREATE INDEX IF NOT EXISTS idx_simulations_verdict ON simulations(verdict);
`

// AllSchemas returns all schema definitions in order.
func AllSchemas() []string {
	return []string{
		schemaSimulations,
	}
}

// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository stores the simulation audit trail. Analysis results are never
// persisted; only the record of which hypotheses were run.
type Repository interface {
	SaveSimulation(ctx context.Context, rec *SimulationRecord) error
	GetSimulation(ctx context.Context, id string) (*SimulationRecord, error)
	ListSimulations(ctx context.Context, limit int) ([]*SimulationRecord, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// SimulationRecord is one audited what-if run.
type SimulationRecord struct {
	ID            string            `json:"id"`
	SimulationID  string            `json:"simulationId"`
	SenderID      string            `json:"senderId"`
	ReceiverID    string            `json:"receiverId"`
	Amount        float64           `json:"amount"`
	Verdict       Verdict           `json:"verdict"`
	VerdictReason string            `json:"verdictReason"`
	Result        *SimulationResult `json:"result,omitempty"`
	RecordedAt    time.Time         `json:"recordedAt"`
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string `env:"KESTREL_DB_DRIVER"`

	// SQLite specific
	SQLitePath string `env:"KESTREL_SQLITE_PATH"`

	// PostgreSQL specific
	PostgresHost     string `env:"KESTREL_PG_HOST"`
	PostgresPort     int    `env:"KESTREL_PG_PORT"`
	PostgresUser     string `env:"KESTREL_PG_USER"`
	PostgresPassword string `env:"KESTREL_PG_PASSWORD"`
	PostgresDB       string `env:"KESTREL_PG_DB"`
	PostgresSSLMode  string `env:"KESTREL_PG_SSLMODE"`

	// Connection pool settings
	MaxOpenConns    int           `env:"KESTREL_DB_MAX_OPEN"`
	MaxIdleConns    int           `env:"KESTREL_DB_MAX_IDLE"`
	ConnMaxLifetime time.Duration `env:"KESTREL_DB_CONN_MAX_LIFETIME"`
}

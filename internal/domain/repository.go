package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence: the single-slot
// scorecard model, transaction history, and monitoring outputs.
type Repository interface {
	ModelStore

	// Transaction history feeding activity features and audit
	SaveTransaction(ctx context.Context, tx *Transaction) error
	GetTransactionsByCustomer(ctx context.Context, customerID string, since time.Time) ([]*Transaction, error)

	// Monitoring outputs
	SaveAlert(ctx context.Context, alert *Alert) error
	ListAlerts(ctx context.Context, communityID string, since time.Time) ([]*Alert, error)
	SaveReport(ctx context.Context, report *CommunityRiskReport) error
	ListReports(ctx context.Context, since time.Time) ([]*CommunityRiskReport, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveModel replaces the single model slot atomically via upsert.
func (r *SQLRepository) SaveModel(ctx context.Context, record *domain.ModelRecord) error {
	if record == nil || len(record.Weights) == 0 {
		return fmt.Errorf("%w: model record must carry weights", domain.ErrValidation)
	}

	weights, err := json.Marshal(record.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	query := `
		INSERT INTO model_slot (slot, schema_version, weights, metrics, trained_at)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			schema_version = excluded.schema_version,
			weights = excluded.weights,
			metrics = excluded.metrics,
			trained_at = excluded.trained_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		record.SchemaVersion, string(weights), string(metrics), record.TrainedAt,
	)
	return err
}

// LoadModel returns the current model record, or domain.ErrNotFound if
// no model has ever been trained.
func (r *SQLRepository) LoadModel(ctx context.Context) (*domain.ModelRecord, error) {
	query := `
		SELECT schema_version, weights, metrics, trained_at
		FROM model_slot WHERE slot = 1
	`

	var record domain.ModelRecord
	var weights, metrics string

	err := r.db.QueryRowContext(ctx, query).Scan(
		&record.SchemaVersion, &weights, &metrics, &record.TrainedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(weights), &record.Weights); err != nil {
		return nil, fmt.Errorf("unmarshal weights: %w", err)
	}
	if err := json.Unmarshal([]byte(metrics), &record.Metrics); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}

	return &record, nil
}

// SaveTransaction stores one transaction event.
func (r *SQLRepository) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	if !tx.Valid() {
		return fmt.Errorf("%w: transaction requires customerId, amount and timestamp", domain.ErrValidation)
	}

	query := `
		INSERT INTO transactions (customer_id, amount, type, timestamp)
		VALUES (?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.CustomerID, tx.Amount, tx.Type, tx.Timestamp,
	)
	return err
}

// GetTransactionsByCustomer retrieves a customer's transactions since
// the given time, newest first.
func (r *SQLRepository) GetTransactionsByCustomer(ctx context.Context, customerID string, since time.Time) ([]*domain.Transaction, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customerId is required", domain.ErrValidation)
	}

	query := `
		SELECT customer_id, amount, type, timestamp
		FROM transactions
		WHERE customer_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), customerID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []*domain.Transaction
	for rows.Next() {
		var tx domain.Transaction
		if err := rows.Scan(&tx.CustomerID, &tx.Amount, &tx.Type, &tx.Timestamp); err != nil {
			return nil, err
		}
		transactions = append(transactions, &tx)
	}
	return transactions, rows.Err()
}

// SaveAlert stores one anomaly alert.
func (r *SQLRepository) SaveAlert(ctx context.Context, alert *domain.Alert) error {
	query := `
		INSERT INTO alerts (id, customer_id, community_id, alert_type, description, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		alert.ID, alert.CustomerID, alert.CommunityID,
		alert.AlertType, alert.Description, alert.Timestamp,
	)
	return err
}

// ListAlerts retrieves alerts since the given time, optionally filtered
// by community, newest first.
func (r *SQLRepository) ListAlerts(ctx context.Context, communityID string, since time.Time) ([]*domain.Alert, error) {
	query := `
		SELECT id, customer_id, community_id, alert_type, description, timestamp
		FROM alerts
		WHERE timestamp >= ?
	`
	args := []any{since}
	if communityID != "" {
		query += ` AND community_id = ?`
		args = append(args, communityID)
	}
	query += ` ORDER BY timestamp DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var alerts []*domain.Alert
	for rows.Next() {
		var a domain.Alert
		if err := rows.Scan(&a.ID, &a.CustomerID, &a.CommunityID, &a.AlertType, &a.Description, &a.Timestamp); err != nil {
			return nil, err
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}

// SaveReport stores one community risk report.
func (r *SQLRepository) SaveReport(ctx context.Context, report *domain.CommunityRiskReport) error {
	customers, err := json.Marshal(report.RiskCustomers)
	if err != nil {
		return fmt.Errorf("marshal risk customers: %w", err)
	}

	query := `
		INSERT INTO community_reports (id, community_id, alert_count, risk_score, risk_customers, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		report.ID, report.CommunityID, report.AlertCount,
		report.RiskScore, string(customers), report.Timestamp,
	)
	return err
}

// ListReports retrieves community risk reports since the given time,
// newest first.
func (r *SQLRepository) ListReports(ctx context.Context, since time.Time) ([]*domain.CommunityRiskReport, error) {
	query := `
		SELECT id, community_id, alert_count, risk_score, risk_customers, timestamp
		FROM community_reports
		WHERE timestamp >= ?
		ORDER BY timestamp DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reports []*domain.CommunityRiskReport
	for rows.Next() {
		var report domain.CommunityRiskReport
		var customers string
		if err := rows.Scan(&report.ID, &report.CommunityID, &report.AlertCount, &report.RiskScore, &customers, &report.Timestamp); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(customers), &report.RiskCustomers); err != nil {
			return nil, fmt.Errorf("unmarshal risk customers: %w", err)
		}
		reports = append(reports, &report)
	}
	return reports, rows.Err()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

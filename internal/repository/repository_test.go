package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "harrier.db"),
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestNew(t *testing.T) {
	t.Run("UnsupportedDriver", func(t *testing.T) {
		if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
			t.Error("expected an error for an unsupported driver")
		}
	})

	t.Run("SQLite", func(t *testing.T) {
		repo := newTestRepo(t)
		if err := repo.Ping(context.Background()); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestModelSlot(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	t.Run("LoadBeforeTraining", func(t *testing.T) {
		if _, err := repo.LoadModel(ctx); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("EmptyRecordRejected", func(t *testing.T) {
		err := repo.SaveModel(ctx, &domain.ModelRecord{SchemaVersion: domain.ModelSchemaVersion})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		record := &domain.ModelRecord{
			SchemaVersion: domain.ModelSchemaVersion,
			Weights:       map[string]float64{"age": 0.5, "income": -0.2},
			Metrics:       domain.Metrics{Accuracy: 0.9, Precision: 0.8, Recall: 0.7, F1: 0.75},
			TrainedAt:     time.Now().UTC().Truncate(time.Second),
		}
		if err := repo.SaveModel(ctx, record); err != nil {
			t.Fatalf("SaveModel failed: %v", err)
		}

		loaded, err := repo.LoadModel(ctx)
		if err != nil {
			t.Fatalf("LoadModel failed: %v", err)
		}
		if loaded.SchemaVersion != record.SchemaVersion {
			t.Errorf("schema version: expected %d, got %d", record.SchemaVersion, loaded.SchemaVersion)
		}
		if len(loaded.Weights) != 2 || loaded.Weights["age"] != 0.5 || loaded.Weights["income"] != -0.2 {
			t.Errorf("weights round-trip mismatch: %v", loaded.Weights)
		}
		if loaded.Metrics != record.Metrics {
			t.Errorf("metrics round-trip mismatch: %+v", loaded.Metrics)
		}
		if !loaded.TrainedAt.Equal(record.TrainedAt) {
			t.Errorf("trained-at round-trip mismatch: %v vs %v", loaded.TrainedAt, record.TrainedAt)
		}
	})

	t.Run("SingleSlotOverwrite", func(t *testing.T) {
		replacement := &domain.ModelRecord{
			SchemaVersion: domain.ModelSchemaVersion,
			Weights:       map[string]float64{"age": 1.0},
			TrainedAt:     time.Now().UTC().Truncate(time.Second),
		}
		if err := repo.SaveModel(ctx, replacement); err != nil {
			t.Fatalf("SaveModel failed: %v", err)
		}

		loaded, err := repo.LoadModel(ctx)
		if err != nil {
			t.Fatalf("LoadModel failed: %v", err)
		}
		if len(loaded.Weights) != 1 || loaded.Weights["age"] != 1.0 {
			t.Errorf("expected the replacement model, got %v", loaded.Weights)
		}
	})
}

func TestTransactions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("InvalidRejected", func(t *testing.T) {
		err := repo.SaveTransaction(ctx, &domain.Transaction{CustomerID: "c1"})
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("EmptyCustomerQueryRejected", func(t *testing.T) {
		if _, err := repo.GetTransactionsByCustomer(ctx, "", base); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("SinceFilterAndOrder", func(t *testing.T) {
		for i, amount := range []float64{100, 200, 300} {
			tx := &domain.Transaction{
				CustomerID: "c1",
				Amount:     amount,
				Type:       "TRANSFER",
				Timestamp:  base.Add(time.Duration(i) * time.Hour),
			}
			if err := repo.SaveTransaction(ctx, tx); err != nil {
				t.Fatalf("SaveTransaction failed: %v", err)
			}
		}
		other := &domain.Transaction{CustomerID: "c2", Amount: 50, Type: "PAYMENT", Timestamp: base}
		if err := repo.SaveTransaction(ctx, other); err != nil {
			t.Fatalf("SaveTransaction failed: %v", err)
		}

		txs, err := repo.GetTransactionsByCustomer(ctx, "c1", base.Add(time.Hour))
		if err != nil {
			t.Fatalf("GetTransactionsByCustomer failed: %v", err)
		}
		if len(txs) != 2 {
			t.Fatalf("expected 2 transactions, got %d", len(txs))
		}
		// Newest first.
		if txs[0].Amount != 300 || txs[1].Amount != 200 {
			t.Errorf("unexpected order: %f, %f", txs[0].Amount, txs[1].Amount)
		}
		if txs[0].CustomerID != "c1" {
			t.Errorf("crossed customer boundary: %q", txs[0].CustomerID)
		}
	})
}

func TestAlerts(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	seed := []*domain.Alert{
		{ID: "a1", CustomerID: "c1", CommunityID: "g1", AlertType: domain.AlertAnomalousPattern, Description: "d1", Timestamp: base},
		{ID: "a2", CustomerID: "c2", CommunityID: "g1", AlertType: domain.AlertAnomalousPattern, Description: "d2", Timestamp: base.Add(time.Hour)},
		{ID: "a3", CustomerID: "c3", CommunityID: "g2", AlertType: domain.AlertAnomalousPattern, Description: "d3", Timestamp: base.Add(2 * time.Hour)},
	}
	for _, a := range seed {
		if err := repo.SaveAlert(ctx, a); err != nil {
			t.Fatalf("SaveAlert failed: %v", err)
		}
	}

	t.Run("ListAll", func(t *testing.T) {
		alerts, err := repo.ListAlerts(ctx, "", base)
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(alerts) != 3 {
			t.Fatalf("expected 3 alerts, got %d", len(alerts))
		}
		// Newest first.
		if alerts[0].ID != "a3" {
			t.Errorf("expected a3 first, got %q", alerts[0].ID)
		}
	})

	t.Run("CommunityFilter", func(t *testing.T) {
		alerts, err := repo.ListAlerts(ctx, "g1", base)
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(alerts) != 2 {
			t.Fatalf("expected 2 alerts for g1, got %d", len(alerts))
		}
		for _, a := range alerts {
			if a.CommunityID != "g1" {
				t.Errorf("unexpected community %q", a.CommunityID)
			}
		}
	})

	t.Run("SinceFilter", func(t *testing.T) {
		alerts, err := repo.ListAlerts(ctx, "", base.Add(90*time.Minute))
		if err != nil {
			t.Fatalf("ListAlerts failed: %v", err)
		}
		if len(alerts) != 1 || alerts[0].ID != "a3" {
			t.Errorf("expected only a3, got %v", alerts)
		}
	})
}

func TestReports(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	report := &domain.CommunityRiskReport{
		ID:            "r1",
		CommunityID:   "g1",
		AlertCount:    3,
		RiskScore:     30,
		RiskCustomers: []string{"c1", "c2", "c3"},
		Timestamp:     base,
	}
	if err := repo.SaveReport(ctx, report); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}
	later := &domain.CommunityRiskReport{
		ID:          "r2",
		CommunityID: "g2",
		AlertCount:  1,
		RiskScore:   10,
		Timestamp:   base.Add(time.Hour),
	}
	if err := repo.SaveReport(ctx, later); err != nil {
		t.Fatalf("SaveReport failed: %v", err)
	}

	reports, err := repo.ListReports(ctx, base)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	// Newest first.
	if reports[0].ID != "r2" {
		t.Errorf("expected r2 first, got %q", reports[0].ID)
	}
	got := reports[1]
	if got.AlertCount != 3 || got.RiskScore != 30 {
		t.Errorf("report fields mismatch: %+v", got)
	}
	if len(got.RiskCustomers) != 3 || got.RiskCustomers[0] != "c1" {
		t.Errorf("risk customers round-trip mismatch: %v", got.RiskCustomers)
	}
	if !got.Timestamp.Equal(base) {
		t.Errorf("timestamp round-trip mismatch: %v", got.Timestamp)
	}
}

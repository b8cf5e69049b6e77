package domain

import (
	"time"
)

// Transaction is one streaming transaction event consumed by the risk
// monitor. Delivery is at-least-once; duplicates within a window inflate
// counts rather than being deduplicated.
type Transaction struct {
	CustomerID string    `json:"customerId"`
	Amount     float64   `json:"amount"`
	Type       string    `json:"type"`
	Timestamp  time.Time `json:"timestamp"`
}

// Valid reports whether the event carries the required fields.
func (t *Transaction) Valid() bool {
	return t.CustomerID != "" && t.Amount > 0 && !t.Timestamp.IsZero()
}

// Alert is produced by the per-customer anomaly window and consumed by
// the per-community aggregation window.
type Alert struct {
	ID          string    `json:"id"`
	CustomerID  string    `json:"customerId"`
	CommunityID string    `json:"communityId"`
	AlertType   string    `json:"alertType"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// Alert types emitted by the anomaly window.
const (
	AlertAnomalousPattern = "ANOMALOUS_PATTERN"
)

// CommunityRiskReport aggregates alerts for one community over one
// aggregation window. Emitted only when at least one alert fell in the
// window.
type CommunityRiskReport struct {
	ID            string    `json:"id"`
	CommunityID   string    `json:"communityId"`
	AlertCount    int       `json:"alertCount"`
	RiskScore     float64   `json:"riskScore"`
	RiskCustomers []string  `json:"riskCustomers"`
	Timestamp     time.Time `json:"timestamp"`
}

// Decision outcomes for a scored application.
const (
	DecisionApprove      = "APPROVE"
	DecisionReject       = "REJECT"
	DecisionManualReview = "MANUAL_REVIEW"
)

// Risk levels derived from the fraud score.
const (
	RiskLevelHigh   = "high"
	RiskLevelMedium = "medium"
	RiskLevelLow    = "low"
)

// ScoreResult is the outcome of scoring one applicant.
type ScoreResult struct {
	CustomerID  string   `json:"customerId"`
	FraudScore  float64  `json:"fraudScore"`
	CreditScore float64  `json:"creditScore"`
	Decision    string   `json:"decision"`
	Reasons     []string `json:"reasons"`
	CommunityID string   `json:"communityId,omitempty"`
	RiskLevel   string   `json:"riskLevel"`

	// KnownCustomer is false when the customer was absent from the graph
	// store and graph features defaulted to zero.
	KnownCustomer bool `json:"knownCustomer"`

	// ModelFallback is true when the credit sub-model fell back to
	// traditional-feature-only scoring because no trained model has
	// ever been published.
	ModelFallback bool `json:"modelFallback"`
}

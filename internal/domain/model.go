package domain

import (
	"context"
	"time"
)

// ModelSchemaVersion is the current persisted model record schema.
const ModelSchemaVersion = 1

// Metrics holds held-out evaluation results for a trained scorecard.
// A metric whose denominator is zero is reported as 0.0.
type Metrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
}

// ModelRecord is the persisted scorecard model: one weight per known
// feature, evaluation metrics and the training timestamp. A single slot
// is kept; each successful training run replaces it atomically.
type ModelRecord struct {
	SchemaVersion int                `json:"schemaVersion"`
	Weights       map[string]float64 `json:"weights"`
	Metrics       Metrics            `json:"metrics"`
	TrainedAt     time.Time          `json:"trainedAt"`
}

// Trained reports whether the record came from a completed training run.
func (m *ModelRecord) Trained() bool {
	return m != nil && len(m.Weights) > 0
}

// TrainingSample is one labeled loan application.
type TrainingSample struct {
	CustomerID      string         `json:"customerId"`
	ApplicationData map[string]any `json:"applicationData"`
	IsFraud         bool           `json:"isFraud"`
}

// TrainingResult is returned by a completed training run.
type TrainingResult struct {
	ModelID           string             `json:"modelId"`
	Metrics           Metrics            `json:"metrics"`
	FeatureImportance map[string]float64 `json:"featureImportance"`
	SampleCount       int                `json:"sampleCount"`
	TrainedAt         time.Time          `json:"trainedAt"`
}

// ModelStore persists the single current scorecard model.
type ModelStore interface {
	// SaveModel replaces the current model record atomically.
	SaveModel(ctx context.Context, record *ModelRecord) error

	// LoadModel returns the current record, or ErrNotFound if no model
	// has ever been trained.
	LoadModel(ctx context.Context) (*ModelRecord, error)
}

// Package scorecard trains, evaluates and serves the logistic risk
// scorecard over combined traditional and graph features.
package scorecard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/feature"
)

// decisionThreshold is the fixed probability cut for held-out evaluation.
const decisionThreshold = 0.5

// Service owns the single current scorecard model. Training acquires
// exclusive access for its full duration; readers always see the last
// fully-published record and never block on an in-progress run.
type Service struct {
	extractor *feature.Extractor
	store     domain.ModelStore
	cfg       domain.TrainingConfig

	trainMu sync.Mutex // serializes training runs

	mu      sync.RWMutex // guards current
	current *domain.ModelRecord
}

// NewService creates the scorecard service, loading any persisted model
// from the store. Starting without a persisted model is not an error;
// the service begins with an empty placeholder.
func NewService(ctx context.Context, extractor *feature.Extractor, store domain.ModelStore, cfg domain.TrainingConfig) (*Service, error) {
	s := &Service{
		extractor: extractor,
		store:     store,
		cfg:       cfg,
		current:   &domain.ModelRecord{SchemaVersion: domain.ModelSchemaVersion},
	}
	record, err := store.LoadModel(ctx)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		// first boot, nothing persisted yet
	case err != nil:
		return nil, fmt.Errorf("load persisted model: %w", err)
	default:
		s.current = record
	}
	return s, nil
}

// labeledVector pairs a combined feature vector with its fraud label.
type labeledVector struct {
	features domain.FeatureVector
	label    float64
}

// Train builds combined feature vectors for every sample, fits the
// logistic scorecard by batch gradient descent, evaluates it on the
// held-out split, and atomically replaces the persisted model.
func (s *Service) Train(ctx context.Context, samples []domain.TrainingSample) (*domain.TrainingResult, error) {
	if len(samples) == 0 {
		return nil, domain.ValidationErrorf("at least one training sample is required")
	}

	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	start := time.Now()

	vectors, err := s.buildVectors(ctx, samples)
	if err != nil {
		return nil, err
	}

	keys, err := unionKeys(vectors)
	if err != nil {
		return nil, err
	}

	trainSet, testSet := s.split(vectors)

	weights, err := s.fit(ctx, keys, trainSet)
	if err != nil {
		return nil, err
	}

	metrics := evaluate(weights, testSet)

	record := &domain.ModelRecord{
		SchemaVersion: domain.ModelSchemaVersion,
		Weights:       weights,
		Metrics:       metrics,
		TrainedAt:     time.Now().UTC(),
	}
	if err := s.store.SaveModel(ctx, record); err != nil {
		return nil, fmt.Errorf("persist model: %w", err)
	}

	s.mu.Lock()
	s.current = record
	s.mu.Unlock()

	slog.Info("scorecard trained",
		"samples", len(samples),
		"features", len(keys),
		"accuracy", metrics.Accuracy,
		"f1", metrics.F1,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return &domain.TrainingResult{
		ModelID:           uuid.New().String(),
		Metrics:           metrics,
		FeatureImportance: Importance(record.Weights),
		SampleCount:       len(samples),
		TrainedAt:         record.TrainedAt,
	}, nil
}

// Current returns the last fully-published model record. The record is
// an empty placeholder until the first successful training run.
func (s *Service) Current() *domain.ModelRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Score returns the fraud probability for a combined feature vector, or
// ErrModelUnavailable before the first training run.
func (s *Service) Score(fv domain.FeatureVector) (float64, error) {
	record := s.Current()
	if !record.Trained() {
		return 0, domain.ErrModelUnavailable
	}
	return predict(record.Weights, fv), nil
}

// FeatureImportance returns |w| normalized by Σ|w| for the current model.
func (s *Service) FeatureImportance() (map[string]float64, error) {
	record := s.Current()
	if !record.Trained() {
		return nil, domain.ErrModelUnavailable
	}
	return Importance(record.Weights), nil
}

// buildVectors merges traditional and graph features per sample.
func (s *Service) buildVectors(ctx context.Context, samples []domain.TrainingSample) ([]labeledVector, error) {
	vectors := make([]labeledVector, 0, len(samples))
	for i, sample := range samples {
		traditional, err := TraditionalFeatures(sample.ApplicationData)
		if err != nil {
			return nil, fmt.Errorf("sample %d (%s): %w", i, sample.CustomerID, err)
		}
		graphFeatures, _, err := s.extractor.Extract(ctx, sample.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("sample %d (%s): %w", i, sample.CustomerID, err)
		}

		label := 0.0
		if sample.IsFraud {
			label = 1.0
		}
		vectors = append(vectors, labeledVector{
			features: traditional.Merge(graphFeatures),
			label:    label,
		})
	}
	return vectors, nil
}

// unionKeys returns the sorted union of feature keys over all samples.
// The weight set is derived from the union, never the first sample
// alone; a sample sharing no keys with the rest is a configuration
// error surfaced before any gradient step.
func unionKeys(vectors []labeledVector) ([]string, error) {
	union := make(map[string]struct{})
	for _, v := range vectors {
		for k := range v.features {
			union[k] = struct{}{}
		}
	}
	for i, v := range vectors {
		if len(v.features) == 0 {
			return nil, fmt.Errorf("%w: sample %d has no features", domain.ErrConfiguration, i)
		}
		shared := false
		for k := range v.features {
			if _, ok := union[k]; ok && len(vectors) > 1 {
				// Shares a key with the union iff another sample also
				// carries it.
				if keyCount(vectors, k) > 1 {
					shared = true
					break
				}
			}
		}
		if !shared && len(vectors) > 1 {
			return nil, fmt.Errorf("%w: sample %d feature keys are disjoint from all other samples", domain.ErrConfiguration, i)
		}
	}

	keys := make([]string, 0, len(union))
	for k := range union {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func keyCount(vectors []labeledVector, key string) int {
	n := 0
	for _, v := range vectors {
		if _, ok := v.features[key]; ok {
			n++
		}
	}
	return n
}

// split shuffles with the configured seed and partitions by train ratio.
func (s *Service) split(vectors []labeledVector) (train, test []labeledVector) {
	seed := s.cfg.ShuffleSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	shuffled := make([]labeledVector, len(vectors))
	copy(shuffled, vectors)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	ratio := s.cfg.TrainRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.8
	}
	cut := int(float64(len(shuffled)) * ratio)
	return shuffled[:cut], shuffled[cut:]
}

// fit runs batch gradient descent with a fixed learning rate and a
// fixed iteration count; no early stopping. Cancellation is checked at
// iteration boundaries. Weights start at zero; there is no bias term,
// so the model passes through the origin.
func (s *Service) fit(ctx context.Context, keys []string, trainSet []labeledVector) (map[string]float64, error) {
	weights := make(map[string]float64, len(keys))
	for _, k := range keys {
		weights[k] = 0.0
	}
	if len(trainSet) == 0 {
		return weights, nil
	}

	lr := s.cfg.LearningRate
	if lr <= 0 {
		lr = 0.01
	}
	iterations := s.cfg.Iterations
	if iterations <= 0 {
		iterations = 100
	}

	n := float64(len(trainSet))
	gradients := make(map[string]float64, len(keys))

	for iter := 0; iter < iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("training canceled at iteration %d: %w", iter, err)
		}

		for _, k := range keys {
			gradients[k] = 0.0
		}
		for _, sample := range trainSet {
			errTerm := predict(weights, sample.features) - sample.label
			for _, k := range keys {
				gradients[k] += errTerm * sample.features[k]
			}
		}
		for _, k := range keys {
			weights[k] -= lr * gradients[k] / n
		}
	}
	return weights, nil
}

// predict computes sigmoid(Σ weight·feature). Missing features read 0.
// The sum accumulates in sorted key order; map iteration order would
// make the floating-point result depend on the run.
func predict(weights map[string]float64, fv domain.FeatureVector) float64 {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var z float64
	for _, k := range keys {
		z += weights[k] * fv[k]
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

// evaluate derives accuracy, precision, recall and F1 from the confusion
// matrix at the fixed threshold. Any metric with a zero denominator is
// reported as 0.0.
func evaluate(weights map[string]float64, testSet []labeledVector) domain.Metrics {
	if len(testSet) == 0 {
		return domain.Metrics{}
	}

	var tp, fp, tn, fn int
	for _, sample := range testSet {
		predictedPositive := predict(weights, sample.features) >= decisionThreshold
		actualPositive := sample.label >= 0.5
		switch {
		case predictedPositive && actualPositive:
			tp++
		case predictedPositive && !actualPositive:
			fp++
		case !predictedPositive && !actualPositive:
			tn++
		default:
			fn++
		}
	}

	m := domain.Metrics{
		Accuracy: float64(tp+tn) / float64(len(testSet)),
	}
	if tp+fp > 0 {
		m.Precision = float64(tp) / float64(tp+fp)
	}
	if tp+fn > 0 {
		m.Recall = float64(tp) / float64(tp+fn)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
	return m
}

// Importance returns |w| normalized by the sum of |w| over all features.
func Importance(weights map[string]float64) map[string]float64 {
	var sum float64
	for _, w := range weights {
		sum += math.Abs(w)
	}
	out := make(map[string]float64, len(weights))
	for k, w := range weights {
		if sum > 0 {
			out[k] = math.Abs(w) / sum
		} else {
			out[k] = 0.0
		}
	}
	return out
}

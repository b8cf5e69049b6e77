// Package feature computes per-customer numeric feature vectors from the
// relationship graph and the community detection output.
package feature

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

const (
	cacheKeyPrefix = "features:"
	cacheTTL       = 2 * time.Minute

	// activityWindow is the trailing window for the activity_frequency
	// feature.
	activityWindow = 30 * 24 * time.Hour
)

// Extractor computes the fixed feature key set for a customer. Calls are
// read-only against the graph store and independent across customers.
type Extractor struct {
	store domain.GraphStore
	cache domain.Cache // optional; nil disables memoization
}

// NewExtractor creates an extractor over the given store. cache may be
// nil.
func NewExtractor(store domain.GraphStore, cache domain.Cache) *Extractor {
	return &Extractor{store: store, cache: cache}
}

// Extract returns the full fixed key set for customerID. The second
// return value reports whether the customer is known to the graph store;
// unknown customers get the zero vector rather than an error, so callers
// can distinguish "known, low-risk" from "unknown" only via that flag.
func (e *Extractor) Extract(ctx context.Context, customerID string) (domain.FeatureVector, bool, error) {
	if customerID == "" {
		return nil, false, domain.ValidationErrorf("customerId is required")
	}

	if fv, ok := e.cached(ctx, customerID); ok {
		return fv, true, nil
	}

	node, err := e.store.GetNode(ctx, customerID)
	if errors.Is(err, domain.ErrUnknownEntity) {
		return domain.ZeroGraphFeatures(), false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("feature extraction for %q: %w", customerID, err)
	}

	fv := domain.ZeroGraphFeatures()

	if err := e.communityFeatures(ctx, customerID, fv); err != nil {
		return nil, false, err
	}
	if err := e.centralityFeatures(ctx, customerID, fv); err != nil {
		return nil, false, err
	}
	if err := e.riskPropagationFeatures(ctx, node, fv); err != nil {
		return nil, false, err
	}
	if err := e.temporalFeatures(ctx, customerID, fv); err != nil {
		return nil, false, err
	}

	e.memoize(ctx, customerID, fv)
	return fv, true, nil
}

// CommunityOf exposes the customer's community id for result envelopes.
func (e *Extractor) CommunityOf(ctx context.Context, customerID string) (string, error) {
	return e.store.CommunityOf(ctx, customerID)
}

func (e *Extractor) communityFeatures(ctx context.Context, customerID string, fv domain.FeatureVector) error {
	communityID, err := e.store.CommunityOf(ctx, customerID)
	if err != nil {
		return fmt.Errorf("community lookup for %q: %w", customerID, err)
	}
	stats, err := e.store.CommunityStats(ctx, communityID)
	if err != nil {
		return fmt.Errorf("community stats for %q: %w", communityID, err)
	}
	fv[domain.FeatureCommunitySize] = float64(stats.Size)
	fv[domain.FeatureCommunityDensity] = stats.Density
	fv[domain.FeatureCommunityRiskRatio] = stats.RiskRatio
	return nil
}

func (e *Extractor) centralityFeatures(ctx context.Context, customerID string, fv domain.FeatureVector) error {
	degree, err := e.store.DegreeCentrality(ctx, customerID)
	if err != nil {
		return fmt.Errorf("degree centrality for %q: %w", customerID, err)
	}
	betweenness, err := e.store.BetweennessCentrality(ctx, customerID)
	if err != nil {
		return fmt.Errorf("betweenness centrality for %q: %w", customerID, err)
	}
	closeness, err := e.store.ClosenessCentrality(ctx, customerID)
	if err != nil {
		return fmt.Errorf("closeness centrality for %q: %w", customerID, err)
	}
	fv[domain.FeatureDegreeCentrality] = degree
	fv[domain.FeatureBetweennessCentral] = betweenness
	fv[domain.FeatureClosenessCentrality] = closeness
	return nil
}

// riskPropagationFeatures: exposure aggregates the risk of high-risk
// neighbors; influence weights the customer's own risk signal by their
// degree centrality.
func (e *Extractor) riskPropagationFeatures(ctx context.Context, node *domain.Node, fv domain.FeatureVector) error {
	neighbors, err := e.store.Neighbors(ctx, node.ID)
	if err != nil {
		return fmt.Errorf("neighbors of %q: %w", node.ID, err)
	}

	var exposure float64
	for _, nb := range neighbors {
		if risk := nb.Attributes["riskScore"]; risk >= domain.HighRiskThreshold {
			exposure += risk
		}
	}
	if len(neighbors) > 0 {
		exposure /= float64(len(neighbors))
	}

	fv[domain.FeatureRiskExposure] = exposure
	fv[domain.FeatureRiskInfluence] = node.Attributes["riskScore"] * fv[domain.FeatureDegreeCentrality]
	return nil
}

func (e *Extractor) temporalFeatures(ctx context.Context, customerID string, fv domain.FeatureVector) error {
	communityID, err := e.store.CommunityOf(ctx, customerID)
	if err != nil {
		return fmt.Errorf("community lookup for %q: %w", customerID, err)
	}

	history, err := e.store.MembershipHistory(ctx, communityID)
	if err != nil {
		return fmt.Errorf("membership history for %q: %w", communityID, err)
	}
	if len(history) >= 2 {
		prev := history[len(history)-2].Size
		last := history[len(history)-1].Size
		if prev > 0 {
			fv[domain.FeatureCommunityGrowthRate] = float64(last-prev) / float64(prev)
		}
	}

	rate, err := e.store.ActivityRate(ctx, customerID, activityWindow)
	if err != nil {
		return fmt.Errorf("activity rate for %q: %w", customerID, err)
	}
	fv[domain.FeatureActivityFrequency] = rate
	return nil
}

func (e *Extractor) cached(ctx context.Context, customerID string) (domain.FeatureVector, bool) {
	if e.cache == nil {
		return nil, false
	}
	raw, err := e.cache.Get(ctx, cacheKeyPrefix+customerID)
	if err != nil || raw == nil {
		return nil, false
	}
	var fv domain.FeatureVector
	if err := json.Unmarshal(raw, &fv); err != nil {
		return nil, false
	}
	return fv, true
}

func (e *Extractor) memoize(ctx context.Context, customerID string, fv domain.FeatureVector) {
	if e.cache == nil {
		return
	}
	raw, err := json.Marshal(fv)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, cacheKeyPrefix+customerID, raw, cacheTTL); err != nil {
		slog.Debug("feature cache write failed",
			"customer_id", customerID,
			"error", err,
		)
	}
}

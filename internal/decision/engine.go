// Package decision merges traditional and graph features into fraud and
// credit scores and applies the loan decision rules.
package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/feature"
	"github.com/opensource-finance/harrier/internal/scorecard"
)

// Score bounds and decision cut points.
const (
	scoreFloor   = 300.0
	scoreCeiling = 900.0

	rejectBelow       = 600.0
	reviewFraudBelow  = 700.0
	reviewCreditBelow = 650.0

	highRiskBelow   = 500.0
	mediumRiskBelow = 700.0
)

// CreditModel produces a credit score in [300, 900] for a merged feature
// vector. It returns domain.ErrModelUnavailable before any model has
// been trained; the engine then falls back to traditional-only scoring.
type CreditModel interface {
	CreditScore(fv domain.FeatureVector) (float64, error)
}

// ScorecardCreditModel maps the trained scorecard's fraud probability
// onto the credit band: low fraud probability scores high.
type ScorecardCreditModel struct {
	Scorecard *scorecard.Service
}

// CreditScore implements CreditModel.
func (m *ScorecardCreditModel) CreditScore(fv domain.FeatureVector) (float64, error) {
	prob, err := m.Scorecard.Score(fv)
	if err != nil {
		return 0, err
	}
	return clamp(scoreFloor + (1-prob)*(scoreCeiling-scoreFloor)), nil
}

// Engine scores applicants and applies the decision table.
type Engine struct {
	extractor *feature.Extractor
	credit    CreditModel
}

// NewEngine creates a decision engine. credit must not be nil.
func NewEngine(extractor *feature.Extractor, credit CreditModel) *Engine {
	return &Engine{extractor: extractor, credit: credit}
}

// Score evaluates one applicant. Graph features overwrite same-named
// traditional keys in the merged vector.
func (e *Engine) Score(ctx context.Context, customerID string, applicationData map[string]any) (*domain.ScoreResult, error) {
	if customerID == "" {
		return nil, domain.ValidationErrorf("customerId is required")
	}

	traditional, err := scorecard.TraditionalFeatures(applicationData)
	if err != nil {
		return nil, err
	}

	graphFeatures, known, err := e.extractor.Extract(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("scoring %q: %w", customerID, err)
	}

	merged := traditional.Clone().Merge(graphFeatures)

	fraudScore := fraudScore(merged)

	creditScore, fallback, err := e.creditScore(merged, traditional)
	if err != nil {
		return nil, fmt.Errorf("scoring %q: %w", customerID, err)
	}

	result := &domain.ScoreResult{
		CustomerID:    customerID,
		FraudScore:    fraudScore,
		CreditScore:   creditScore,
		Decision:      Decide(fraudScore, creditScore),
		Reasons:       reasons(merged),
		RiskLevel:     RiskLevel(fraudScore),
		KnownCustomer: known,
		ModelFallback: fallback,
	}
	if known {
		if communityID, err := e.extractor.CommunityOf(ctx, customerID); err == nil {
			result.CommunityID = communityID
		}
	}

	slog.Debug("applicant scored",
		"customer_id", customerID,
		"fraud_score", result.FraudScore,
		"credit_score", result.CreditScore,
		"decision", result.Decision,
		"known", known,
	)

	return result, nil
}

// BatchOutcome is one item of a batch scoring call; exactly one of
// Result and Err is set.
type BatchOutcome struct {
	Result *domain.ScoreResult
	Err    error
}

// ScoreBatch scores each request independently; one failing applicant
// does not fail the batch.
func (e *Engine) ScoreBatch(ctx context.Context, requests []struct {
	CustomerID      string
	ApplicationData map[string]any
}) []BatchOutcome {
	out := make([]BatchOutcome, len(requests))
	for i, req := range requests {
		result, err := e.Score(ctx, req.CustomerID, req.ApplicationData)
		out[i] = BatchOutcome{Result: result, Err: err}
	}
	return out
}

// fraudScore applies the fixed additive scorecard formula, clamped to
// [300, 900].
func fraudScore(fv domain.FeatureVector) float64 {
	score := 600.0
	score -= fv[domain.FeatureCommunityRiskRatio] * 100
	score -= fv[domain.FeatureRiskExposure] * 80
	score += fv[domain.FeatureCreditHistory] * 50
	score += fv[domain.FeatureIncome] * 0.01
	return clamp(score)
}

// creditScore delegates to the pluggable sub-model; before any trained
// model exists it falls back to an explicit traditional-feature-only
// formula rather than silently scoring with zero weights.
func (e *Engine) creditScore(merged, traditional domain.FeatureVector) (float64, bool, error) {
	score, err := e.credit.CreditScore(merged)
	if err == nil {
		return score, false, nil
	}
	if !errors.Is(err, domain.ErrModelUnavailable) {
		return 0, false, err
	}

	fallback := 500.0 +
		traditional[domain.FeatureCreditHistory]*40 +
		math.Min(traditional[domain.FeatureIncome]*0.005, 100)
	return clamp(fallback), true, nil
}

// Decide applies the ordered decision table.
func Decide(fraudScore, creditScore float64) string {
	switch {
	case fraudScore < rejectBelow:
		return domain.DecisionReject
	case fraudScore < reviewFraudBelow && creditScore < reviewCreditBelow:
		return domain.DecisionManualReview
	default:
		return domain.DecisionApprove
	}
}

// RiskLevel maps a fraud score to a risk band.
func RiskLevel(fraudScore float64) string {
	switch {
	case fraudScore < highRiskBelow:
		return domain.RiskLevelHigh
	case fraudScore < mediumRiskBelow:
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}

// reasons appends explanations in fixed order; zero or more may apply.
// The slice is never nil so the field serializes as [] rather than null.
func reasons(fv domain.FeatureVector) []string {
	out := []string{}
	if fv[domain.FeatureCommunityRiskRatio] > 0.3 {
		out = append(out, "applicant's community has a high risk ratio")
	}
	if fv[domain.FeatureRiskExposure] > 0.4 {
		out = append(out, "applicant has high risk exposure to flagged counterparties")
	}
	if fv[domain.FeatureCommunityGrowthRate] > 0.5 {
		out = append(out, "applicant's community is growing abnormally fast")
	}
	return out
}

func clamp(score float64) float64 {
	return math.Max(scoreFloor, math.Min(scoreCeiling, score))
}

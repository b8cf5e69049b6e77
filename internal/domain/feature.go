package domain

// Graph feature names. Every FeatureVector produced by the extractor
// carries exactly this key set; missing underlying data yields 0.0,
// never a missing key.
const (
	FeatureCommunitySize       = "community_size"
	FeatureCommunityDensity    = "community_density"
	FeatureCommunityRiskRatio  = "community_risk_ratio"
	FeatureDegreeCentrality    = "degree_centrality"
	FeatureBetweennessCentral  = "betweenness_centrality"
	FeatureClosenessCentrality = "closeness_centrality"
	FeatureRiskExposure        = "risk_exposure"
	FeatureRiskInfluence       = "risk_influence"
	FeatureCommunityGrowthRate = "community_growth_rate"
	FeatureActivityFrequency   = "activity_frequency"
)

// Traditional application features parsed from application data.
const (
	FeatureAge           = "age"
	FeatureIncome        = "income"
	FeatureCreditHistory = "credit_history"
)

// GraphFeatureKeys is the fixed key set of graph-derived features,
// in canonical order.
var GraphFeatureKeys = []string{
	FeatureCommunitySize,
	FeatureCommunityDensity,
	FeatureCommunityRiskRatio,
	FeatureDegreeCentrality,
	FeatureBetweennessCentral,
	FeatureClosenessCentrality,
	FeatureRiskExposure,
	FeatureRiskInfluence,
	FeatureCommunityGrowthRate,
	FeatureActivityFrequency,
}

// FeatureVector maps feature names to numeric values for one customer.
type FeatureVector map[string]float64

// ZeroGraphFeatures returns a vector with every graph feature key set to 0.0.
func ZeroGraphFeatures() FeatureVector {
	fv := make(FeatureVector, len(GraphFeatureKeys))
	for _, k := range GraphFeatureKeys {
		fv[k] = 0.0
	}
	return fv
}

// Merge overlays other onto fv and returns fv. Keys in other win.
func (fv FeatureVector) Merge(other FeatureVector) FeatureVector {
	for k, v := range other {
		fv[k] = v
	}
	return fv
}

// Clone returns a deep copy of the vector.
func (fv FeatureVector) Clone() FeatureVector {
	out := make(FeatureVector, len(fv))
	for k, v := range fv {
		out[k] = v
	}
	return out
}

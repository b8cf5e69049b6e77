package scorecard

import (
	"strconv"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Required application data fields and the feature keys they map to.
var traditionalFields = []struct {
	field string
	key   string
}{
	{"age", domain.FeatureAge},
	{"income", domain.FeatureIncome},
	{"creditHistory", domain.FeatureCreditHistory},
}

// TraditionalFeatures parses the required applicant attributes from raw
// application data. A missing or non-numeric field is a validation
// error; retrying will not help.
func TraditionalFeatures(applicationData map[string]any) (domain.FeatureVector, error) {
	fv := make(domain.FeatureVector, len(traditionalFields))
	for _, f := range traditionalFields {
		raw, ok := applicationData[f.field]
		if !ok {
			return nil, domain.ValidationErrorf("application field %q is required", f.field)
		}
		value, err := toFloat(raw)
		if err != nil {
			return nil, domain.ValidationErrorf("application field %q must be numeric, got %T", f.field, raw)
		}
		fv[f.key] = value
	}
	return fv, nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case string:
		return strconv.ParseFloat(x, 64)
	default:
		return 0, strconv.ErrSyntax
	}
}

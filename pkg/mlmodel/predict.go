package mlmodel

import (
	"fmt"
	"math"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

// Predict runs every model in the set against one input row. Features the
// caller did not supply take the median recorded at training time. The result
// has one entry per model, or the call fails as a whole.
func Predict(ms models.ModelSet, stats map[string]models.FeatureStats, input models.PredictionInput) (models.Predictions, error) {
	out := make(models.Predictions, len(ms))
	for target, m := range ms {
		if m == nil || m.Regressor == nil {
			return nil, fmt.Errorf("%w: model for %q has no regressor", ErrConfiguration, target)
		}

		x := make([]float64, len(m.Features))
		for j, f := range m.Features {
			if v, ok := input[f]; ok {
				x[j] = v
				continue
			}
			st, ok := stats[f]
			if !ok {
				return nil, fmt.Errorf("%w: no statistics for feature %q used by model %q", ErrConfiguration, f, target)
			}
			x[j] = st.Median
		}

		y := m.Regressor.Predict(x)
		if math.IsNaN(y) || math.IsInf(y, 0) {
			return nil, fmt.Errorf("%w: model %q produced a non-finite value", ErrConfiguration, target)
		}
		out[target] = y
	}
	return out, nil
}

// EffectiveInput returns the value each variable takes in a prediction: the
// supplied value, or the median when it was omitted. Variables with neither
// are left out. Keys outside the variable set are dropped.
func EffectiveInput(vars models.VariableSet, stats map[string]models.FeatureStats, input models.PredictionInput) map[string]float64 {
	out := make(map[string]float64, len(vars))
	for _, v := range vars {
		if val, ok := input[v]; ok {
			out[v] = val
		} else if st, ok := stats[v]; ok {
			out[v] = st.Median
		}
	}
	return out
}

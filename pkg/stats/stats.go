// Package stats computes per-variable summary statistics of a dataset.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

// Compute returns min, max, mean and median for every variable that is a
// column of ds. NaN cells are excluded. Variables that are not columns, or
// that have no observed values, are skipped and returned in missing.
func Compute(ds *models.Dataset, vars models.VariableSet) (map[string]models.FeatureStats, []string) {
	result := make(map[string]models.FeatureStats, len(vars))
	var missing []string

	for _, v := range vars {
		col, ok := ds.Column(v)
		if !ok {
			missing = append(missing, v)
			continue
		}
		observed := observedValues(col)
		if len(observed) == 0 {
			missing = append(missing, v)
			continue
		}
		result[v] = models.FeatureStats{
			Min:    floats.Min(observed),
			Max:    floats.Max(observed),
			Mean:   stat.Mean(observed, nil),
			Median: median(observed),
		}
	}

	return result, missing
}

func observedValues(col []float64) []float64 {
	out := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// median sorts values in place; even counts average the two middle values
func median(values []float64) float64 {
	sort.Float64s(values)
	n := len(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}

package models

import (
	"fmt"
	"time"
)

// Strategy represents the regression strategy used for a whole model set
type Strategy string

const (
	StrategyLinear       Strategy = "linear"        // Ordinary least squares, fast
	StrategyRandomForest Strategy = "random_forest" // Bagged regression trees
)

// ParseStrategy converts a string into a Strategy
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLinear, StrategyRandomForest:
		return Strategy(s), nil
	default:
		return "", fmt.Errorf("invalid strategy: %q", s)
	}
}

// Regressor is a fitted regression function over an ordered feature vector
type Regressor interface {
	Predict(features []float64) float64
}

// VariableModel is the trained model for one target variable together with
// the exact ordered feature list it was trained on
type VariableModel struct {
	Target     string    `json:"target"`
	Features   []string  `json:"features"`
	Strategy   Strategy  `json:"strategy"`
	Regressor  Regressor `json:"-"`
	Degenerate bool      `json:"degenerate,omitempty"` // Constant target or zero-variance feature
}

// ModelSet maps each variable to its trained model. It is either complete
// for a VariableSet or not servable at all.
type ModelSet map[string]*VariableModel

// Validate checks that the set holds exactly one model per variable and that
// every model was trained on the other variables in VariableSet order
func (ms ModelSet) Validate(vars VariableSet) error {
	if len(ms) != len(vars) {
		return fmt.Errorf("model set has %d models, expected %d", len(ms), len(vars))
	}
	for _, v := range vars {
		m, ok := ms[v]
		if !ok || m == nil {
			return fmt.Errorf("model for %q is missing", v)
		}
		if m.Regressor == nil {
			return fmt.Errorf("model for %q has no regressor", v)
		}
		want := vars.Without(v)
		if len(m.Features) != len(want) {
			return fmt.Errorf("model for %q has %d features, expected %d", v, len(m.Features), len(want))
		}
		for i := range want {
			if m.Features[i] != want[i] {
				return fmt.Errorf("model for %q has feature %q at position %d, expected %q", v, m.Features[i], i, want[i])
			}
		}
	}
	return nil
}

// FeatureStats holds the summary statistics of one variable
type FeatureStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// ModelMetadata describes a completed training cycle
type ModelMetadata struct {
	RunID            string    `json:"run_id"`
	TrainedAt        time.Time `json:"trained_at"`
	ModelCount       int       `json:"model_count"`
	Version          string    `json:"version"`
	TrainingDuration float64   `json:"training_duration"` // Seconds
	Strategy         Strategy  `json:"strategy,omitempty"`
	SampleRows       int       `json:"sample_rows,omitempty"`
}

// PredictionInput is a possibly incomplete mapping of variable values
type PredictionInput map[string]float64

// Predictions maps every target variable to its predicted value
type Predictions map[string]float64

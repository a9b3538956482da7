package training

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

// LinearRegressor is a fitted linear model y = Intercept + Coefficients . x
type LinearRegressor struct {
	Intercept    float64
	Coefficients []float64
}

// Predict evaluates the model on one feature vector
func (r *LinearRegressor) Predict(features []float64) float64 {
	pred := r.Intercept
	for j, coef := range r.Coefficients {
		if j < len(features) {
			pred += coef * features[j]
		}
	}
	return pred
}

// LinearTrainer fits ordinary least squares with an intercept
type LinearTrainer struct {
	// ridge is scaled by the mean diagonal of the centered Gram matrix. It keeps
	// the normal equations positive definite when a column has zero variance,
	// which then gets a zero coefficient.
	ridge float64
}

// NewLinearTrainer creates a new linear trainer
func NewLinearTrainer() *LinearTrainer {
	return &LinearTrainer{ridge: 1e-10}
}

// Fit solves the centered normal equations with a Cholesky factorization
func (t *LinearTrainer) Fit(ctx context.Context, features [][]float64, target []float64) (models.Regressor, error) {
	n := len(features)
	if n == 0 || len(target) != n {
		return nil, fmt.Errorf("no training data")
	}
	p := len(features[0])

	yMean := stat.Mean(target, nil)
	xMean := make([]float64, p)
	for _, row := range features {
		for j, v := range row {
			xMean[j] += v
		}
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}

	gram := make([]float64, p*p)
	xty := make([]float64, p)
	centered := make([]float64, p)
	for i, row := range features {
		for j := range row {
			centered[j] = row[j] - xMean[j]
		}
		dy := target[i] - yMean
		for j := 0; j < p; j++ {
			xty[j] += centered[j] * dy
			for k := j; k < p; k++ {
				gram[j*p+k] += centered[j] * centered[k]
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	trace := 0.0
	for j := 0; j < p; j++ {
		trace += gram[j*p+j]
	}
	lambda := t.ridge
	if trace > 0 {
		lambda *= trace / float64(p)
	}
	for j := 0; j < p; j++ {
		gram[j*p+j] += lambda
		for k := 0; k < j; k++ {
			gram[j*p+k] = gram[k*p+j]
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(mat.NewSymDense(p, gram)); !ok {
		return nil, fmt.Errorf("normal equations are not positive definite")
	}
	beta := mat.NewVecDense(p, nil)
	if err := chol.SolveVecTo(beta, mat.NewVecDense(p, xty)); err != nil {
		return nil, fmt.Errorf("failed to solve normal equations: %w", err)
	}

	coefficients := make([]float64, p)
	intercept := yMean
	for j := 0; j < p; j++ {
		coefficients[j] = beta.AtVec(j)
		intercept -= coefficients[j] * xMean[j]
	}

	return &LinearRegressor{Intercept: intercept, Coefficients: coefficients}, nil
}

// GetStrategy returns the strategy
func (t *LinearTrainer) GetStrategy() models.Strategy {
	return models.StrategyLinear
}

// ForestRegressor averages the predictions of its trees
type ForestRegressor struct {
	Trees []RegressionTree
}

// Predict evaluates the forest on one feature vector
func (r *ForestRegressor) Predict(features []float64) float64 {
	if len(r.Trees) == 0 {
		return 0
	}
	sum := 0.0
	for i := range r.Trees {
		sum += r.Trees[i].Predict(features)
	}
	return sum / float64(len(r.Trees))
}

// RandomForestTrainer fits a bagged ensemble of regression trees
type RandomForestTrainer struct {
	numTrees   int
	seed       int64
	maxDepth   int
	minSamples int
}

// NewRandomForestTrainer creates a new random forest trainer with a fixed
// ensemble size and seed so repeated fits are identical
func NewRandomForestTrainer() *RandomForestTrainer {
	return &RandomForestTrainer{
		numTrees:   15,
		seed:       42,
		maxDepth:   20,
		minSamples: 2,
	}
}

// Fit grows numTrees trees, each on a bootstrap sample seeded with seed+i
func (t *RandomForestTrainer) Fit(ctx context.Context, features [][]float64, target []float64) (models.Regressor, error) {
	if len(features) == 0 || len(target) != len(features) {
		return nil, fmt.Errorf("no training data provided")
	}

	forest := &ForestRegressor{Trees: make([]RegressionTree, 0, t.numTrees)}
	for i := 0; i < t.numTrees; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		builder := newTreeBuilder(ctx, features, target, t.maxDepth, t.minSamples)
		tree, err := builder.build(bootstrap(len(target), t.seed+int64(i)))
		if err != nil {
			return nil, err
		}
		forest.Trees = append(forest.Trees, tree)
	}

	return forest, nil
}

// GetStrategy returns the strategy
func (t *RandomForestTrainer) GetStrategy() models.Strategy {
	return models.StrategyRandomForest
}

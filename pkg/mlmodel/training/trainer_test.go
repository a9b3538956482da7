package training

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimir-aip/tire-wear-predictor/pkg/models"
)

// syntheticDataset builds rows where c = 1 + 2a - 0.5b and d is noise
func syntheticDataset(t *testing.T, n int) *models.Dataset {
	t.Helper()
	rng := rand.New(rand.NewSource(7))
	values := map[string][]float64{
		"a": make([]float64, n),
		"b": make([]float64, n),
		"c": make([]float64, n),
		"d": make([]float64, n),
	}
	for i := 0; i < n; i++ {
		a := rng.Float64() * 200
		b := rng.Float64() * 10
		values["a"][i] = a
		values["b"][i] = b
		values["c"][i] = 1 + 2*a - 0.5*b
		values["d"][i] = rng.NormFloat64()
	}
	ds, err := models.NewDataset([]string{"a", "b", "c", "d"}, values)
	require.NoError(t, err)
	return ds
}

func TestTrainerFactory(t *testing.T) {
	factory := NewTrainerFactory()

	linear, err := factory.GetTrainer(models.StrategyLinear)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyLinear, linear.GetStrategy())

	forest, err := factory.GetTrainer(models.StrategyRandomForest)
	require.NoError(t, err)
	assert.Equal(t, models.StrategyRandomForest, forest.GetStrategy())

	_, err = factory.GetTrainer("neural_network")
	assert.Error(t, err)
}

func TestLinearTrainerRecoversCoefficients(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	X := make([][]float64, 200)
	y := make([]float64, 200)
	for i := range X {
		a, b := rng.Float64()*10, rng.Float64()*5
		X[i] = []float64{a, b}
		y[i] = 3 + 2*a - b
	}

	reg, err := NewLinearTrainer().Fit(context.Background(), X, y)
	require.NoError(t, err)

	lin, ok := reg.(*LinearRegressor)
	require.True(t, ok)
	assert.InDelta(t, 3, lin.Intercept, 1e-6)
	assert.InDelta(t, 2, lin.Coefficients[0], 1e-6)
	assert.InDelta(t, -1, lin.Coefficients[1], 1e-6)
	assert.InDelta(t, 3+2*4-1*2, reg.Predict([]float64{4, 2}), 1e-6)
}

func TestLinearTrainerAcceptsConstantColumn(t *testing.T) {
	X := [][]float64{{1, 5}, {2, 5}, {3, 5}, {4, 5}}
	y := []float64{2, 4, 6, 8}

	reg, err := NewLinearTrainer().Fit(context.Background(), X, y)
	require.NoError(t, err)

	lin := reg.(*LinearRegressor)
	assert.InDelta(t, 0, lin.Coefficients[1], 1e-6)
	assert.InDelta(t, 10, reg.Predict([]float64{5, 5}), 1e-6)
}

func TestLinearTrainerNoData(t *testing.T) {
	_, err := NewLinearTrainer().Fit(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestRandomForestTrainerIsDeterministic(t *testing.T) {
	X := make([][]float64, 300)
	y := make([]float64, 300)
	for i := range X {
		x := float64(i)
		X[i] = []float64{x, math.Mod(x, 7)}
		if x < 150 {
			y[i] = 10
		} else {
			y[i] = 20
		}
	}

	trainer := NewRandomForestTrainer()
	first, err := trainer.Fit(context.Background(), X, y)
	require.NoError(t, err)
	second, err := trainer.Fit(context.Background(), X, y)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first.(*ForestRegressor).Trees, 15)
	assert.InDelta(t, 10, first.Predict([]float64{20, 6}), 1e-9)
	assert.InDelta(t, 20, first.Predict([]float64{280, 0}), 1e-9)
}

func TestRandomForestTrainerHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRandomForestTrainer().Fit(ctx, [][]float64{{1}, {2}}, []float64{1, 2})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegressionTreeStopsWhenContextEnds(t *testing.T) {
	n := 5000
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := range X {
		X[i] = []float64{float64(i)}
		y[i] = float64(i * i % 97)
	}
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTreeBuilder(ctx, X, y, 20, 2).build(rows)
	assert.ErrorIs(t, err, context.Canceled)

	tree, err := newTreeBuilder(context.Background(), X, y, 20, 2).build(rows)
	require.NoError(t, err)
	assert.Greater(t, len(tree.Nodes), ctxCheckInterval)
}

func TestRegressionTreeConstantTarget(t *testing.T) {
	builder := newTreeBuilder(context.Background(), [][]float64{{1}, {2}, {3}}, []float64{4, 4, 4}, 20, 2)
	tree, err := builder.build([]int{0, 1, 2})
	require.NoError(t, err)

	require.Len(t, tree.Nodes, 1)
	assert.True(t, tree.Nodes[0].IsLeaf)
	assert.Equal(t, 4.0, tree.Predict([]float64{100}))
}

func TestModelSetTrainerCompleteness(t *testing.T) {
	ds := syntheticDataset(t, 400)
	vars := models.VariableSet{"a", "b", "c", "d"}

	for _, strategy := range []models.Strategy{models.StrategyLinear, models.StrategyRandomForest} {
		t.Run(string(strategy), func(t *testing.T) {
			set, err := NewModelSetTrainer(2, nil).Train(context.Background(), ds, vars, strategy)
			require.NoError(t, err)
			require.NoError(t, set.Validate(vars))

			for _, v := range vars {
				assert.Equal(t, v, set[v].Target)
				assert.Equal(t, vars.Without(v), set[v].Features)
				assert.Equal(t, strategy, set[v].Strategy)
			}
		})
	}
}

func TestModelSetTrainerDeterministicContent(t *testing.T) {
	ds := syntheticDataset(t, 200)
	vars := models.VariableSet{"a", "b", "c", "d"}

	first, err := NewModelSetTrainer(4, nil).Train(context.Background(), ds, vars, models.StrategyRandomForest)
	require.NoError(t, err)
	second, err := NewModelSetTrainer(1, nil).Train(context.Background(), ds, vars, models.StrategyRandomForest)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestModelSetTrainerLinearFit(t *testing.T) {
	ds := syntheticDataset(t, 300)
	vars := models.VariableSet{"a", "b", "c", "d"}

	set, err := NewModelSetTrainer(0, nil).Train(context.Background(), ds, vars, models.StrategyLinear)
	require.NoError(t, err)

	// c's features are a, b, d in that order
	assert.InDelta(t, 1+2*50-0.5*4, set["c"].Regressor.Predict([]float64{50, 4, 0}), 1e-6)
}

func TestModelSetTrainerFillsMissingWithZero(t *testing.T) {
	nan := math.NaN()
	ds, err := models.NewDataset([]string{"x", "y"}, map[string][]float64{
		"x": {1, 2, nan, 4},
		"y": {2, 4, 6, nan},
	})
	require.NoError(t, err)

	set, err := NewModelSetTrainer(1, nil).Train(context.Background(), ds, models.VariableSet{"x", "y"}, models.StrategyLinear)
	require.NoError(t, err)
	for _, m := range set {
		assert.False(t, math.IsNaN(m.Regressor.Predict([]float64{1})))
	}
}

func TestModelSetTrainerFlagsDegenerateModels(t *testing.T) {
	ds, err := models.NewDataset([]string{"x", "k"}, map[string][]float64{
		"x": {1, 2, 3, 4},
		"k": {5, 5, 5, 5},
	})
	require.NoError(t, err)

	set, err := NewModelSetTrainer(1, nil).Train(context.Background(), ds, models.VariableSet{"x", "k"}, models.StrategyLinear)
	require.NoError(t, err)
	assert.True(t, set["x"].Degenerate)
	assert.True(t, set["k"].Degenerate)
	assert.InDelta(t, 5, set["k"].Regressor.Predict([]float64{10}), 1e-9)
}

func TestModelSetTrainerErrors(t *testing.T) {
	vars := models.VariableSet{"a", "b"}
	trainer := NewModelSetTrainer(1, nil)

	empty, err := models.NewDataset([]string{"a", "b"}, map[string][]float64{"a": {}, "b": {}})
	require.NoError(t, err)
	_, err = trainer.Train(context.Background(), empty, vars, models.StrategyLinear)
	assert.ErrorIs(t, err, ErrEmptyDataset)

	partial, err := models.NewDataset([]string{"a"}, map[string][]float64{"a": {1, 2}})
	require.NoError(t, err)
	_, err = trainer.Train(context.Background(), partial, vars, models.StrategyLinear)
	assert.ErrorIs(t, err, ErrMissingColumn)

	ds := syntheticDataset(t, 50)
	_, err = trainer.Train(context.Background(), ds, vars, "unknown")
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = trainer.Train(ctx, ds, vars, models.StrategyRandomForest)
	assert.True(t, errors.Is(err, context.Canceled))
}

package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(10, 0.3, 42)
	require.NoError(t, err)
	assert.Len(t, test, 3)
	assert.Len(t, train, 7)

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i], "index %d repeated", i)
		seen[i] = true
	}
	assert.Len(t, seen, 10)

	train2, test2, err := TrainTestSplit(10, 0.3, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	_, _, err = TrainTestSplit(10, 1.2, 42)
	assert.Error(t, err)
	_, _, err = TrainTestSplit(1, 0.5, 42)
	assert.Error(t, err)
}

func TestTake(t *testing.T) {
	assert.Equal(t, []string{"c", "a"}, Take([]string{"a", "b", "c"}, []int{2, 0}))
}

func TestRegressionScores(t *testing.T) {
	r2, mae, rmse := RegressionScores([]float64{1, 2, 3, 4}, []float64{1, 2, 3, 5})
	assert.InDelta(t, 0.8, r2, 1e-12)
	assert.InDelta(t, 0.25, mae, 1e-12)
	assert.InDelta(t, 0.5, rmse, 1e-12)

	r2, _, _ = RegressionScores(nil, nil)
	assert.True(t, math.IsNaN(r2))
}

func TestROCAUC(t *testing.T) {
	assert.InDelta(t, 0.75, ROCAUC([]float64{0, 0, 1, 1}, []float64{0.1, 0.4, 0.35, 0.8}), 1e-12)
	assert.InDelta(t, 0.5, ROCAUC([]float64{0, 1}, []float64{0.5, 0.5}), 1e-12)
	assert.True(t, math.IsNaN(ROCAUC([]float64{1, 1}, []float64{0.2, 0.3})))
}

func TestClassify(t *testing.T) {
	truth := []float64{0, 0, 1, 1, 1}
	pred := []float64{0, 1, 1, 1, 0}

	r := Classify(truth, pred, 2)
	assert.InDelta(t, 0.6, r.Accuracy, 1e-12)
	require.Len(t, r.Classes, 2)

	assert.Equal(t, "0", r.Classes[0].Label)
	assert.InDelta(t, 0.5, r.Classes[0].Precision, 1e-12)
	assert.InDelta(t, 0.5, r.Classes[0].Recall, 1e-12)
	assert.Equal(t, 2, r.Classes[0].Support)

	assert.InDelta(t, 2.0/3, r.Classes[1].Precision, 1e-12)
	assert.InDelta(t, 2.0/3, r.Classes[1].Recall, 1e-12)
	assert.Equal(t, 3, r.Classes[1].Support)

	assert.InDelta(t, (0.5+2.0/3)/2, r.Macro.F1, 1e-12)
	assert.InDelta(t, 0.5*0.4+2.0/3*0.6, r.Weighted.Recall, 1e-12)
	assert.Equal(t, 5, r.Weighted.Support)

	// class never predicted: precision is zero, not NaN
	r = Classify([]float64{0, 1}, []float64{0, 0}, 2)
	assert.Equal(t, 0.0, r.Classes[1].Precision)
}

package stats

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
	"math/rand/v2"
)

// MaxFeaturesSqrt asks each split to consider floor(sqrt(p)) features.
const MaxFeaturesSqrt = -1

// ErrTooManyFeatures is returned by ShapValues for wide inputs.
var ErrTooManyFeatures = errors.New("stats: too many features for exact Shapley values")

// maxShapFeatures bounds the 2^p subset enumeration.
const maxShapFeatures = 16

// ForestConfig configures a bagged tree ensemble.
type ForestConfig struct {
	Task            Task
	NTrees          int
	MaxFeatures     int
	MinSamplesSplit int
	Seed            int64
}

// Forest is a random forest: bootstrap-sampled CART trees with random
// feature subsets per split.
type Forest struct {
	task      Task
	nClasses  int
	nFeatures int
	trees     []*Tree
}

// FitForest trains a forest on rows x and targets y. For classification y
// must hold class labels 0..K-1.
func FitForest(x [][]float64, y []float64, cfg ForestConfig) (*Forest, error) {
	if len(x) == 0 {
		return nil, ErrEmptySample
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("stats: %d rows but %d targets", len(x), len(y))
	}
	p := len(x[0])
	for i, row := range x {
		if len(row) != p {
			return nil, fmt.Errorf("stats: row %d has %d features, want %d", i, len(row), p)
		}
		for _, v := range row {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("stats: row %d contains NaN", i)
			}
		}
	}
	if cfg.NTrees <= 0 {
		return nil, fmt.Errorf("stats: n_trees must be positive, got %d", cfg.NTrees)
	}

	nClasses := 0
	if cfg.Task == Classification {
		for i, v := range y {
			if v < 0 || v != math.Trunc(v) {
				return nil, fmt.Errorf("stats: target %d is not a class label: %v", i, v)
			}
			if int(v)+1 > nClasses {
				nClasses = int(v) + 1
			}
		}
	} else {
		for i, v := range y {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("stats: target %d is NaN", i)
			}
		}
	}

	maxFeatures := cfg.MaxFeatures
	if maxFeatures == MaxFeaturesSqrt {
		maxFeatures = int(math.Max(1, math.Floor(math.Sqrt(float64(p)))))
	}

	master := NewRand(cfg.Seed)
	f := &Forest{task: cfg.Task, nClasses: nClasses, nFeatures: p, trees: make([]*Tree, cfg.NTrees)}
	n := len(x)
	for t := range f.trees {
		rng := rand.New(rand.NewPCG(master.Uint64(), master.Uint64()))
		sample := make([]int, n)
		for i := range sample {
			sample[i] = rng.IntN(n)
		}
		f.trees[t] = growTree(x, y, sample, cfg.Task, nClasses, maxFeatures, cfg.MinSamplesSplit, rng)
	}
	return f, nil
}

// NewRand returns the seeded generator used for sampling and splitting.
func NewRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), 0x9e3779b97f4a7c15))
}

// NTrees is the number of trees in the ensemble.
func (f *Forest) NTrees() int { return len(f.trees) }

// PredictProba returns the averaged class probabilities for row.
func (f *Forest) PredictProba(row []float64) []float64 {
	out := make([]float64, f.nClasses)
	for _, t := range f.trees {
		for c, p := range t.Predict(row) {
			out[c] += p
		}
	}
	for c := range out {
		out[c] /= float64(len(f.trees))
	}
	return out
}

// Predict returns the mean prediction for regression forests and the most
// probable class for classification forests.
func (f *Forest) Predict(row []float64) float64 {
	if f.task == Classification {
		proba := f.PredictProba(row)
		best := 0
		for c := range proba {
			if proba[c] > proba[best] {
				best = c
			}
		}
		return float64(best)
	}
	var sum float64
	for _, t := range f.trees {
		sum += t.Predict(row)[0]
	}
	return sum / float64(len(f.trees))
}

// PredictAll applies Predict to every row.
func (f *Forest) PredictAll(x [][]float64) []float64 {
	out := make([]float64, len(x))
	for i, row := range x {
		out[i] = f.Predict(row)
	}
	return out
}

// FeatureImportances returns the mean decrease in impurity per feature,
// averaged over trees and normalised to sum 1.
func (f *Forest) FeatureImportances() []float64 {
	out := make([]float64, f.nFeatures)
	for _, t := range f.trees {
		for i, v := range t.importances() {
			out[i] += v
		}
	}
	total := Sum(out)
	if total <= 0 {
		return out
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// output maps a leaf value to the explained scalar: the mean for
// regression, the positive-class probability for classification.
func (f *Forest) output(value []float64) float64 {
	if f.task == Classification {
		if len(value) < 2 {
			return 0
		}
		return value[1]
	}
	return value[0]
}

// ShapValues computes exact path-dependent Shapley values for every row of
// x. base is the expected model output over the training cover and
// phi[i][j] the contribution of feature j to row i, so that
// base + sum(phi[i]) equals the model output for row i.
func (f *Forest) ShapValues(x [][]float64) (base float64, phi [][]float64, err error) {
	p := f.nFeatures
	if p > maxShapFeatures {
		return 0, nil, ErrTooManyFeatures
	}

	subsets := 1 << uint(p)
	weights := shapleyWeights(p)

	phi = make([][]float64, len(x))
	values := make([]float64, subsets)
	for i, row := range x {
		if len(row) != p {
			return 0, nil, fmt.Errorf("stats: row %d has %d features, want %d", i, len(row), p)
		}
		for s := 0; s < subsets; s++ {
			values[s] = f.expectation(row, uint64(s))
		}
		base = values[0]

		contrib := make([]float64, p)
		for j := 0; j < p; j++ {
			bit := 1 << uint(j)
			for s := 0; s < subsets; s++ {
				if s&bit != 0 {
					continue
				}
				contrib[j] += weights[bits.OnesCount(uint(s))] * (values[s|bit] - values[s])
			}
		}
		phi[i] = contrib
	}

	if len(x) == 0 {
		base = f.expectation(nil, 0)
	}
	return base, phi, nil
}

func (f *Forest) expectation(row []float64, known uint64) float64 {
	var sum float64
	for _, t := range f.trees {
		sum += t.conditionalExpectation(row, known, f.output)
	}
	return sum / float64(len(f.trees))
}

// shapleyWeights returns |S|!(p-|S|-1)!/p! indexed by |S|.
func shapleyWeights(p int) []float64 {
	w := make([]float64, p)
	for s := 0; s < p; s++ {
		lg1, _ := math.Lgamma(float64(s + 1))
		lg2, _ := math.Lgamma(float64(p - s))
		lg3, _ := math.Lgamma(float64(p + 1))
		w[s] = math.Exp(lg1 + lg2 - lg3)
	}
	return w
}

// MeanAbs returns the mean absolute value of each column of m.
func MeanAbs(m [][]float64) []float64 {
	if len(m) == 0 {
		return nil
	}
	out := make([]float64, len(m[0]))
	for _, row := range m {
		for j, v := range row {
			out[j] += math.Abs(v)
		}
	}
	for j := range out {
		out[j] /= float64(len(m))
	}
	return out
}

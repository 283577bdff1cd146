package stats

import (
	"fmt"
	"math"
	"strconv"

	"churncli/pkg/contracts/domain"
)

// TrainTestSplit shuffles row indices with seed and returns the training
// and held-out index sets. The test set has ceil(testSize*n) rows.
func TrainTestSplit(n int, testSize float64, seed int64) (train, test []int, err error) {
	if testSize <= 0 || testSize >= 1 {
		return nil, nil, fmt.Errorf("stats: test size must be in (0, 1), got %v", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest == 0 || nTest >= n {
		return nil, nil, fmt.Errorf("stats: cannot split %d rows with test size %v", n, testSize)
	}
	perm := NewRand(seed).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

// Take returns the rows of x at idx.
func Take[T any](x []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

// RegressionScores computes R², MAE and RMSE of pred against truth.
func RegressionScores(truth, pred []float64) (r2, mae, rmse float64) {
	n := float64(len(truth))
	if n == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	mean := Mean(truth)
	var ssRes, ssTot, absErr float64
	for i := range truth {
		d := truth[i] - pred[i]
		ssRes += d * d
		absErr += math.Abs(d)
		ssTot += (truth[i] - mean) * (truth[i] - mean)
	}
	switch {
	case ssTot > 0:
		r2 = 1 - ssRes/ssTot
	case ssRes == 0:
		r2 = 1
	default:
		r2 = 0
	}
	return r2, absErr / n, math.Sqrt(ssRes / n)
}

// ROCAUC is the area under the ROC curve of scores for binary labels,
// computed from average ranks. NaN when only one class is present.
func ROCAUC(labels, scores []float64) float64 {
	var nPos, nNeg float64
	for _, l := range labels {
		if l == 1 {
			nPos++
		} else {
			nNeg++
		}
	}
	if nPos == 0 || nNeg == 0 {
		return math.NaN()
	}
	ranks, _ := rankWithTies(scores)
	var rPos float64
	for i, l := range labels {
		if l == 1 {
			rPos += ranks[i]
		}
	}
	return (rPos - nPos*(nPos+1)/2) / (nPos * nNeg)
}

// Classify builds the per-class precision/recall/F1 table for labels
// 0..nClasses-1 plus accuracy and macro and weighted averages. Undefined
// ratios count as 0.
func Classify(truth, pred []float64, nClasses int) domain.ClassificationReport {
	report := domain.ClassificationReport{ROCAUC: math.NaN()}
	if len(truth) == 0 {
		report.Accuracy = math.NaN()
		return report
	}

	var correct int
	for i := range truth {
		if truth[i] == pred[i] {
			correct++
		}
	}
	report.Accuracy = float64(correct) / float64(len(truth))

	var total int
	for c := 0; c < nClasses; c++ {
		var tp, fp, fn int
		for i := range truth {
			t, p := int(truth[i]) == c, int(pred[i]) == c
			switch {
			case t && p:
				tp++
			case p:
				fp++
			case t:
				fn++
			}
		}
		precision := ratio(tp, tp+fp)
		recall := ratio(tp, tp+fn)
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		score := domain.ClassScore{
			Label:     strconv.Itoa(c),
			Precision: precision,
			Recall:    recall,
			F1:        f1,
			Support:   tp + fn,
		}
		report.Classes = append(report.Classes, score)
		total += score.Support

		report.Macro.Precision += precision / float64(nClasses)
		report.Macro.Recall += recall / float64(nClasses)
		report.Macro.F1 += f1 / float64(nClasses)
	}

	report.Macro.Label = "macro avg"
	report.Macro.Support = total
	report.Weighted.Label = "weighted avg"
	report.Weighted.Support = total
	if total > 0 {
		for _, s := range report.Classes {
			w := float64(s.Support) / float64(total)
			report.Weighted.Precision += s.Precision * w
			report.Weighted.Recall += s.Recall * w
			report.Weighted.F1 += s.F1 * w
		}
	}
	return report
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

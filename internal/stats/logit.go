package stats

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	apperrors "churncli/internal/errors"
)

const (
	logitMaxIter   = 35
	logitTolerance = 1e-8
	// design matrices above this condition number are treated as rank deficient
	logitMaxCondition = 1e12
)

// Causes wrapped in the model errors of FitLogit.
var (
	ErrNotConverged   = errors.New("stats: logistic regression did not converge")
	ErrConstantColumn = errors.New("stats: column is constant")
	ErrCollinear      = errors.New("stats: columns are collinear")
	ErrSingular       = errors.New("stats: singular information matrix")
)

// LogitResult holds the fitted coefficients of a logistic regression.
// Index 0 is the intercept; the rest follow the input column order.
type LogitResult struct {
	Names        []string
	Params       []float64
	StdErrors    []float64
	PValues      []float64
	Iterations   int
	Observations int
	LogLik       float64
}

// Param returns the coefficient named name.
func (r *LogitResult) Param(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.Params[i], true
		}
	}
	return math.NaN(), false
}

// PValue returns the Wald p-value of the coefficient named name.
func (r *LogitResult) PValue(name string) (float64, bool) {
	for i, n := range r.Names {
		if n == name {
			return r.PValues[i], true
		}
	}
	return math.NaN(), false
}

// Sigmoid is the logistic function.
func Sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// FitLogit fits y ~ const + columns by maximum likelihood with Newton-Raphson.
// Rows containing NaN in y or any column are dropped. y must be 0/1.
func FitLogit(y []float64, names []string, columns [][]float64) (*LogitResult, error) {
	if len(names) != len(columns) {
		return nil, fmt.Errorf("stats: %d names for %d columns", len(names), len(columns))
	}
	for i, c := range columns {
		if len(c) != len(y) {
			return nil, fmt.Errorf("stats: column %s has %d rows, want %d", names[i], len(c), len(y))
		}
	}

	rows := make([]int, 0, len(y))
	for i := range y {
		ok := !math.IsNaN(y[i])
		for _, c := range columns {
			ok = ok && !math.IsNaN(c[i])
		}
		if ok {
			rows = append(rows, i)
		}
	}

	n, k := len(rows), len(columns)+1
	if n <= k {
		return nil, fmt.Errorf("stats: %d observations for %d parameters", n, k)
	}

	for j, c := range columns {
		if constantOver(c, rows) {
			return nil, apperrors.NewModelError(fmt.Sprintf("logit column %s has one value", names[j]), ErrConstantColumn).
				WithContext("column", names[j])
		}
	}

	x := mat.NewDense(n, k, nil)
	yv := mat.NewVecDense(n, nil)
	for r, i := range rows {
		x.Set(r, 0, 1)
		for j, c := range columns {
			x.Set(r, j+1, c[i])
		}
		yv.SetVec(r, y[i])
	}

	if cond := conditionNumber(x); cond > logitMaxCondition {
		return nil, apperrors.NewModelError("logit columns are linearly dependent", ErrCollinear).
			WithContext("columns", names).
			WithContext("condition", cond)
	}

	beta := mat.NewVecDense(k, nil)
	var hess mat.Dense
	var iter int
	converged := false

	for iter = 1; iter <= logitMaxIter; iter++ {
		var eta mat.VecDense
		eta.MulVec(x, beta)

		resid := mat.NewVecDense(n, nil)
		weighted := mat.NewDense(n, k, nil)
		for r := 0; r < n; r++ {
			p := Sigmoid(eta.AtVec(r))
			resid.SetVec(r, yv.AtVec(r)-p)
			w := p * (1 - p)
			for j := 0; j < k; j++ {
				weighted.Set(r, j, x.At(r, j)*w)
			}
		}

		var grad mat.VecDense
		grad.MulVec(x.T(), resid)
		hess.Mul(x.T(), weighted)

		var step mat.VecDense
		if err := step.SolveVec(&hess, &grad); err != nil {
			return nil, apperrors.NewModelError("logit information matrix is singular", fmt.Errorf("%w: %v", ErrSingular, err)).
				WithContext("iteration", iter)
		}
		beta.AddVec(beta, &step)

		if mat.Norm(&step, math.Inf(1)) < logitTolerance {
			converged = true
			break
		}
	}
	if !converged {
		return nil, apperrors.NewModelError("logit fit", ErrNotConverged).WithContext("iterations", logitMaxIter)
	}

	var cov mat.Dense
	if err := cov.Inverse(&hess); err != nil {
		return nil, apperrors.NewModelError("logit covariance", fmt.Errorf("%w: %v", ErrSingular, err))
	}

	res := &LogitResult{
		Names:        append([]string{"const"}, names...),
		Params:       make([]float64, k),
		StdErrors:    make([]float64, k),
		PValues:      make([]float64, k),
		Iterations:   iter,
		Observations: n,
	}
	for j := 0; j < k; j++ {
		b := beta.AtVec(j)
		se := math.Sqrt(cov.At(j, j))
		res.Params[j] = b
		res.StdErrors[j] = se
		res.PValues[j] = 2 * distuv.UnitNormal.Survival(math.Abs(b/se))
	}

	var eta mat.VecDense
	eta.MulVec(x, beta)
	for r := 0; r < n; r++ {
		p := Sigmoid(eta.AtVec(r))
		if yv.AtVec(r) == 1 {
			res.LogLik += math.Log(p)
		} else {
			res.LogLik += math.Log(1 - p)
		}
	}

	return res, nil
}

// constantOver reports whether c takes a single value on rows.
func constantOver(c []float64, rows []int) bool {
	for _, i := range rows[1:] {
		if c[i] != c[rows[0]] {
			return false
		}
	}
	return true
}

// conditionNumber is the ratio of the largest to the smallest singular
// value of x, +Inf when x is rank deficient.
func conditionNumber(x *mat.Dense) float64 {
	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDNone) {
		return math.Inf(1)
	}
	s := svd.Values(nil)
	if s[len(s)-1] == 0 {
		return math.Inf(1)
	}
	return s[0] / s[len(s)-1]
}

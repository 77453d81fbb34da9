package ml

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics summarises a model on held-out rows.
type Metrics struct {
	RMSE      float64 `json:"rmse"`
	MAE       float64 `json:"mae"`
	R2        float64 `json:"r2"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
}

func Evaluate(yTrue, yPred []float64) (Metrics, error) {
	if len(yTrue) == 0 {
		return Metrics{}, ErrEmptyInput
	}
	if len(yTrue) != len(yPred) {
		return Metrics{}, fmt.Errorf("%w: %d targets, %d predictions", ErrDimensionMismatch, len(yTrue), len(yPred))
	}
	n := float64(len(yTrue))

	m := Metrics{
		RMSE:     floats.Distance(yTrue, yPred, 2) / math.Sqrt(n),
		MAE:      floats.Distance(yTrue, yPred, 1) / n,
		TestRows: len(yTrue),
	}

	// A constant target has no variance to explain.
	if len(yTrue) < 2 || stat.Variance(yTrue, nil) == 0 {
		if floats.EqualApprox(yTrue, yPred, 1e-12) {
			m.R2 = 1
		}
		return m, nil
	}
	m.R2 = stat.RSquaredFrom(yPred, yTrue, nil)
	return m, nil
}

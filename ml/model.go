package ml

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotFitted         = errors.New("model not trained")
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
	ErrEmptyInput        = errors.New("features or targets empty")
)

// Regressor is a fare model that can be fitted offline and persisted.
type Regressor interface {
	Predictor
	Fit(X mat.Matrix, y []float64) error
	Save(path string) error
	Load(path string) error
}

// Predictor is the read-only view the server holds. Implementations must be
// safe for concurrent use once loaded.
type Predictor interface {
	Predict(X mat.Matrix) ([]float64, error)
}

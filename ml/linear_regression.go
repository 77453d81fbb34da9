package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"gonum.org/v1/gonum/mat"
)

const LinearRegressionKind = "linear_regression"

// rcond is the relative cutoff below which singular values are treated as
// zero, so collinear or constant columns yield the minimum-norm solution.
const rcond = 1e-12

// LinearRegression is an ordinary least squares model with intercept.
type LinearRegression struct {
	coefficients []float64
	intercept    float64
	features     []string
	trainedAt    time.Time
}

type linearArtifact struct {
	Kind         string    `json:"kind"`
	Features     []string  `json:"features"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	TrainedAt    time.Time `json:"trained_at"`
}

func NewLinearRegression() *LinearRegression {
	return &LinearRegression{}
}

// Fit solves min ||[1 X]·b - y|| through a thin SVD of the design matrix.
func (lr *LinearRegression) Fit(X mat.Matrix, y []float64) error {
	rows, cols := X.Dims()
	if rows == 0 || cols == 0 || len(y) == 0 {
		return ErrEmptyInput
	}
	if rows != len(y) {
		return fmt.Errorf("%w: %d rows, %d targets", ErrDimensionMismatch, rows, len(y))
	}

	design := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		design.Set(i, 0, 1)
		for j := 0; j < cols; j++ {
			design.Set(i, j+1, X.At(i, j))
		}
	}

	var svd mat.SVD
	if ok := svd.Factorize(design, mat.SVDThin); !ok {
		return errors.New("svd factorization failed")
	}
	rank := svd.Rank(rcond)
	if rank == 0 {
		return errors.New("design matrix has rank zero")
	}

	var beta mat.VecDense
	svd.SolveVecTo(&beta, mat.NewVecDense(rows, append([]float64(nil), y...)), rank)

	lr.intercept = beta.AtVec(0)
	lr.coefficients = make([]float64, cols)
	for j := 0; j < cols; j++ {
		lr.coefficients[j] = beta.AtVec(j + 1)
	}
	if cols == NumFeatures {
		lr.features = append([]string(nil), FeatureColumns...)
	} else {
		lr.features = nil
	}
	lr.trainedAt = time.Now().UTC()
	return nil
}

func (lr *LinearRegression) Predict(X mat.Matrix) ([]float64, error) {
	if len(lr.coefficients) == 0 {
		return nil, ErrNotFitted
	}
	rows, cols := X.Dims()
	if cols != len(lr.coefficients) {
		return nil, fmt.Errorf("%w: got %d columns, model expects %d", ErrDimensionMismatch, cols, len(lr.coefficients))
	}

	var out mat.VecDense
	out.MulVec(X, mat.NewVecDense(cols, lr.coefficients))

	predictions := make([]float64, rows)
	for i := range predictions {
		predictions[i] = out.AtVec(i) + lr.intercept
	}
	return predictions, nil
}

// Coefficients returns a copy of the fitted weights in column order.
func (lr *LinearRegression) Coefficients() []float64 {
	return append([]float64(nil), lr.coefficients...)
}

func (lr *LinearRegression) Intercept() float64 {
	return lr.intercept
}

func (lr *LinearRegression) Save(path string) error {
	if len(lr.coefficients) == 0 {
		return ErrNotFitted
	}
	payload, err := json.MarshalIndent(linearArtifact{
		Kind:         LinearRegressionKind,
		Features:     lr.features,
		Coefficients: lr.coefficients,
		Intercept:    lr.intercept,
		TrainedAt:    lr.trainedAt,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func (lr *LinearRegression) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var artifact linearArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return fmt.Errorf("decode model artifact: %w", err)
	}
	if artifact.Kind != "" && artifact.Kind != LinearRegressionKind {
		return fmt.Errorf("artifact kind %q is not %s", artifact.Kind, LinearRegressionKind)
	}
	if len(artifact.Coefficients) == 0 {
		return fmt.Errorf("decode model artifact: %w", ErrNotFitted)
	}
	if len(artifact.Features) != 0 && len(artifact.Features) != len(artifact.Coefficients) {
		return fmt.Errorf("decode model artifact: %w", ErrDimensionMismatch)
	}
	lr.coefficients = artifact.Coefficients
	lr.intercept = artifact.Intercept
	lr.features = artifact.Features
	lr.trainedAt = artifact.TrainedAt
	return nil
}

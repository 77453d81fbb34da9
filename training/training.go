// Package training fits a fare model from a ride CSV and persists it together
// with its evaluation metrics.
package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"farecast/ml"
	"farecast/pipeline"
)

// geohashPrecision 5 cells are roughly 5km x 5km.
const geohashPrecision = 5

type Config struct {
	DataPath    string
	ModelPath   string
	MetricsPath string
	ModelType   string
	TestSize    float64
	RandomState int64
	MaxRows     int
}

// Result describes a finished run.
type Result struct {
	Metrics     ml.Metrics             `json:"metrics"`
	Cleaning    pipeline.CleaningStats `json:"cleaning"`
	ModelType   string                 `json:"model_type"`
	ModelPath   string                 `json:"model_path"`
	MetricsPath string                 `json:"-"`
	DataPath    string                 `json:"data_path"`
	RandomState int64                  `json:"random_state"`
	TestSize    float64                `json:"test_size"`
}

// MetricsPathFor is the default metrics location next to a model file.
func MetricsPathFor(modelPath string) string {
	return modelPath + ".metrics.json"
}

func (c *Config) validate() error {
	if c.DataPath == "" {
		return errors.New("data path is required")
	}
	if c.ModelPath == "" {
		return errors.New("model path is required")
	}
	if c.TestSize <= 0 || c.TestSize >= 1 {
		return fmt.Errorf("test size must be in (0, 1), got %v", c.TestSize)
	}
	if c.MaxRows < 0 {
		return fmt.Errorf("max rows must not be negative, got %d", c.MaxRows)
	}
	if c.MetricsPath == "" {
		c.MetricsPath = MetricsPathFor(c.ModelPath)
	}
	if c.ModelType == "" {
		c.ModelType = ml.LinearRegressionKind
	}
	return nil
}

// Run loads, cleans, splits, fits, evaluates and saves. Given the same CSV
// and RandomState it produces the same metrics.
func Run(config Config, logger *zap.Logger) (*Result, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("data_path", config.DataPath))
	logger.Info("starting model training")

	raw, err := pipeline.ReadRidesFile(config.DataPath, pipeline.ReadOptions{MaxRows: config.MaxRows})
	if err != nil {
		return nil, err
	}

	cleaner := pipeline.NewDataCleaner()
	rows := cleaner.Clean(raw)
	cleaning := cleaner.GetStats()
	logger.Info("data cleaned",
		zap.Int64("read", cleaning.TotalProcessed),
		zap.Int64("missing_target", cleaning.MissingTarget),
		zap.Int64("imputed_cells", cleaning.ImputedCells),
		zap.Int64("passed", cleaning.Passed),
		zap.Any("rejected_by_rule", cleaning.Issues),
	)
	if len(rows) == 0 {
		return nil, errors.New("no rows left after cleaning")
	}
	describe(rows, logger)

	X := pipeline.Features(rows)
	y := pipeline.Target(rows)
	trainX, testX, trainY, testY, err := ml.TrainTestSplit(X, y, config.TestSize, config.RandomState)
	if err != nil {
		return nil, err
	}

	model, err := ml.NewModel(config.ModelType)
	if err != nil {
		return nil, err
	}
	trainMatrix, err := ml.DenseFromRows(trainX)
	if err != nil {
		return nil, err
	}
	logger.Info("fitting model", zap.String("model_type", config.ModelType), zap.Int("train_rows", len(trainX)))
	if err := model.Fit(trainMatrix, trainY); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}

	testMatrix, err := ml.DenseFromRows(testX)
	if err != nil {
		return nil, err
	}
	predictions, err := model.Predict(testMatrix)
	if err != nil {
		return nil, fmt.Errorf("predict test set: %w", err)
	}
	metrics, err := ml.Evaluate(testY, predictions)
	if err != nil {
		return nil, err
	}
	metrics.TrainRows = len(trainX)
	logger.Info("model evaluation finished",
		zap.Float64("rmse", metrics.RMSE),
		zap.Float64("mae", metrics.MAE),
		zap.Float64("r2", metrics.R2),
	)

	if err := os.MkdirAll(filepath.Dir(config.ModelPath), 0o755); err != nil {
		return nil, err
	}
	if err := model.Save(config.ModelPath); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}

	result := &Result{
		Metrics:     metrics,
		Cleaning:    cleaning,
		ModelType:   config.ModelType,
		ModelPath:   config.ModelPath,
		MetricsPath: config.MetricsPath,
		DataPath:    config.DataPath,
		RandomState: config.RandomState,
		TestSize:    config.TestSize,
	}
	if err := writeJSON(config.MetricsPath, result); err != nil {
		return nil, fmt.Errorf("save metrics: %w", err)
	}
	logger.Info("model saved", zap.String("model_path", config.ModelPath), zap.String("metrics_path", config.MetricsPath))
	return result, nil
}

// describe logs the offline-only trip distance summary and pickup coverage.
func describe(rows []pipeline.Row, logger *zap.Logger) {
	distances := make([]float64, len(rows))
	cells := make(map[string]int)
	for i, row := range rows {
		ride := row.Ride()
		distances[i] = ml.Distance(ride)
		pickup, _ := ride.Geohashes(geohashPrecision)
		cells[pickup]++
	}
	mean, std := stat.MeanStdDev(distances, nil)

	busiest, busiestCount := "", 0
	for cell, count := range cells {
		if count > busiestCount || (count == busiestCount && cell < busiest) {
			busiest, busiestCount = cell, count
		}
	}
	logger.Info("ride summary",
		zap.Float64("distance_mean_deg", mean),
		zap.Float64("distance_std_deg", std),
		zap.Int("pickup_cells", len(cells)),
		zap.String("busiest_pickup_cell", busiest),
		zap.Int("busiest_pickup_rides", busiestCount),
	)
}

func writeJSON(path string, v interface{}) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

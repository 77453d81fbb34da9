package training

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"farecast/ml"
	"farecast/pipeline"
)

// writeRides writes n synthetic NYC rides whose fare is a noisy linear
// function of the features, plus a few rows the cleaner must drop.
func writeRides(t *testing.T, n int) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("key,fare_amount,pickup_longitude,pickup_latitude,dropoff_longitude,dropoff_latitude,passenger_count\n")
	for i := 0; i < n; i++ {
		pickupLat := 40.70 + float64(i%7)*0.01
		pickupLon := -74.00 + float64(i%11)*0.005
		dropoffLat := 40.65 + float64(i%13)*0.012
		dropoffLon := -73.95 + float64(i%5)*0.02
		passengers := 1 + i%6
		noise := float64(i%3) * 0.1
		fare := 2.5 + 40*(dropoffLat-pickupLat) + 30*(dropoffLon-pickupLon) + 0.3*float64(passengers) + 8 + noise
		fmt.Fprintf(&b, "k%d,%.4f,%.5f,%.5f,%.5f,%.5f,%d\n", i, fare, pickupLon, pickupLat, dropoffLon, dropoffLat, passengers)
	}
	b.WriteString("bad1,,-73.9,40.7,-73.9,40.8,1\n")
	b.WriteString("bad2,250,-73.9,40.7,-73.9,40.8,1\n")
	b.WriteString("bad3,12,0,0,0,0,1\n")

	path := filepath.Join(t.TempDir(), "uber.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func testConfig(t *testing.T, dataPath string) Config {
	dir := t.TempDir()
	return Config{
		DataPath:    dataPath,
		ModelPath:   filepath.Join(dir, "models", "fare.model"),
		TestSize:    0.2,
		RandomState: 42,
	}
}

func TestRunProducesModelAndMetrics(t *testing.T) {
	dataPath := writeRides(t, 300)
	config := testConfig(t, dataPath)

	result, err := Run(config, zap.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 60, result.Metrics.TestRows)
	assert.Equal(t, 240, result.Metrics.TrainRows)
	assert.Equal(t, int64(303), result.Cleaning.TotalProcessed)
	assert.Equal(t, int64(1), result.Cleaning.MissingTarget)
	assert.Equal(t, int64(2), result.Cleaning.Rejected)
	assert.Less(t, result.Metrics.RMSE, 0.2)
	assert.Greater(t, result.Metrics.R2, 0.9)

	model, err := ml.NewLoader(1)
	require.NoError(t, err)
	loaded, err := model.Load(ml.LinearRegressionKind, config.ModelPath)
	require.NoError(t, err)
	X, err := ml.PrepareFeatures([]ml.Ride{{PickupLatitude: 40.72, PickupLongitude: -73.99, DropoffLatitude: 40.75, DropoffLongitude: -73.95, PassengerCount: 2}})
	require.NoError(t, err)
	pred, err := loaded.Predict(X)
	require.NoError(t, err)
	assert.InDelta(t, 2.5+40*0.03+30*0.04+0.6+8, pred[0], 0.3)

	payload, err := os.ReadFile(MetricsPathFor(config.ModelPath))
	require.NoError(t, err)
	var saved Result
	require.NoError(t, json.Unmarshal(payload, &saved))
	assert.Equal(t, result.Metrics, saved.Metrics)
	assert.Equal(t, int64(42), saved.RandomState)
}

func TestRunIsDeterministic(t *testing.T) {
	dataPath := writeRides(t, 200)

	first, err := Run(testConfig(t, dataPath), zap.NewNop())
	require.NoError(t, err)
	second, err := Run(testConfig(t, dataPath), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, first.Metrics, second.Metrics)

	other := testConfig(t, dataPath)
	other.RandomState = 7
	third, err := Run(other, zap.NewNop())
	require.NoError(t, err)
	assert.NotEqual(t, first.Metrics.RMSE, third.Metrics.RMSE)
}

func TestRunMaxRows(t *testing.T) {
	config := testConfig(t, writeRides(t, 200))
	config.MaxRows = 50
	result, err := Run(config, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.Cleaning.TotalProcessed)
	assert.Equal(t, 10, result.Metrics.TestRows)
}

func TestRunErrors(t *testing.T) {
	config := testConfig(t, filepath.Join(t.TempDir(), "absent.csv"))
	_, err := Run(config, zap.NewNop())
	assert.ErrorIs(t, err, pipeline.ErrDataNotFound)

	config = testConfig(t, writeRides(t, 10))
	config.TestSize = 0
	_, err = Run(config, zap.NewNop())
	assert.Error(t, err)

	config = testConfig(t, writeRides(t, 10))
	config.ModelType = "gradient_boosting"
	_, err = Run(config, zap.NewNop())
	assert.Error(t, err)
}

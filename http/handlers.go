package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"farecast/ml"
	"farecast/monitoring"
)

const serviceMessage = "Uber Price Predictor is running!"

// PredictionFormat selects how fares are rendered in responses.
type PredictionFormat string

const (
	FormatNumber   PredictionFormat = "number"
	FormatCurrency PredictionFormat = "currency"
)

// APIConfig configures the prediction API.
type APIConfig struct {
	ModelPath    string
	Format       PredictionFormat
	MaxBatch     int
	// MaxBodyBytes caps websocket frames. HTTP bodies are capped by
	// RequestSizeMiddleware.
	MaxBodyBytes int64
}

// API serves predictions from a single read-only model. A nil model means
// the artifact could not be loaded and prediction routes answer 503.
type API struct {
	model  ml.Predictor
	config APIConfig
	stats  *monitoring.Collector
	logger *zap.Logger
}

func NewAPI(model ml.Predictor, config APIConfig, stats *monitoring.Collector, logger *zap.Logger) *API {
	if config.Format == "" {
		config.Format = FormatNumber
	}
	if stats == nil {
		stats = monitoring.NewCollector()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{model: model, config: config, stats: stats, logger: logger}
}

// RegisterHandlers mounts the plain request/response routes. The websocket
// route is mounted by NewServer outside the timeout and compression chain.
func (a *API) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", a.handleRoot)
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.HandleFunc("POST /api/predict/{$}", a.handlePredict)
	mux.HandleFunc("GET /api/stats", a.handleStats)
	mux.Handle("GET /predict/form/", formHandler())
}

func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": serviceMessage})
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if a.model == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"detail": a.notFoundDetail(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "model": a.config.ModelPath})
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, a.stats.Snapshot())
}

func (a *API) handlePredict(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.stats.RecordValidationFailure()
			writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		a.stats.RecordError()
		writeDetail(w, http.StatusBadRequest, "could not read request body")
		return
	}

	resp, status, detail := a.predict(body, GetRequestID(r.Context()))
	if status != http.StatusOK {
		respondJSON(w, status, map[string]interface{}{"detail": detail})
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// predict runs one request body through validation and the model. It is
// shared by the HTTP and websocket entry points.
func (a *API) predict(body []byte, requestID string) (*predictResponse, int, interface{}) {
	start := time.Now()

	if a.model == nil {
		a.stats.RecordUnavailable()
		return nil, http.StatusServiceUnavailable, a.notFoundDetail()
	}

	rides, err := parsePredictRequest(body, a.config.MaxBatch)
	if err != nil {
		a.stats.RecordValidationFailure()
		var verr *validationError
		if errors.As(err, &verr) {
			return nil, http.StatusUnprocessableEntity, verr.errs
		}
		return nil, http.StatusUnprocessableEntity, err.Error()
	}

	X, err := ml.PrepareFeatures(rides)
	if err != nil {
		a.stats.RecordError()
		a.logger.Error("prepare features failed", zap.String("request_id", requestID), zap.Error(err))
		return nil, http.StatusInternalServerError, "prediction failed"
	}
	predictions, err := a.safePredict(X)
	if err == nil && len(predictions) != len(rides) {
		err = fmt.Errorf("%w: model returned %d predictions for %d rides", ml.ErrDimensionMismatch, len(predictions), len(rides))
	}
	if err != nil {
		a.stats.RecordError()
		a.logger.Error("prediction failed", zap.String("request_id", requestID), zap.Int("rides", len(rides)), zap.Error(err))
		return nil, http.StatusInternalServerError, "prediction failed"
	}

	resp := &predictResponse{Predictions: make([]interface{}, len(predictions))}
	for i, p := range predictions {
		resp.Predictions[i] = a.format(p)
	}

	elapsed := time.Since(start)
	a.stats.RecordPrediction(len(rides), elapsed)
	if ce := a.logger.Check(zap.DebugLevel, "predicted"); ce != nil {
		pickup, dropoff := rides[0].Geohashes(6)
		ce.Write(
			zap.String("request_id", requestID),
			zap.Int("rides", len(rides)),
			zap.String("first_pickup_cell", pickup),
			zap.String("first_dropoff_cell", dropoff),
			zap.Duration("elapsed", elapsed),
		)
	}
	return resp, http.StatusOK, nil
}

// safePredict reports a panicking model as an error.
func (a *API) safePredict(X mat.Matrix) (predictions []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("model panicked: %v", r)
		}
	}()
	return a.model.Predict(X)
}

func (a *API) format(p float64) interface{} {
	if a.config.Format == FormatCurrency {
		return fmt.Sprintf("%.2f $", p)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return nil
	}
	return math.Round(p*100) / 100
}

func (a *API) notFoundDetail() string {
	return "Model not found: " + a.config.ModelPath
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}

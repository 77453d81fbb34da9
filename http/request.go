package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"farecast/ml"
)

const (
	minPassengers = 1
	maxPassengers = 10
)

// fieldError mirrors the {"loc": [...], "msg": ...} entries of a 422 body.
type fieldError struct {
	Loc []interface{} `json:"loc"`
	Msg string        `json:"msg"`
}

type validationError struct {
	errs []fieldError
}

func (v *validationError) Error() string {
	if len(v.errs) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %v %s", v.errs[0].Loc, v.errs[0].Msg)
}

type predictRequest struct {
	Data []map[string]json.RawMessage `json:"data"`
}

type predictResponse struct {
	Predictions []interface{} `json:"predictions"`
}

var jsonNull = []byte("null")

// parsePredictRequest decodes and validates a predict body. Every problem is
// reported, not only the first one.
func parsePredictRequest(body []byte, maxBatch int) ([]ml.Ride, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.DisallowUnknownFields()

	var req predictRequest
	if err := decoder.Decode(&req); err != nil {
		return nil, &validationError{errs: []fieldError{{Loc: []interface{}{"body"}, Msg: decodeMessage(err)}}}
	}
	if decoder.More() {
		return nil, &validationError{errs: []fieldError{{Loc: []interface{}{"body"}, Msg: "unexpected data after JSON object"}}}
	}
	if req.Data == nil {
		return nil, &validationError{errs: []fieldError{{Loc: []interface{}{"body", "data"}, Msg: "field required"}}}
	}
	if len(req.Data) == 0 {
		return nil, &validationError{errs: []fieldError{{Loc: []interface{}{"body", "data"}, Msg: "ensure this value has at least 1 items"}}}
	}
	if maxBatch > 0 && len(req.Data) > maxBatch {
		return nil, &validationError{errs: []fieldError{{
			Loc: []interface{}{"body", "data"},
			Msg: fmt.Sprintf("ensure this value has at most %d items", maxBatch),
		}}}
	}

	rides := make([]ml.Ride, len(req.Data))
	var errs []fieldError
	for i, record := range req.Data {
		ride, recordErrs := parseRide(i, record)
		rides[i] = ride
		errs = append(errs, recordErrs...)
	}
	if len(errs) > 0 {
		return nil, &validationError{errs: errs}
	}
	return rides, nil
}

func parseRide(index int, record map[string]json.RawMessage) (ml.Ride, []fieldError) {
	var errs []fieldError
	loc := func(field string) []interface{} {
		return []interface{}{"body", "data", index, field}
	}

	if record == nil {
		return ml.Ride{}, []fieldError{{Loc: []interface{}{"body", "data", index}, Msg: "value is not a valid dict"}}
	}

	var values [ml.NumFeatures]float64
	for i, field := range ml.FeatureColumns {
		raw, ok := record[field]
		if !ok || bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			errs = append(errs, fieldError{Loc: loc(field), Msg: "field required"})
			continue
		}
		var v float64
		if err := json.Unmarshal(raw, &v); err != nil {
			errs = append(errs, fieldError{Loc: loc(field), Msg: "value is not a valid number"})
			continue
		}
		if msg := checkRange(field, v); msg != "" {
			errs = append(errs, fieldError{Loc: loc(field), Msg: msg})
			continue
		}
		values[i] = v
	}

	var extra []string
	for field := range record {
		if !isFeatureColumn(field) {
			extra = append(extra, field)
		}
	}
	sort.Strings(extra)
	for _, field := range extra {
		errs = append(errs, fieldError{Loc: loc(field), Msg: "extra fields not permitted"})
	}

	if len(errs) > 0 {
		return ml.Ride{}, errs
	}
	ride, _ := ml.RideFromVector(values[:])
	return ride, nil
}

func checkRange(field string, v float64) string {
	switch field {
	case "pickup_latitude", "dropoff_latitude":
		if v < -90 || v > 90 {
			return "latitude must be between -90 and 90"
		}
	case "pickup_longitude", "dropoff_longitude":
		if v < -180 || v > 180 {
			return "longitude must be between -180 and 180"
		}
	case "passenger_count":
		if v != math.Trunc(v) {
			return "value is not a valid integer"
		}
		if v < minPassengers || v > maxPassengers {
			return fmt.Sprintf("passenger_count must be between %d and %d", minPassengers, maxPassengers)
		}
	}
	return ""
}

func isFeatureColumn(field string) bool {
	for _, c := range ml.FeatureColumns {
		if c == field {
			return true
		}
	}
	return false
}

func decodeMessage(err error) string {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Sprintf("invalid JSON at offset %d", syntaxErr.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case errors.Is(err, io.EOF):
		return "request body is empty"
	default:
		return err.Error()
	}
}

package ml

import (
	"math"

	"github.com/mmcloughlin/geohash"
	"gonum.org/v1/gonum/mat"
)

// NumFeatures is the width of the model's input layout.
const NumFeatures = 5

// FeatureColumns is the column order every model is trained and served with.
var FeatureColumns = []string{
	"pickup_latitude",
	"pickup_longitude",
	"dropoff_latitude",
	"dropoff_longitude",
	"passenger_count",
}

const TargetColumn = "fare_amount"

type Ride struct {
	PickupLatitude   float64 `json:"pickup_latitude"`
	PickupLongitude  float64 `json:"pickup_longitude"`
	DropoffLatitude  float64 `json:"dropoff_latitude"`
	DropoffLongitude float64 `json:"dropoff_longitude"`
	PassengerCount   int     `json:"passenger_count"`
}

// FeatureVector lays a ride out in FeatureColumns order.
func FeatureVector(r Ride) []float64 {
	return []float64{
		r.PickupLatitude,
		r.PickupLongitude,
		r.DropoffLatitude,
		r.DropoffLongitude,
		float64(r.PassengerCount),
	}
}

// PrepareFeatures turns a batch of rides into the model's row-major input.
func PrepareFeatures(rides []Ride) (*mat.Dense, error) {
	rows := make([][]float64, len(rides))
	for i, r := range rides {
		rows[i] = FeatureVector(r)
	}
	return DenseFromRows(rows)
}

// DenseFromRows copies equally sized rows into a matrix.
func DenseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyInput
	}
	cols := len(rows[0])
	if cols == 0 {
		return nil, ErrEmptyInput
	}
	data := make([]float64, 0, len(rows)*cols)
	for _, row := range rows {
		if len(row) != cols {
			return nil, ErrDimensionMismatch
		}
		data = append(data, row...)
	}
	return mat.NewDense(len(rows), cols, data), nil
}

// Distance is the straight-line pickup to dropoff distance in degrees. It is
// reported by the trainer and is not part of the served feature layout.
func Distance(r Ride) float64 {
	return math.Hypot(r.DropoffLongitude-r.PickupLongitude, r.DropoffLatitude-r.PickupLatitude)
}

// Geohashes returns the pickup and dropoff cells at the given precision.
func (r Ride) Geohashes(precision uint) (pickup, dropoff string) {
	pickup = geohash.EncodeWithPrecision(r.PickupLatitude, r.PickupLongitude, precision)
	dropoff = geohash.EncodeWithPrecision(r.DropoffLatitude, r.DropoffLongitude, precision)
	return pickup, dropoff
}

// RideFromVector is the inverse of FeatureVector. Passenger count is rounded.
func RideFromVector(v []float64) (Ride, error) {
	if len(v) != NumFeatures {
		return Ride{}, ErrDimensionMismatch
	}
	return Ride{
		PickupLatitude:   v[0],
		PickupLongitude:  v[1],
		DropoffLatitude:  v[2],
		DropoffLongitude: v[3],
		PassengerCount:   int(math.Round(v[4])),
	}, nil
}

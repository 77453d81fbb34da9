package pipeline

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"farecast/ml"
)

var (
	ErrMissingColumn = errors.New("missing column")
	ErrDataNotFound  = errors.New("data file not found")
)

// Row is one raw ride from the training CSV. Missing or unparseable cells
// are NaN until the cleaner imputes or drops them.
type Row struct {
	Features [ml.NumFeatures]float64
	Fare     float64
	Line     int
}

// Ride converts the feature cells back into a serving-side ride.
func (r Row) Ride() ml.Ride {
	ride, _ := ml.RideFromVector(r.Features[:])
	return ride
}

// ReadOptions controls how much of a CSV is read.
type ReadOptions struct {
	// MaxRows caps the number of data rows read; 0 reads everything.
	MaxRows int
}

// ReadRidesFile opens path and reads it with ReadRides.
func ReadRidesFile(path string, opts ReadOptions) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDataNotFound, path)
		}
		return nil, err
	}
	defer file.Close()

	return ReadRides(file, opts)
}

// ReadRides reads a ride CSV with a header row. Columns are matched by name,
// so extra columns (key, pickup_datetime, an unnamed index) are ignored. A
// UTF-8 or UTF-16 byte order mark is honoured.
func ReadRides(r io.Reader, opts ReadOptions) ([]Row, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty input", ErrMissingColumn)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	featureIdx, fareIdx, err := columnIndexes(header)
	if err != nil {
		return nil, err
	}

	rows := make([]Row, 0)
	line := 1
	for {
		if opts.MaxRows > 0 && len(rows) >= opts.MaxRows {
			break
		}
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		row := Row{Line: line, Fare: cell(record, fareIdx)}
		for i, idx := range featureIdx {
			row.Features[i] = cell(record, idx)
		}
		rows = append(rows, row)
	}

	return rows, nil
}

func columnIndexes(header []string) ([ml.NumFeatures]int, int, error) {
	var featureIdx [ml.NumFeatures]int
	positions := make(map[string]int, len(header))
	for i, name := range header {
		positions[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for i, name := range ml.FeatureColumns {
		idx, ok := positions[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		featureIdx[i] = idx
	}
	fareIdx, ok := positions[ml.TargetColumn]
	if !ok {
		missing = append(missing, ml.TargetColumn)
	}
	if len(missing) > 0 {
		return featureIdx, 0, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return featureIdx, fareIdx, nil
}

func cell(record []string, idx int) float64 {
	if idx >= len(record) {
		return math.NaN()
	}
	value := strings.TrimSpace(record[idx])
	if value == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsInf(f, 0) {
		return math.NaN()
	}
	return f
}

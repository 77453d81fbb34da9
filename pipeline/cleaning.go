package pipeline

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"farecast/ml"
)

// CleaningRule rejects a row by returning an error.
type CleaningRule interface {
	Apply(*Row) error
	Name() string
}

// DataCleaner drops rows without a fare, median-imputes missing feature
// cells and then runs every rule in order. The first failing rule rejects
// the row.
type DataCleaner struct {
	rules []CleaningRule

	stats     CleaningStats
	statsLock sync.RWMutex
}

// CleaningStats counts what a Clean call did.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	MissingTarget  int64            `json:"missing_target"`
	ImputedCells   int64            `json:"imputed_cells"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
}

// NewDataCleaner returns a cleaner with the NYC ride filters.
func NewDataCleaner() *DataCleaner {
	cleaner := &DataCleaner{
		rules: make([]CleaningRule, 0),
	}
	cleaner.resetStats()

	cleaner.AddRule(NewFareRangeRule())
	cleaner.AddRule(NewPassengerRangeRule())
	cleaner.AddRule(NewBoundingBoxRule())

	return cleaner
}

func (dc *DataCleaner) AddRule(rule CleaningRule) {
	dc.rules = append(dc.rules, rule)
}

// Clean returns the rows that survive. The input slice is not modified.
func (dc *DataCleaner) Clean(rows []Row) []Row {
	dc.statsLock.Lock()
	defer dc.statsLock.Unlock()
	dc.resetStats()

	labeled := make([]Row, 0, len(rows))
	for _, row := range rows {
		dc.stats.TotalProcessed++
		if math.IsNaN(row.Fare) {
			dc.stats.MissingTarget++
			continue
		}
		labeled = append(labeled, row)
	}

	medians := ColumnMedians(labeled)
	for i := range labeled {
		for j, v := range labeled[i].Features {
			if math.IsNaN(v) {
				labeled[i].Features[j] = medians[j]
				dc.stats.ImputedCells++
			}
		}
	}

	cleaned := make([]Row, 0, len(labeled))
	for i := range labeled {
		row := labeled[i]
		rejected := false
		for _, rule := range dc.rules {
			if err := rule.Apply(&row); err != nil {
				dc.stats.Issues[rule.Name()]++
				rejected = true
				break
			}
		}
		if rejected {
			dc.stats.Rejected++
			continue
		}
		dc.stats.Passed++
		cleaned = append(cleaned, row)
	}

	return cleaned
}

func (dc *DataCleaner) resetStats() {
	dc.stats = CleaningStats{Issues: make(map[string]int64)}
}

// GetStats returns a copy of the counters from the last Clean call.
func (dc *DataCleaner) GetStats() CleaningStats {
	dc.statsLock.RLock()
	defer dc.statsLock.RUnlock()

	stats := dc.stats
	stats.Issues = make(map[string]int64, len(dc.stats.Issues))
	for k, v := range dc.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

// ColumnMedians computes the per-feature median ignoring NaN cells. A column
// with no values at all gets 0.
func ColumnMedians(rows []Row) [ml.NumFeatures]float64 {
	var medians [ml.NumFeatures]float64
	values := make([]float64, 0, len(rows))
	for j := 0; j < ml.NumFeatures; j++ {
		values = values[:0]
		for _, row := range rows {
			if v := row.Features[j]; !math.IsNaN(v) {
				values = append(values, v)
			}
		}
		medians[j] = median(values)
	}
	return medians
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Features returns the feature matrix rows in ml.FeatureColumns order.
func Features(rows []Row) [][]float64 {
	features := make([][]float64, len(rows))
	for i := range rows {
		features[i] = append([]float64(nil), rows[i].Features[:]...)
	}
	return features
}

// Target returns the fare column.
func Target(rows []Row) []float64 {
	target := make([]float64, len(rows))
	for i, row := range rows {
		target[i] = row.Fare
	}
	return target
}

// ============ rules ============

// FareRangeRule keeps fares strictly between Min and Max.
type FareRangeRule struct {
	Min float64
	Max float64
}

func NewFareRangeRule() *FareRangeRule {
	return &FareRangeRule{Min: 0, Max: 100}
}

func (r *FareRangeRule) Name() string {
	return "fare_range"
}

func (r *FareRangeRule) Apply(row *Row) error {
	if !(row.Fare > r.Min && row.Fare < r.Max) {
		return fmt.Errorf("fare %.2f out of range (%.2f, %.2f)", row.Fare, r.Min, r.Max)
	}
	return nil
}

// PassengerRangeRule keeps passenger counts strictly between Min and Max.
type PassengerRangeRule struct {
	Min float64
	Max float64
}

func NewPassengerRangeRule() *PassengerRangeRule {
	return &PassengerRangeRule{Min: 0, Max: 7}
}

func (r *PassengerRangeRule) Name() string {
	return "passenger_range"
}

func (r *PassengerRangeRule) Apply(row *Row) error {
	count := row.Features[4]
	if !(count > r.Min && count < r.Max) {
		return fmt.Errorf("passenger count %v out of range (%v, %v)", count, r.Min, r.Max)
	}
	return nil
}

// BoundingBoxRule keeps rides whose pickup and dropoff both fall inside an
// open latitude/longitude box. The default box covers New York City.
type BoundingBoxRule struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

func NewBoundingBoxRule() *BoundingBoxRule {
	return &BoundingBoxRule{MinLat: 40, MaxLat: 42, MinLon: -75, MaxLon: -73}
}

func (r *BoundingBoxRule) Name() string {
	return "bounding_box"
}

func (r *BoundingBoxRule) Apply(row *Row) error {
	f := row.Features
	if !r.contains(f[0], f[1]) {
		return fmt.Errorf("pickup (%.4f, %.4f) outside bounding box", f[0], f[1])
	}
	if !r.contains(f[2], f[3]) {
		return fmt.Errorf("dropoff (%.4f, %.4f) outside bounding box", f[2], f[3])
	}
	return nil
}

func (r *BoundingBoxRule) contains(lat, lon float64) bool {
	return lat > r.MinLat && lat < r.MaxLat && lon > r.MinLon && lon < r.MaxLon
}

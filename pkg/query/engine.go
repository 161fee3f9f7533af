package query

import (
	"context"
	"math"
	"sort"

	"github.com/blackroad/metricboard/pkg/storage"
	"github.com/blackroad/metricboard/pkg/types"
)

// Engine resolves query specs against a point store and computes
// summary statistics over the matched window.
type Engine struct {
	store storage.Store
}

// NewEngine creates a query engine backed by the given store
func NewEngine(store storage.Store) *Engine {
	return &Engine{store: store}
}

// Result holds the matched points in chronological order together with
// their summary statistics.
type Result struct {
	Points []types.Point    `json:"points"`
	Stats  types.Statistics `json:"stats"`
}

// Query executes the spec and returns the ordered points plus statistics.
// An invalid range fails fast with a ValidationError before touching
// storage; storage failures are propagated unchanged, never retried.
func (e *Engine) Query(ctx context.Context, spec types.QuerySpec) (*Result, error) {
	if spec.Metric == "" {
		return nil, types.NewValidationError("metric name is empty")
	}
	if err := spec.Range.Validate(); err != nil {
		return nil, err
	}

	points, err := e.store.Read(ctx, spec.Metric, spec.Range, spec.LabelFilter)
	if err != nil {
		return nil, err
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	return &Result{Points: points, Stats: Compute(values)}, nil
}

// Latest returns the most recent point matching the metric and filter,
// or nil when no point matches
func (e *Engine) Latest(ctx context.Context, metric string, filter map[string]string) (*types.Point, error) {
	if metric == "" {
		return nil, types.NewValidationError("metric name is empty")
	}
	return e.store.Latest(ctx, metric, filter)
}

// Compute derives summary statistics from a sequence of values.
// With no values the min/max/avg/p95 fields stay nil; a count of zero
// must never be conflated with a value of zero.
func Compute(values []float64) types.Statistics {
	stats := types.Statistics{Count: len(values)}
	if len(values) == 0 {
		return stats
	}

	min, max, sum := values[0], values[0], 0.0
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
		sum += v
	}
	avg := sum / float64(len(values))
	p95 := percentile(values, 0.95)

	stats.Min = &min
	stats.Max = &max
	stats.Avg = &avg
	stats.P95 = &p95
	return stats
}

// percentile implements the nearest-rank estimator: sort ascending and
// pick index ceil(q*n)-1, clamped to the valid range. It always returns
// an observed value, no interpolation.
func percentile(values []float64, q float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

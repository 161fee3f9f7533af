package types

import "math"

// Point represents a single time-series data point
type Point struct {
	// Metric is the series name (e.g. "cpu.usage")
	Metric string `json:"metric"`
	// Timestamp is the observation time in Unix seconds
	Timestamp int64 `json:"timestamp"`
	// Value is the numeric measurement
	Value float64 `json:"value"`
	// Labels are optional key/value tags used for filtering
	Labels map[string]string `json:"labels,omitempty"`
}

// Validate checks the point against the write contract
func (p Point) Validate() error {
	if p.Metric == "" {
		return NewValidationError("metric name is empty")
	}
	if math.IsNaN(p.Value) || math.IsInf(p.Value, 0) {
		return NewValidationError("metric value is not a finite number")
	}
	for k := range p.Labels {
		if k == "" {
			return NewValidationError("label key is empty")
		}
	}
	return nil
}

// TimeRange is an inclusive time range in Unix seconds
type TimeRange struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// Validate checks that the range is well-formed (From <= To)
func (r TimeRange) Validate() error {
	if r.From > r.To {
		return NewValidationError("time range start is after its end")
	}
	return nil
}

// Contains reports whether ts falls inside the range
func (r TimeRange) Contains(ts int64) bool {
	return ts >= r.From && ts <= r.To
}

// QuerySpec describes a range query over a single metric.
// LabelFilter is a subset match: a point matches when every
// filter key/value pair is present in the point's labels.
type QuerySpec struct {
	Metric      string            `json:"metric"`
	Range       TimeRange         `json:"range"`
	LabelFilter map[string]string `json:"label_filter,omitempty"`
}

// MatchLabels reports whether the given point labels satisfy the filter
func (q QuerySpec) MatchLabels(labels map[string]string) bool {
	for k, want := range q.LabelFilter {
		got, ok := labels[k]
		if !ok || got != want {
			return false
		}
	}
	return true
}

// Statistics summarizes an ordered sequence of values.
// Min/Max/Avg/P95 are nil when Count is zero; zero is a valid
// metric value and is never used to signal absence of data.
type Statistics struct {
	Count int      `json:"count"`
	Min   *float64 `json:"min,omitempty"`
	Max   *float64 `json:"max,omitempty"`
	Avg   *float64 `json:"avg,omitempty"`
	P95   *float64 `json:"p95,omitempty"`
}

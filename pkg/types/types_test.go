package types

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPointValidate(t *testing.T) {
	tests := []struct {
		name    string
		point   Point
		wantErr bool
	}{
		{
			name:  "valid point",
			point: Point{Metric: "cpu.usage", Timestamp: 1000, Value: 42.5, Labels: map[string]string{"node": "a"}},
		},
		{
			name:  "no labels is valid",
			point: Point{Metric: "cpu.usage", Timestamp: 1000, Value: 0},
		},
		{
			name:    "empty metric name",
			point:   Point{Metric: "", Timestamp: 1000, Value: 1},
			wantErr: true,
		},
		{
			name:    "NaN value",
			point:   Point{Metric: "cpu.usage", Value: math.NaN()},
			wantErr: true,
		},
		{
			name:    "infinite value",
			point:   Point{Metric: "cpu.usage", Value: math.Inf(1)},
			wantErr: true,
		},
		{
			name:    "empty label key",
			point:   Point{Metric: "cpu.usage", Value: 1, Labels: map[string]string{"": "x"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.point.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrValidation))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTimeRangeValidate(t *testing.T) {
	assert.NoError(t, TimeRange{From: 0, To: 0}.Validate())
	assert.NoError(t, TimeRange{From: 10, To: 20}.Validate())

	err := TimeRange{From: 20, To: 10}.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrValidation))
}

func TestTimeRangeContains(t *testing.T) {
	r := TimeRange{From: 10, To: 20}

	// Inclusive on both ends.
	assert.True(t, r.Contains(10))
	assert.True(t, r.Contains(20))
	assert.True(t, r.Contains(15))
	assert.False(t, r.Contains(9))
	assert.False(t, r.Contains(21))
}

func TestQuerySpecMatchLabels(t *testing.T) {
	labels := map[string]string{"node": "a", "env": "prod"}

	tests := []struct {
		name   string
		filter map[string]string
		want   bool
	}{
		{"subset match", map[string]string{"node": "a"}, true},
		{"full match", map[string]string{"node": "a", "env": "prod"}, true},
		{"empty filter matches", map[string]string{}, true},
		{"nil filter matches", nil, true},
		{"wrong value", map[string]string{"node": "b"}, false},
		{"absent key", map[string]string{"region": "us"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := QuerySpec{Metric: "cpu", LabelFilter: tt.filter}
			assert.Equal(t, tt.want, spec.MatchLabels(labels))
		})
	}
}

func TestQuerySpecMatchLabelsUnlabeledPoint(t *testing.T) {
	// A point with no labels matches only an empty filter.
	spec := QuerySpec{Metric: "cpu"}
	assert.True(t, spec.MatchLabels(nil))

	spec.LabelFilter = map[string]string{"node": "a"}
	assert.False(t, spec.MatchLabels(nil))
}

func TestErrorTaxonomy(t *testing.T) {
	verr := NewValidationError("bad input %d", 7)
	assert.True(t, errors.Is(verr, ErrValidation))
	assert.False(t, errors.Is(verr, ErrStorage))
	assert.Contains(t, verr.Error(), "bad input 7")

	cause := errors.New("disk gone")
	serr := NewStorageError("read", cause)
	assert.True(t, errors.Is(serr, ErrStorage))
	assert.False(t, errors.Is(serr, ErrValidation))
	assert.True(t, errors.Is(serr, cause))
	assert.Contains(t, serr.Error(), "read")
}

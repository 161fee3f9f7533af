package storage

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad/metricboard/pkg/types"
)

func newTestStore(t *testing.T) Store {
	t.Helper()

	store, err := NewStore(&Config{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreWriteAndRead(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	points := []types.Point{
		{Metric: "cpu", Timestamp: 1000, Value: 42.5, Labels: map[string]string{"node": "server1"}},
		{Metric: "cpu", Timestamp: 2000, Value: 50.0, Labels: map[string]string{"node": "server1"}},
	}
	for _, p := range points {
		require.NoError(t, store.Write(ctx, p))
	}

	got, err := store.Read(ctx, "cpu", types.TimeRange{From: 0, To: 3000}, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 42.5, got[0].Value)
	assert.Equal(t, int64(1000), got[0].Timestamp)
	assert.Equal(t, 50.0, got[1].Value)
	assert.Equal(t, int64(2000), got[1].Timestamp)
	assert.Equal(t, map[string]string{"node": "server1"}, got[0].Labels)
}

func TestStoreReadOrderIndependentOfWriteOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Backfill: write timestamps out of order.
	for _, ts := range []int64{5000, 1000, 3000, 2000, 4000} {
		require.NoError(t, store.Write(ctx, types.Point{Metric: "cpu", Timestamp: ts, Value: float64(ts)}))
	}

	got, err := store.Read(ctx, "cpu", types.TimeRange{From: 0, To: 10000}, nil)
	require.NoError(t, err)
	require.Len(t, got, 5)

	for i := 1; i < len(got); i++ {
		assert.LessOrEqual(t, got[i-1].Timestamp, got[i].Timestamp)
	}
}

func TestStoreTimestampTiesKeepInsertionOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i, v := range []float64{1, 2, 3} {
		require.NoError(t, store.Write(ctx, types.Point{
			Metric:    "cpu",
			Timestamp: 1000,
			Value:     v,
			Labels:    map[string]string{"write": string(rune('a' + i))},
		}))
	}

	got, err := store.Read(ctx, "cpu", types.TimeRange{From: 1000, To: 1000}, nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{got[0].Value, got[1].Value, got[2].Value})
}

func TestStoreRangeIsInclusive(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, ts := range []int64{999, 1000, 2000, 2001} {
		require.NoError(t, store.Write(ctx, types.Point{Metric: "cpu", Timestamp: ts, Value: 1}))
	}

	got, err := store.Read(ctx, "cpu", types.TimeRange{From: 1000, To: 2000}, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(1000), got[0].Timestamp)
	assert.Equal(t, int64(2000), got[1].Timestamp)
}

func TestStoreLabelFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, types.Point{
		Metric: "cpu", Timestamp: 1000, Value: 1,
		Labels: map[string]string{"node": "a", "env": "prod"},
	}))
	require.NoError(t, store.Write(ctx, types.Point{
		Metric: "cpu", Timestamp: 2000, Value: 2,
		Labels: map[string]string{"node": "b", "env": "prod"},
	}))
	require.NoError(t, store.Write(ctx, types.Point{
		Metric: "cpu", Timestamp: 3000, Value: 3,
	}))

	r := types.TimeRange{From: 0, To: 10000}

	got, err := store.Read(ctx, "cpu", r, map[string]string{"node": "a"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.0, got[0].Value)

	got, err = store.Read(ctx, "cpu", r, map[string]string{"env": "prod"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Unlabeled points match only the empty filter.
	got, err = store.Read(ctx, "cpu", r, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	got, err = store.Read(ctx, "cpu", r, map[string]string{"region": "us"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreReadUnknownMetricIsEmpty(t *testing.T) {
	store := newTestStore(t)

	got, err := store.Read(context.Background(), "nope", types.TimeRange{From: 0, To: 100}, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreMetricsAreIsolated(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, types.Point{Metric: "cpu", Timestamp: 1000, Value: 1}))
	require.NoError(t, store.Write(ctx, types.Point{Metric: "mem", Timestamp: 1000, Value: 2}))

	got, err := store.Read(ctx, "cpu", types.TimeRange{From: 0, To: 10000}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "cpu", got[0].Metric)
}

func TestStoreWriteValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, p := range []types.Point{
		{Metric: "", Timestamp: 1000, Value: 1},
		{Metric: "cpu", Timestamp: 1000, Value: math.NaN()},
		{Metric: "cpu", Timestamp: 1000, Value: math.Inf(-1)},
	} {
		err := store.Write(ctx, p)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrValidation))
	}
}

func TestStoreReadCorruptRecord(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, types.Point{Metric: "cpu", Timestamp: 1000, Value: 42.5}))

	// Plant garbage under a valid point key, bypassing Write.
	bs := store.(*badgerStore)
	require.NoError(t, bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pointKey("cpu", 1500, 999), []byte{0xff, 0xfe})
	}))

	_, err := store.Read(ctx, "cpu", types.TimeRange{From: 0, To: 3000}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStorage))

	_, err = store.Latest(ctx, "cpu", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrStorage))
}

func TestStoreReadInvalidRange(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Read(context.Background(), "cpu", types.TimeRange{From: 100, To: 0}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

func TestStoreLatest(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p, err := store.Latest(ctx, "cpu", nil)
	require.NoError(t, err)
	assert.Nil(t, p)

	require.NoError(t, store.Write(ctx, types.Point{Metric: "cpu", Timestamp: 2000, Value: 2, Labels: map[string]string{"node": "a"}}))
	require.NoError(t, store.Write(ctx, types.Point{Metric: "cpu", Timestamp: 1000, Value: 1, Labels: map[string]string{"node": "b"}}))

	p, err = store.Latest(ctx, "cpu", nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(2000), p.Timestamp)

	// Filter skips the newest point when it does not match.
	p, err = store.Latest(ctx, "cpu", map[string]string{"node": "b"})
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(1000), p.Timestamp)
}

func TestStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := NewStore(&Config{Path: dir})
	require.NoError(t, err)
	require.NoError(t, store.Write(ctx, types.Point{Metric: "cpu", Timestamp: 1000, Value: 42}))
	require.NoError(t, store.Close())

	store, err = NewStore(&Config{Path: dir})
	require.NoError(t, err)
	defer store.Close()

	got, err := store.Read(ctx, "cpu", types.TimeRange{From: 0, To: 10000}, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 42.0, got[0].Value)
}

func TestStoreNegativeTimestamps(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, types.Point{Metric: "cpu", Timestamp: -100, Value: 1}))
	require.NoError(t, store.Write(ctx, types.Point{Metric: "cpu", Timestamp: 100, Value: 2}))

	got, err := store.Read(ctx, "cpu", types.TimeRange{From: -1000, To: 1000}, nil)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(-100), got[0].Timestamp)
	assert.Equal(t, int64(100), got[1].Timestamp)
}

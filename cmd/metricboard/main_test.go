package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackroad/metricboard/pkg/types"
)

func TestResolveTimestamp(t *testing.T) {
	now := func() time.Time { return time.Unix(5000, 0) }

	ts, err := resolveTimestamp("", now)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), ts)

	// Epoch zero is a legal explicit timestamp, not "absent".
	ts, err = resolveTimestamp("0", now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), ts)

	ts, err = resolveTimestamp("-120", now)
	require.NoError(t, err)
	assert.Equal(t, int64(-120), ts)

	_, err = resolveTimestamp("yesterday", now)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}

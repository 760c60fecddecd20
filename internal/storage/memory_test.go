package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/ambilight/internal/model"
)

func TestMemoryStore(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	_, err := m.Latest(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	outcome, err := m.Append(ctx, model.LuxReading{Timestamp: 20, Lux: 2})
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)

	outcome, err = m.Append(ctx, model.LuxReading{Timestamp: 10, Lux: 1})
	require.NoError(t, err)
	assert.Equal(t, Inserted, outcome)

	outcome, err = m.Append(ctx, model.LuxReading{Timestamp: 20, Lux: 3})
	require.NoError(t, err)
	assert.Equal(t, Duplicate, outcome)

	latest, err := m.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.LuxReading{Timestamp: 20, Lux: 2}, latest)

	count, err := m.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	assert.Equal(t, []model.LuxReading{{Timestamp: 10, Lux: 1}, {Timestamp: 20, Lux: 2}}, m.Readings())
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "inserted", Inserted.String())
	assert.Equal(t, "duplicate", Duplicate.String())
	assert.Equal(t, "failed", Failed.String())
}

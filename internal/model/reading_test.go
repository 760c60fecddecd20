package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLuxReading(t *testing.T) {
	tests := []struct {
		name    string
		lux     float64
		wantErr bool
	}{
		{name: "valid reading", lux: 500.0},
		{name: "zero lux is valid", lux: 0.0},
		{name: "negative lux is invalid", lux: -10.0, wantErr: true},
	}

	at := time.Date(2025, 9, 19, 14, 41, 54, 900_000_000, time.UTC)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reading, err := NewLuxReading(at, tt.lux)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNegativeLux)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.lux, reading.Lux)
		})
	}
}

func TestNewLuxReading_TruncatesToSeconds(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	at := time.Date(2025, 9, 19, 17, 41, 54, 999_999_999, loc)

	reading, err := NewLuxReading(at, 1)
	require.NoError(t, err)

	assert.Equal(t, int64(1758292914), reading.Timestamp)
	assert.Equal(t, time.Date(2025, 9, 19, 14, 41, 54, 0, time.UTC), reading.Time())
}

func TestLuxReadingJSON(t *testing.T) {
	in := LuxReading{Timestamp: 1758292914, Lux: 200.711}

	data, err := in.ToJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":1758292914,"lux":200.711}`, string(data))
}

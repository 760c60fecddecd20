package sensor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speedwagon-io/ambilight/internal/opt4001"
)

func TestScriptedReader(t *testing.T) {
	busErr := &BusError{Op: "read", Err: errors.New("nack")}
	r := NewScriptedReader(
		Step{Frame: opt4001.Frame{0x07, 0x00, 0x10, 0x20}},
		Step{Err: busErr},
	)
	ctx := context.Background()

	frame, err := r.ReadFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, opt4001.Frame{0x07, 0x00, 0x10, 0x20}, frame)

	// last step repeats
	for i := 0; i < 3; i++ {
		_, err = r.ReadFrame(ctx)
		assert.ErrorIs(t, err, busErr)
	}
	assert.Equal(t, 4, r.Calls())
}

func TestSimulatedReader(t *testing.T) {
	r := NewSimulatedReader(500, 100)

	for i := 0; i < 20; i++ {
		frame, err := r.ReadFrame(context.Background())
		require.NoError(t, err)
		lux := opt4001.Decode(frame)
		assert.GreaterOrEqual(t, lux, 399.0)
		assert.LessOrEqual(t, lux, 601.0)
	}
}

func TestFakeReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSimulatedReader(500, 0).ReadFrame(ctx)
	assert.True(t, IsBusError(err))
}

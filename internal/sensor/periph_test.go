package sensor

import (
	"context"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"

	"github.com/speedwagon-io/ambilight/internal/opt4001"
)

func TestPeriphReader_ReadFrame(t *testing.T) {
	bus := &i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x44, W: []byte{0x00}, R: []byte{0x07, 0x00, 0x10, 0x20}},
		},
		DontPanic: true,
	}
	r := newPeriphReaderOnBus(bus, 0x44, 0x00, time.Second)

	frame, err := r.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, opt4001.Frame{0x07, 0x00, 0x10, 0x20}, frame)

	require.NoError(t, r.Close())
}

func TestPeriphReader_TxErrorIsBusError(t *testing.T) {
	// no recorded operations: every transaction fails
	bus := &i2ctest.Playback{DontPanic: true}
	r := newPeriphReaderOnBus(bus, 0x44, 0x00, time.Second)

	_, err := r.ReadFrame(context.Background())
	require.Error(t, err)
	assert.True(t, IsBusError(err))
	assert.Equal(t, AdapterPeriph, r.Name())
}

func TestPeriphReader_CancelledContext(t *testing.T) {
	bus := &i2ctest.Playback{DontPanic: true}
	r := newPeriphReaderOnBus(bus, 0x44, 0x00, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ReadFrame(ctx)
	require.Error(t, err)
	assert.True(t, IsBusError(err))
}

// stuckBus blocks every transaction until release is closed.
type stuckBus struct {
	release chan struct{}
	txs     atomic.Int32
}

func (b *stuckBus) String() string                     { return "stuck" }
func (b *stuckBus) SetSpeed(f physic.Frequency) error { return nil }
func (b *stuckBus) Close() error                       { return nil }

func (b *stuckBus) Tx(addr uint16, w, r []byte) error {
	b.txs.Add(1)
	<-b.release
	return nil
}

func TestPeriphReader_WedgedBusKeepsOneTransaction(t *testing.T) {
	bus := &stuckBus{release: make(chan struct{})}
	r := newPeriphReaderOnBus(bus, 0x44, 0x00, 10*time.Millisecond)

	before := runtime.NumGoroutine()
	for i := 0; i < 20; i++ {
		_, err := r.ReadFrame(context.Background())
		require.ErrorIs(t, err, ErrTimeout)
		assert.True(t, IsBusError(err))
	}

	assert.Equal(t, int32(1), bus.txs.Load())
	assert.LessOrEqual(t, runtime.NumGoroutine(), before+1)

	close(bus.release)

	require.Eventually(t, func() bool {
		_, err := r.ReadFrame(context.Background())
		return err == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(2), bus.txs.Load())
}

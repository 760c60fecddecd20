package sensor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/speedwagon-io/ambilight/internal/opt4001"
)

// PeriphReader talks to the sensor through the native I2C driver.
type PeriphReader struct {
	mu       sync.Mutex
	inflight bool
	dev      *i2c.Dev
	bus      i2c.BusCloser
	register byte
	timeout  time.Duration
}

func NewPeriphReader(busName string, addr uint16, register byte, timeout time.Duration) (*PeriphReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	return newPeriphReaderOnBus(bus, addr, register, timeout), nil
}

func newPeriphReaderOnBus(bus i2c.BusCloser, addr uint16, register byte, timeout time.Duration) *PeriphReader {
	return &PeriphReader{
		dev:      &i2c.Dev{Addr: addr, Bus: bus},
		bus:      bus,
		register: register,
		timeout:  timeout,
	}
}

func (r *PeriphReader) Name() string {
	return AdapterPeriph
}

// ReadFrame writes the register pointer and reads the 4-byte result. The
// driver call is not cancellable, so it runs aside and the caller gets a
// timeout error once the deadline passes. At most one transaction is in
// flight; while a late one is still pending every read fails at once.
func (r *PeriphReader) ReadFrame(ctx context.Context) (opt4001.Frame, error) {
	r.mu.Lock()
	if r.inflight {
		r.mu.Unlock()
		return opt4001.Frame{}, &BusError{Op: "read", Err: fmt.Errorf("%w: previous transaction still pending", ErrTimeout)}
	}
	r.inflight = true
	r.mu.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	buf := make([]byte, opt4001.FrameSize)
	go func() {
		err := r.dev.Tx([]byte{r.register}, buf)
		r.mu.Lock()
		r.inflight = false
		r.mu.Unlock()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return opt4001.Frame{}, &BusError{Op: "read", Err: err}
		}
	case <-ctx.Done():
		return opt4001.Frame{}, &BusError{Op: "read", Err: fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())}
	}

	return opt4001.FrameFromBytes(buf)
}

func (r *PeriphReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bus != nil {
		return r.bus.Close()
	}
	return nil
}

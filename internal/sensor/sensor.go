package sensor

import (
	"context"
	"errors"
	"fmt"

	"github.com/speedwagon-io/ambilight/internal/opt4001"
)

const (
	AdapterPeriph = "periph"
	AdapterI2CGet = "i2cget"
	AdapterFake   = "fake"
)

var (
	ErrShortRead = errors.New("short read")
	ErrTimeout   = errors.New("bus timeout")
)

// Reader reads the raw result register of the light sensor. Implementations
// must return within their own bounded timeout.
type Reader interface {
	ReadFrame(ctx context.Context) (opt4001.Frame, error)
	Name() string
	Close() error
}

// BusError is a transient failure of a bus transaction.
type BusError struct {
	Op  string
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("bus %s: %v", e.Op, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

func IsBusError(err error) bool {
	var be *BusError
	return errors.As(err, &be)
}

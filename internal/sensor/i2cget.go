package sensor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/speedwagon-io/ambilight/internal/opt4001"
)

const i2cgetBinary = "i2cget"

type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// I2CGetReader shells out to i2c-tools for hosts without a native driver.
type I2CGetReader struct {
	bus      string
	addr     uint16
	register byte
	timeout  time.Duration
	run      commandRunner
}

func NewI2CGetReader(bus string, addr uint16, register byte, timeout time.Duration) *I2CGetReader {
	return &I2CGetReader{
		bus:      bus,
		addr:     addr,
		register: register,
		timeout:  timeout,
		run:      execRunner,
	}
}

func (r *I2CGetReader) Name() string {
	return AdapterI2CGet
}

func (r *I2CGetReader) args() []string {
	return []string{
		"-y",
		r.bus,
		fmt.Sprintf("%#x", r.addr),
		fmt.Sprintf("%#x", r.register),
		"i",
		strconv.Itoa(opt4001.FrameSize),
	}
}

func (r *I2CGetReader) ReadFrame(ctx context.Context) (opt4001.Frame, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := r.run(ctx, i2cgetBinary, r.args()...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return opt4001.Frame{}, &BusError{Op: "i2cget", Err: err}
	}

	frame, err := parseI2CGetOutput(string(out))
	if err != nil {
		return opt4001.Frame{}, &BusError{Op: "parse", Err: err}
	}
	return frame, nil
}

func (r *I2CGetReader) Close() error {
	return nil
}

// parseI2CGetOutput parses block output such as "0x07 0x00 0x10 0x20".
// Extra tokens beyond the frame are ignored.
func parseI2CGetOutput(out string) (opt4001.Frame, error) {
	var frame opt4001.Frame

	fields := strings.Fields(out)
	if len(fields) < opt4001.FrameSize {
		return frame, fmt.Errorf("%w: got %d bytes from %q", ErrShortRead, len(fields), strings.TrimSpace(out))
	}

	for i := 0; i < opt4001.FrameSize; i++ {
		v, err := strconv.ParseUint(fields[i], 0, 8)
		if err != nil {
			return frame, fmt.Errorf("invalid byte %q: %w", fields[i], err)
		}
		frame[i] = byte(v)
	}
	return frame, nil
}

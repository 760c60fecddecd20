package sensor

import (
	"context"
	"math/rand"
	"sync"

	"github.com/speedwagon-io/ambilight/internal/opt4001"
)

// Step is one scripted result of a FakeReader.
type Step struct {
	Frame opt4001.Frame
	Err   error
}

// FakeReader replays a script of frames and errors. Once the script is
// exhausted the last step repeats; with no script it simulates readings
// around a base lux value.
type FakeReader struct {
	mu        sync.Mutex
	steps     []Step
	calls     int
	baseLux   float64
	variation float64
	counter   uint8
}

func NewScriptedReader(steps ...Step) *FakeReader {
	return &FakeReader{steps: steps}
}

func NewSimulatedReader(baseLux, variation float64) *FakeReader {
	return &FakeReader{baseLux: baseLux, variation: variation}
}

func (f *FakeReader) Name() string {
	return AdapterFake
}

func (f *FakeReader) ReadFrame(ctx context.Context) (opt4001.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return opt4001.Frame{}, &BusError{Op: "read", Err: err}
	}

	i := f.calls
	f.calls++

	if len(f.steps) > 0 {
		if i >= len(f.steps) {
			i = len(f.steps) - 1
		}
		s := f.steps[i]
		if s.Err != nil {
			return opt4001.Frame{}, s.Err
		}
		return s.Frame, nil
	}

	lux := f.baseLux + (rand.Float64()-0.5)*2*f.variation
	f.counter = (f.counter + 1) & 0x0F
	return opt4001.Encode(lux, f.counter), nil
}

func (f *FakeReader) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeReader) Close() error {
	return nil
}

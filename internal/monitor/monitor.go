package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/speedwagon-io/ambilight/internal/lib/logger/sl"
	"github.com/speedwagon-io/ambilight/internal/model"
	"github.com/speedwagon-io/ambilight/internal/opt4001"
	"github.com/speedwagon-io/ambilight/internal/output"
	"github.com/speedwagon-io/ambilight/internal/sensor"
	"github.com/speedwagon-io/ambilight/internal/storage"
)

const (
	// failures up to this count log at error level, later ones at debug
	loudFailures = 3
	summaryEvery = 5

	cleanupEvery = 24 * time.Hour
)

const troubleshootingHint = `Troubleshooting tips:
  - Check I2C connections (SDA/SCL/GND/VCC)
  - Verify sensor power supply
  - Check I2C permissions: sudo usermod -a -G i2c $USER
  - Test I2C bus: i2cdetect -y 1`

// ErrCancelled is returned by Run when its context is done.
var ErrCancelled = errors.New("monitoring cancelled")

// State is the failure history of one monitor. It lives only in memory.
type State struct {
	ConsecutiveFailures int
	LastSuccess         time.Time
	Failing             bool
}

// Cleaner is implemented by stores that support retention.
type Cleaner interface {
	Cleanup(ctx context.Context, before time.Time) error
}

type Monitor struct {
	log     *slog.Logger
	reader  sensor.Reader
	store   storage.Store
	outputs []output.Output
	policy  Policy
	clock   Clock

	retention   time.Duration
	lastCleanup time.Time

	mu    sync.RWMutex
	state State
}

type Option func(*Monitor)

func WithPolicy(p Policy) Option {
	return func(m *Monitor) { m.policy = p }
}

func WithClock(c Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

func WithOutputs(outputs ...output.Output) Option {
	return func(m *Monitor) { m.outputs = append(m.outputs, outputs...) }
}

// WithRetention makes the monitor delete readings older than maxAge once a
// day, if the store supports it.
func WithRetention(maxAge time.Duration) Option {
	return func(m *Monitor) { m.retention = maxAge }
}

func New(log *slog.Logger, reader sensor.Reader, store storage.Store, opts ...Option) *Monitor {
	m := &Monitor{
		log:    log,
		reader: reader,
		store:  store,
		policy: DefaultPolicy(),
		clock:  SystemClock{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Run reads, persists and sleeps until ctx is done. It never returns on
// read or store failures; the returned error always wraps ErrCancelled and
// the context's cause.
func (m *Monitor) Run(ctx context.Context) error {
	m.log.Info("starting ambient light monitoring",
		slog.String("sensor", m.reader.Name()),
		slog.Duration("interval", m.policy.Interval),
	)

	for {
		if ctx.Err() != nil {
			return cancelled(ctx)
		}

		delay := m.Cycle(ctx)

		if err := m.clock.Sleep(ctx, delay); err != nil {
			return cancelled(ctx)
		}
	}
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// Cycle performs one read/decode/persist iteration and returns the delay
// before the next one.
func (m *Monitor) Cycle(ctx context.Context) time.Duration {
	delay, _ := m.cycle(ctx)
	return delay
}

// ReadOnce performs a single iteration without sleeping. It reports whether
// a new reading was stored.
func (m *Monitor) ReadOnce(ctx context.Context) bool {
	_, outcome := m.cycle(ctx)
	return outcome == storage.Inserted
}

func (m *Monitor) cycle(ctx context.Context) (time.Duration, storage.Outcome) {
	now := m.clock.Now()

	reading, err := m.read(ctx, now)
	if err != nil {
		if ctx.Err() != nil {
			// stopping, not a sensor failure
			return 0, storage.Failed
		}
		failures := m.recordFailure(err)
		delay := m.policy.Delay(failures)
		if failures%summaryEvery == 0 {
			m.log.Info("still retrying sensor",
				slog.Duration("wait", delay),
				slog.Int("consecutive_failures", failures),
			)
		}
		return delay, storage.Failed
	}

	outcome := m.persist(ctx, reading)
	m.recordSuccess(reading, outcome, now)
	m.cleanup(ctx, now)

	return m.policy.Delay(0), outcome
}

func (m *Monitor) read(ctx context.Context, now time.Time) (model.LuxReading, error) {
	frame, err := m.reader.ReadFrame(ctx)
	if err != nil {
		return model.LuxReading{}, err
	}

	lux := opt4001.Decode(frame)
	m.log.Debug("read lux value",
		slog.String("frame", frame.String()),
		slog.Float64("lux", round2(lux)),
	)

	return model.NewLuxReading(now, lux)
}

func (m *Monitor) persist(ctx context.Context, reading model.LuxReading) storage.Outcome {
	outcome, err := m.store.Append(ctx, reading)

	switch outcome {
	case storage.Inserted:
		m.publish(reading)
	case storage.Duplicate:
		m.log.Warn("duplicate reading, skipping",
			slog.Int64("timestamp", reading.Timestamp),
			slog.Float64("lux", round2(reading.Lux)),
		)
	default:
		if err == nil {
			err = errors.New("store reported failure")
		}
		if ctx.Err() != nil {
			m.log.Info("reading not stored, monitoring is stopping",
				slog.Int64("timestamp", reading.Timestamp),
				sl.Err(err),
			)
			return outcome
		}
		m.log.Error("failed to store reading",
			slog.Float64("lux", round2(reading.Lux)),
			sl.Err(err),
		)
	}

	return outcome
}

func (m *Monitor) publish(reading model.LuxReading) {
	for _, out := range m.outputs {
		if err := out.Publish(reading); err != nil {
			m.log.Warn("failed to publish reading",
				slog.String("output", out.Name()),
				sl.Err(err),
			)
		}
	}
}

func (m *Monitor) recordFailure(err error) int {
	m.mu.Lock()
	m.state.ConsecutiveFailures++
	m.state.Failing = true
	failures := m.state.ConsecutiveFailures
	m.mu.Unlock()

	attrs := []any{
		slog.Int("failure", failures),
		slog.String("kind", failureKind(err)),
		sl.Err(err),
	}

	if failures <= loudFailures {
		m.log.Error("failed to read lux value from sensor", attrs...)
		if failures == 1 {
			m.log.Error(troubleshootingHint)
		}
	} else {
		m.log.Debug("failed to read lux value from sensor", attrs...)
	}

	return failures
}

func (m *Monitor) recordSuccess(reading model.LuxReading, outcome storage.Outcome, now time.Time) {
	m.mu.Lock()
	prev := m.state
	m.state = State{LastSuccess: now}
	m.mu.Unlock()

	if prev.Failing {
		m.log.Info("sensor recovered",
			slog.Float64("lux", round2(reading.Lux)),
			slog.Int("after_failures", prev.ConsecutiveFailures),
			slog.String("store", outcome.String()),
		)
		return
	}

	if outcome == storage.Inserted {
		m.log.Info("recorded lux reading", slog.Float64("lux", round2(reading.Lux)))
	}
}

func (m *Monitor) cleanup(ctx context.Context, now time.Time) {
	if m.retention <= 0 {
		return
	}
	cleaner, ok := m.store.(Cleaner)
	if !ok {
		return
	}
	if !m.lastCleanup.IsZero() && now.Sub(m.lastCleanup) < cleanupEvery {
		return
	}
	m.lastCleanup = now

	if err := cleaner.Cleanup(ctx, now.Add(-m.retention)); err != nil {
		m.log.Error("failed to delete old readings", sl.Err(err))
	}
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, opt4001.ErrFrameLength):
		return "decode"
	case sensor.IsBusError(err):
		return "bus"
	default:
		return "unknown"
	}
}

// round2 is for log output only; stored values are never rounded.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// RunMonitor builds a monitor with the given base interval and runs it.
func RunMonitor(ctx context.Context, log *slog.Logger, reader sensor.Reader, store storage.Store, interval time.Duration) error {
	p := DefaultPolicy()
	p.Interval = interval
	p.ShortBackoff = max(p.ShortBackoff, interval)
	p.LongBackoff = max(p.LongBackoff, p.ShortBackoff)
	return New(log, reader, store, WithPolicy(p)).Run(ctx)
}

func ReadOnce(ctx context.Context, log *slog.Logger, reader sensor.Reader, store storage.Store) bool {
	return New(log, reader, store).ReadOnce(ctx)
}

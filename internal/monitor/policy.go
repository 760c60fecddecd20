package monitor

import (
	"context"
	"time"
)

const (
	DefaultInterval     = 60 * time.Second
	DefaultShortBackoff = 300 * time.Second
	DefaultLongBackoff  = 1800 * time.Second

	shortBackoffAfter = 3
	longBackoffAfter  = 10
)

// Policy maps the consecutive failure count to the wait before the next read.
type Policy struct {
	Interval     time.Duration
	ShortBackoff time.Duration
	LongBackoff  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		Interval:     DefaultInterval,
		ShortBackoff: DefaultShortBackoff,
		LongBackoff:  DefaultLongBackoff,
	}
}

func (p Policy) Delay(failures int) time.Duration {
	switch {
	case failures >= longBackoffAfter:
		return p.LongBackoff
	case failures >= shortBackoffAfter:
		return p.ShortBackoff
	default:
		return p.Interval
	}
}

type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done, returning ctx.Err() in the
	// latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

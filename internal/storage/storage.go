package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/speedwagon-io/ambilight/internal/model"
)

var ErrNotFound = errors.New("reading not found")

// Outcome of an append. A duplicate timestamp is not an error.
type Outcome int

const (
	Failed Outcome = iota
	Inserted
	Duplicate
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	default:
		return "failed"
	}
}

type Store interface {
	// Append returns (Duplicate, nil) when a reading with the same timestamp
	// exists and (Failed, *StoreError) on any other failure.
	Append(ctx context.Context, reading model.LuxReading) (Outcome, error)
	Close() error
}

type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

package output

import "github.com/speedwagon-io/ambilight/internal/model"

// Output receives every reading that was newly inserted into the store.
type Output interface {
	Name() string
	Publish(reading model.LuxReading) error
	Close() error
}

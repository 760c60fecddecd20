package model

import (
	"encoding/json"
	"errors"
	"time"
)

var ErrNegativeLux = errors.New("lux value cannot be negative")

// LuxReading is one decoded sensor sample. Timestamp is whole seconds since
// the Unix epoch, UTC.
type LuxReading struct {
	Timestamp int64   `json:"timestamp"`
	Lux       float64 `json:"lux"`
}

func NewLuxReading(at time.Time, lux float64) (LuxReading, error) {
	if lux < 0 {
		return LuxReading{}, ErrNegativeLux
	}
	return LuxReading{
		Timestamp: at.UTC().Unix(),
		Lux:       lux,
	}, nil
}

func (r LuxReading) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

func (r LuxReading) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

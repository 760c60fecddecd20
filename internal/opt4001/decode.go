// Package opt4001 decodes the result register of the TI OPT4001 ambient
// light sensor.
//
// The register is read as two 16-bit words:
//
//	word1: [exponent:4][mantissa_msb:12]
//	word2: [mantissa_lsb:8][counter:4][crc:4]
//
// and lux = (mantissa << exponent) * LuxScale, mantissa being 20 bits wide.
package opt4001

import (
	"errors"
	"fmt"
	"math"
)

const (
	FrameSize = 4

	// LuxScale is the calibration constant of the OPT4001 (SOT-5X3 package).
	LuxScale = 0.0004375

	maxMantissa = 1<<20 - 1
	maxExponent = 15
)

var ErrFrameLength = errors.New("invalid frame length")

// Frame is the result register as read from the device, MSB first.
type Frame [FrameSize]byte

type Fields struct {
	Exponent uint8
	Mantissa uint32
	Counter  uint8
	CRC      uint8
}

func Parse(f Frame) Fields {
	word1 := uint16(f[0])<<8 | uint16(f[1])
	word2 := uint16(f[2])<<8 | uint16(f[3])

	mantissaMSB := uint32(word1 & 0x0FFF)
	mantissaLSB := uint32(word2 >> 8)

	return Fields{
		Exponent: uint8(word1 >> 12),
		Mantissa: mantissaMSB<<8 | mantissaLSB,
		Counter:  uint8(word2>>4) & 0x0F,
		CRC:      uint8(word2) & 0x0F,
	}
}

// Lux shifts in 64 bits before converting: exponent 15 on a 20-bit mantissa
// needs 35 bits.
func (f Fields) Lux() float64 {
	return float64(uint64(f.Mantissa)<<f.Exponent) * LuxScale
}

func Decode(f Frame) float64 {
	return Parse(f).Lux()
}

func DecodeBytes(b []byte) (float64, error) {
	f, err := FrameFromBytes(b)
	if err != nil {
		return 0, err
	}
	return Decode(f), nil
}

func FrameFromBytes(b []byte) (Frame, error) {
	var f Frame
	if len(b) != FrameSize {
		return f, fmt.Errorf("%w: got %d bytes, want %d", ErrFrameLength, len(b), FrameSize)
	}
	copy(f[:], b)
	return f, nil
}

func (f Frame) String() string {
	return fmt.Sprintf("0x%02x 0x%02x 0x%02x 0x%02x", f[0], f[1], f[2], f[3])
}

// Encode is the inverse of Decode up to mantissa rounding. It picks the
// smallest exponent that fits the mantissa in 20 bits and leaves the CRC
// nibble zero.
func Encode(lux float64, counter uint8) Frame {
	if lux < 0 || math.IsNaN(lux) {
		lux = 0
	}

	m := lux / LuxScale
	var exp uint16
	for m > maxMantissa && exp < maxExponent {
		m /= 2
		exp++
	}

	mantissa := uint32(math.Round(m))
	if mantissa > maxMantissa {
		mantissa = maxMantissa
	}

	word1 := exp<<12 | uint16(mantissa>>8)
	word2 := uint16(mantissa&0xFF)<<8 | uint16(counter&0x0F)<<4

	return Frame{byte(word1 >> 8), byte(word1), byte(word2 >> 8), byte(word2)}
}

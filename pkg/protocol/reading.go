package protocol

import (
	"encoding/binary"
	"math"
)

const (
	// Precision is the number of decimal places kept for physical values.
	Precision = 10

	accelRange = 16   // g
	gyroRange  = 2000 // deg/s
	fullScale  = 32768
)

// Reading is one decoded motion sample.
type Reading struct {
	// Timestamp is the sensor tick counter.
	Timestamp int64
	AccX      float64
	AccY      float64
	AccZ      float64
	GyroX     float64
	GyroY     float64
	GyroZ     float64
}

// SignExtend16 reinterprets the low 16 bits of an unsigned value as two's complement. Values at or
// above 2^15 are reduced by 2^16; larger inputs are reduced the same way and are not masked.
func SignExtend16(v uint32) int64 {
	if v >= 1<<15 {
		return int64(v) - 1<<16
	}
	return int64(v)
}

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func scale(raw uint16, fullRange float64) float64 {
	return Round(float64(SignExtend16(uint32(raw)))/fullScale*fullRange, Precision)
}

// Decoder converts frames to readings.
type Decoder struct {
	// UnsignedTicks treats the timestamp field as an unsigned 32-bit counter. When false the
	// field is reduced with SignExtend16, which is how the sensor's vendor tooling reads it.
	UnsignedTicks bool
}

// Decode returns the reading carried by f. The boolean result is false for frames that are not
// motion frames; those are valid but carry nothing to record.
func (d Decoder) Decode(f *Frame) (Reading, bool) {
	if f.Type() != FrameTypeMotion {
		return Reading{}, false
	}
	field := func(i int) uint16 {
		return binary.LittleEndian.Uint16(f[2+2*i:])
	}
	ticks := binary.LittleEndian.Uint32(f[14:18])
	r := Reading{
		AccX:  scale(field(0), accelRange),
		AccY:  scale(field(1), accelRange),
		AccZ:  scale(field(2), accelRange),
		GyroX: scale(field(3), gyroRange),
		GyroY: scale(field(4), gyroRange),
		GyroZ: scale(field(5), gyroRange),
	}
	if d.UnsignedTicks {
		r.Timestamp = int64(ticks)
	} else {
		r.Timestamp = SignExtend16(ticks)
	}
	return r, true
}

// Decode decodes f with the default Decoder.
func Decode(f *Frame) (Reading, bool) {
	return Decoder{}.Decode(f)
}

// Package heart decodes the standard Bluetooth heart rate (180d) and
// battery (180f) characteristic payloads.
package heart

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// ErrShortPayload is returned when a notification is too short for its declared layout.
var ErrShortPayload = errors.New("short payload")

// Measurement flags, Heart Rate Service 1.0, 3.1.1.1.
const (
	flagUint16Format   = 0x01
	flagContact        = 0x02
	flagContactSupport = 0x04
	flagEnergy         = 0x08
	flagRR             = 0x10
)

// Rate is a heart rate measurement.
type Rate struct {
	BPM              uint16
	RR               []time.Duration
	Energy           int // kJ, -1 when absent
	Contact          bool
	ContactSupported bool
}

// ParseRate decodes a heart rate measurement notification. Only a payload too
// short for the value itself is an error; truncated energy or RR fields are
// left unset.
func ParseRate(data []byte) (Rate, error) {
	if len(data) < 2 {
		return Rate{}, fmt.Errorf("heart rate: %w: %d bytes", ErrShortPayload, len(data))
	}
	flags := data[0]
	r := Rate{
		Energy:           -1,
		Contact:          flags&(flagContact|flagContactSupport) == flagContact|flagContactSupport,
		ContactSupported: flags&flagContactSupport != 0,
	}

	offset := 1
	if flags&flagUint16Format != 0 {
		if len(data) < offset+2 {
			return Rate{}, fmt.Errorf("heart rate: %w: 16-bit value", ErrShortPayload)
		}
		r.BPM = binary.LittleEndian.Uint16(data[offset:])
		offset += 2
	} else {
		r.BPM = uint16(data[offset])
		offset++
	}

	// Optional fields cut short leave the decoded value intact.
	if flags&flagEnergy != 0 {
		if len(data) < offset+2 {
			return r, nil
		}
		r.Energy = int(binary.LittleEndian.Uint16(data[offset:]))
		offset += 2
	}

	if flags&flagRR != 0 {
		rr := data[offset:]
		r.RR = make([]time.Duration, 0, len(rr)/2)
		for i := 0; i+1 < len(rr); i += 2 {
			r.RR = append(r.RR, time.Duration(binary.LittleEndian.Uint16(rr[i:]))*time.Second/1024)
		}
	}
	return r, nil
}

// ParseBattery decodes a battery level read or notification, in percent.
func ParseBattery(data []byte) (uint8, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("battery level: %w", ErrShortPayload)
	}
	return data[0], nil
}

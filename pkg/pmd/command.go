package pmd

import "encoding/binary"

const (
	// DefaultECGSampleRate is the ECG sample rate requested by default, in Hz.
	DefaultECGSampleRate = 130

	// DefaultECGResolution is the ECG resolution requested by default, in bits.
	DefaultECGResolution = 14

	startCommandSize = 10
)

// StartCommand requests a measurement stream with a sample rate and a resolution setting.
//
// The encoded layout is
//
//	[MeasureStart, measure, SampleRateSetting, 1, rateLo, rateHi, ResolutionSetting, 1, resLo, resHi]
//
// The setting values are opaque to this package; they are passed through as configured.
type StartCommand struct {
	Measure    MeasureType
	SampleRate uint16
	Resolution uint16
}

// DefaultStartCommand returns the ECG start command at 130 Hz with 14-bit resolution.
func DefaultStartCommand() StartCommand {
	return StartCommand{
		Measure:    ECGType,
		SampleRate: DefaultECGSampleRate,
		Resolution: DefaultECGResolution,
	}
}

// MarshalBinary encodes the command for the control point.
func (c StartCommand) MarshalBinary() ([]byte, error) {
	msg := make([]byte, startCommandSize)
	msg[0] = byte(MeasureStart)
	msg[1] = byte(c.Measure)
	putSetting(msg[2:6], SampleRateSetting, c.SampleRate)
	putSetting(msg[6:10], ResolutionSetting, c.Resolution)
	return msg, nil
}

// putSetting writes a single-valued uint16 setting entry: type, count, value (little-endian).
func putSetting(dst []byte, typ SettingType, val uint16) {
	dst[0] = byte(typ)
	dst[1] = 1
	binary.LittleEndian.PutUint16(dst[2:], val)
}

// StopCommand returns the control point command stopping the measurement.
func StopCommand(m MeasureType) []byte {
	return []byte{byte(MeasureStop), byte(m)}
}

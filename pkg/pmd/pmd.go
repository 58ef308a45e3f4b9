// Package pmd implements the client side of the Polar Measurement Data
// (PMD) streaming protocol: control point commands, ECG frame decoding and
// the start/stop handshake over the PMD control characteristic.
//
// The PMD service exposes two characteristics. The control point accepts
// commands and acknowledges them with notifications; the data characteristic
// pushes measurement frames once a measurement has been started.
package pmd

import (
	"fmt"
	"strings"

	"github.com/srg/pmdrelay/internal/bledb"
)

// Service and characteristic identifiers, in normalized form.
const (
	ServiceUUID = bledb.PMDService
	ControlUUID = bledb.PMDControl
	DataUUID    = bledb.PMDData
)

// Command is a PMD control point command.
type Command uint8

const (
	MeasureSettings Command = 1
	MeasureStart    Command = 2
	MeasureStop     Command = 3
)

type (
	// MeasureType is a measurement stream data type.
	MeasureType uint8
	// FrameType is the sub-type of a MeasureType frame.
	FrameType uint8
)

// Measurement and frame types known to this package. Only ECG frame type 0 is decoded.
const (
	ECGType       MeasureType = 0
	PPGType       MeasureType = 1
	AccType       MeasureType = 2
	PPIType       MeasureType = 3
	GyroType      MeasureType = 5
	MagType       MeasureType = 6
	ECGFrameType0 FrameType   = 0

	// ECGSampleStride is the size in bytes of one ECG frame type 0 sample.
	ECGSampleStride = 3
)

func (m MeasureType) String() string {
	switch m {
	case ECGType:
		return "ecg"
	case PPGType:
		return "ppg"
	case AccType:
		return "acc"
	case PPIType:
		return "ppi"
	case GyroType:
		return "gyro"
	case MagType:
		return "magnetometer"
	default:
		return fmt.Sprintf("type(%d)", uint8(m))
	}
}

// Frame offsets.
const (
	measureTypeOffset = 0
	timestampOffset   = 1
	frameTypeOffset   = 9
	dataOffset        = 10
)

// SettingType specifies PMD measurement settings.
type SettingType uint8

const (
	SampleRateSetting SettingType = 0
	ResolutionSetting SettingType = 1
)

// Support is the flag set of measurement types reported by the control point.
type Support byte

const (
	SupportECG  Support = 1 << 0
	SupportPPG  Support = 1 << 1
	SupportAcc  Support = 1 << 2
	SupportPPI  Support = 1 << 3
	SupportGyro Support = 1 << 5
	SupportMag  Support = 1 << 6
)

var supportNames = []struct {
	flag Support
	name string
}{
	{SupportECG, "ECG"},
	{SupportPPG, "PPG"},
	{SupportAcc, "Acc"},
	{SupportPPI, "PPI"},
	{SupportGyro, "Gyro"},
	{SupportMag, "Mag"},
}

// Features is the feature read-out of the PMD control point.
// It is informational only.
type Features [2]byte

// ParseFeatures extracts the features from a control point read.
// Short reads yield zero features.
func ParseFeatures(b []byte) Features {
	var f Features
	copy(f[:], b)
	return f
}

func (f Features) String() string {
	if f[0] != 0x0f {
		return fmt.Sprintf("%#x", f[:])
	}
	var names []string
	for _, s := range supportNames {
		if Support(f[1])&s.flag != 0 {
			names = append(names, s.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

// Supports reports whether the feature read-out lists the measurement.
func (f Features) Supports(s Support) bool {
	return f[0] == 0x0f && Support(f[1])&s != 0
}

package pmd

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is returned when a payload cannot be interpreted under the supported layout.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrUnsupportedFrame is returned for frames that are recognized but not decoded:
	// non-ECG measurement types and ECG frame types other than 0. It is not a failure.
	ErrUnsupportedFrame = errors.New("unsupported frame")
)

// Frame is one decoded PMD data notification.
type Frame struct {
	Timestamp uint64 // device clock ticks
	Measure   MeasureType
	Type      FrameType
	Samples   []int32 // in encoded order
}

// Decode translates a raw PMD data payload into a Frame.
//
// Non-ECG payloads and ECG frame types other than 0 return ErrUnsupportedFrame with
// whatever header fields could be read and no samples.
func Decode(data []byte) (Frame, error) {
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: empty payload", ErrMalformedFrame)
	}

	measure := MeasureType(data[measureTypeOffset])
	if measure != ECGType {
		return Frame{Measure: measure}, fmt.Errorf("%w: measurement type %v", ErrUnsupportedFrame, measure)
	}

	if len(data) < dataOffset {
		return Frame{Measure: measure}, fmt.Errorf("%w: header too short: %d bytes", ErrMalformedFrame, len(data))
	}

	f := Frame{
		Timestamp: binary.LittleEndian.Uint64(data[timestampOffset:frameTypeOffset]),
		Measure:   measure,
		Type:      FrameType(data[frameTypeOffset]),
	}
	if f.Type != ECGFrameType0 {
		return f, fmt.Errorf("%w: ecg frame type %d", ErrUnsupportedFrame, f.Type)
	}

	trace := data[dataOffset:]
	if len(trace)%ECGSampleStride != 0 {
		return f, fmt.Errorf("%w: %d sample bytes is not a multiple of %d", ErrMalformedFrame, len(trace), ECGSampleStride)
	}

	f.Samples = make([]int32, 0, len(trace)/ECGSampleStride)
	for i := 0; i < len(trace); i += ECGSampleStride {
		f.Samples = append(f.Samples, leInt24(trace[i:i+ECGSampleStride]))
	}
	return f, nil
}

func leInt24(b []byte) int32 {
	_ = b[2] // bounds check hint to compiler; see golang.org/issue/14808
	return int32(b[0]) | int32(b[1])<<8 | int32(int8(b[2]))<<16
}

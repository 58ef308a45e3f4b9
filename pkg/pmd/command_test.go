package pmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCommand_Default(t *testing.T) {
	b, err := DefaultStartCommand().MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x01, 0x82, 0x00, 0x01, 0x01, 0x0e, 0x00}, b)
}

func TestStartCommand_Settings(t *testing.T) {
	b, err := StartCommand{Measure: ECGType, SampleRate: 500, Resolution: 16}.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x01, 0xf4, 0x01, 0x01, 0x01, 0x10, 0x00}, b)
}

func TestStopCommand(t *testing.T) {
	assert.Equal(t, []byte{0x03, 0x00}, StopCommand(ECGType))
}

func TestFeatures(t *testing.T) {
	tests := []struct {
		raw  []byte
		want string
		ecg  bool
	}{
		{[]byte{0x0f, 0x01}, "ECG", true},
		{[]byte{0x0f, 0x05}, "ECG|Acc", true},
		{[]byte{0x0f, 0x00}, "none", false},
		{[]byte{0x0f, 0x04, 0x00, 0x00}, "Acc", false},
		{[]byte{0x01, 0x01}, "0x0101", false},
		{nil, "0x0000", false},
	}
	for _, tt := range tests {
		f := ParseFeatures(tt.raw)
		assert.Equal(t, tt.want, f.String(), "% x", tt.raw)
		assert.Equal(t, tt.ecg, f.Supports(SupportECG), "% x", tt.raw)
	}
}

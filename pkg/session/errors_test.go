package session

import (
	"errors"
	"testing"

	"github.com/srg/pmdrelay/internal/bledb"
	"github.com/srg/pmdrelay/internal/device"
	"github.com/stretchr/testify/assert"
)

func TestTransportError(t *testing.T) {
	tests := []struct {
		name string
		err  *TransportError
		want string
	}{
		{
			name: "connect has no characteristic",
			err:  &TransportError{Op: "connect", Err: device.ErrTimeout},
			want: "connect: timeout",
		},
		{
			name: "known characteristic is named",
			err:  &TransportError{Op: "write", UUID: bledb.PMDControl, Err: device.ErrNotConnected},
			want: "write PMD Control Point: not_connected",
		},
		{
			name: "unknown characteristic keeps the uuid",
			err:  &TransportError{Op: "read", UUID: "2a38", Err: errors.New("boom")},
			want: "read 2a38: boom",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestTransportError_Unwrap(t *testing.T) {
	err := error(&TransportError{Op: "read", UUID: bledb.BatteryLevel, Err: device.ErrNotConnected})

	assert.ErrorIs(t, err, device.ErrNotConnected)
	assert.True(t, device.IsConnectionState(err, device.NotConnected))

	var te *TransportError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, "read", te.Op)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "stream_started", StreamStarted.String())
	assert.Equal(t, "streaming", Streaming.String())
	assert.Equal(t, "stopping", Stopping.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Options{Address: "AA:BB:CC:DD:EE:FF"})
	assert.NoError(t, err)

	assert.NotEmpty(t, s.ID())
	assert.Equal(t, Disconnected, s.State())
	assert.Equal(t, DefaultTickInterval, s.opts.TickInterval)
	assert.Equal(t, uint16(130), s.opts.StartCommand.SampleRate)
	assert.Equal(t, -1, s.HeartRate())
	assert.Equal(t, -1, s.Battery())
	assert.Equal(t, Identity{}, s.Identity())
}

func TestTrimString(t *testing.T) {
	assert.Equal(t, "H10", trimString([]byte("H10\x00\x00")))
	assert.Equal(t, "Polar Electro Oy", trimString([]byte(" Polar Electro Oy ")))
	assert.Equal(t, "", trimString(nil))
}

package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/srg/pmdrelay/internal/bledb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	tests := []struct {
		err  *NotFoundError
		want string
	}{
		{&NotFoundError{Resource: "service"}, "service not found"},
		{&NotFoundError{Resource: "service", UUIDs: []string{"180d"}}, `service "180d" not found`},
		{&NotFoundError{Resource: "characteristic", UUIDs: []string{"180d", "2a37"}}, `characteristic "2a37" not found in service "180d"`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.err.Error())
	}
}

func TestConnectionError_Is(t *testing.T) {
	wrapped := fmt.Errorf("dial: %w", &ConnectionError{State: NotConnected, Msg: "link lost"})

	assert.ErrorIs(t, wrapped, ErrNotConnected)
	assert.NotErrorIs(t, wrapped, ErrAlreadyConnected)
	assert.True(t, IsConnectionState(wrapped, NotConnected))
	assert.False(t, IsConnectionState(errors.New("other"), NotConnected))
	assert.Equal(t, "not_connected: link lost", errors.Unwrap(wrapped).Error())
	assert.Equal(t, "bluetooth_off", ErrBluetoothOff.Error())
}

func TestValidateUUID(t *testing.T) {
	got, err := ValidateUUID("0x2A37", "FB005C81-02E7-F387-1CAD-8ACD2D8DF0C8")
	require.NoError(t, err)
	assert.Equal(t, []string{bledb.HeartRateMeasurement, bledb.PMDControl}, got)

	_, err = ValidateUUID()
	assert.Error(t, err)
	_, err = ValidateUUID("")
	assert.Error(t, err)
	_, err = ValidateUUID("not-a-uuid")
	assert.Error(t, err)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Heart Rate Measurement", DisplayName(bledb.HeartRateMeasurement))
	assert.Equal(t, "Battery Service", DisplayName(bledb.BatteryService))
	assert.Equal(t, "abcd", DisplayName("abcd"))
}

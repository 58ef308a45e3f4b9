package heart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want Rate
	}{
		{
			name: "8-bit value",
			data: []byte{0x00, 72},
			want: Rate{BPM: 72, Energy: -1},
		},
		{
			name: "8-bit value with contact",
			data: []byte{0x06, 61},
			want: Rate{BPM: 61, Energy: -1, Contact: true, ContactSupported: true},
		},
		{
			name: "contact supported but lost",
			data: []byte{0x04, 0},
			want: Rate{BPM: 0, Energy: -1, ContactSupported: true},
		},
		{
			name: "16-bit value",
			data: []byte{0x01, 0x2c, 0x01},
			want: Rate{BPM: 300, Energy: -1},
		},
		{
			name: "energy and rr intervals",
			data: []byte{0x18, 80, 0x10, 0x00, 0x00, 0x04, 0x00, 0x02},
			want: Rate{BPM: 80, Energy: 16, RR: []time.Duration{time.Second, 500 * time.Millisecond}},
		},
		{
			name: "truncated energy keeps the value",
			data: []byte{0x18, 80, 0x10},
			want: Rate{BPM: 80, Energy: -1},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRate(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRate_Short(t *testing.T) {
	for _, data := range [][]byte{nil, {0x00}, {0x01, 0x50}} {
		_, err := ParseRate(data)
		assert.ErrorIs(t, err, ErrShortPayload, "% x", data)
	}
}

func TestParseBattery(t *testing.T) {
	level, err := ParseBattery([]byte{87})
	require.NoError(t, err)
	assert.Equal(t, uint8(87), level)

	_, err = ParseBattery(nil)
	assert.ErrorIs(t, err, ErrShortPayload)
}

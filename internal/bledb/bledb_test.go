package bledb

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestNormalizeUUID verifies that NormalizeUUID correctly handles various UUID formats
func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "16-bit short form",
			input:    "180d",
			expected: "180d",
		},
		{
			name:     "16-bit with 0x prefix",
			input:    "0x2A19",
			expected: "2a19",
		},
		{
			name:     "Full Bluetooth SIG UUID with dashes",
			input:    "00002a24-0000-1000-8000-00805f9b34fb",
			expected: "2a24",
		},
		{
			name:     "Full Bluetooth SIG UUID without dashes",
			input:    "0000180d00001000800000805f9b34fb",
			expected: "180d",
		},
		{
			name:     "PMD service (not SIG base)",
			input:    "FB005C80-02E7-F387-1CAD-8ACD2D8DF0C8",
			expected: PMDService,
		},
		{
			name:     "UUID with braces",
			input:    "{FB005C82-02E7-F387-1CAD-8ACD2D8DF0C8}",
			expected: PMDData,
		},
		{
			name:     "invalid characters",
			input:    "zz05",
			expected: "",
		},
		{
			name:     "invalid length",
			input:    "12345",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestLookup(t *testing.T) {
	assert.Equal(t, "Heart Rate", LookupService("0000180d-0000-1000-8000-00805f9b34fb"))
	assert.Equal(t, "Polar Measurement Data", LookupService("FB005C80-02E7-F387-1CAD-8ACD2D8DF0C8"))
	assert.Equal(t, "PMD Control Point", LookupCharacteristic("fb005c81-02e7-f387-1cad-8acd2d8df0c8"))
	assert.Equal(t, "Battery Level", LookupCharacteristic("2A19"))
	assert.Empty(t, LookupCharacteristic("ffff"))
}

func TestNormalizeUUIDs(t *testing.T) {
	assert.Equal(t, []string{"2a37", "2a19"}, NormalizeUUIDs([]string{"2A37", "0x2a19"}))
}

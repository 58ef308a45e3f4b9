//go:build test

package testutils

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/pmdrelay/internal/bledb"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// CreateMockPeripheralDevice returns an empty peripheral builder.
func CreateMockPeripheralDevice() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder()
}

// CreateMockPeripheralDeviceFromJSON returns a peripheral builder filled from a JSON profile.
func CreateMockPeripheralDeviceFromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().FromJSON(jsonStrFmt, args...)
}

// CreatePolarSensor returns a builder for a chest strap exposing device information
// ("H10", "Polar Electro Oy"), battery (87%), heart rate and PMD control/data.
func CreatePolarSensor() *PeripheralDeviceBuilder {
	return CreateMockPeripheralDeviceFromJSON(`
	{
		"services": [
			{
				"uuid": %[1]q,
				"characteristics": [
					{ "uuid": %[2]q, "properties": "read", "value": [72, 49, 48, 0] },
					{ "uuid": %[3]q, "properties": "read", "value": [80, 111, 108, 97, 114, 32, 69, 108, 101, 99, 116, 114, 111, 32, 79, 121] }
				]
			},
			{
				"uuid": %[4]q,
				"characteristics": [
					{ "uuid": %[5]q, "properties": "read,notify", "value": [87] }
				]
			},
			{
				"uuid": %[6]q,
				"characteristics": [
					{ "uuid": %[7]q, "properties": "notify" }
				]
			},
			{
				"uuid": %[8]q,
				"characteristics": [
					{ "uuid": %[9]q, "properties": "read,write,indicate", "value": [15, 5, 0] },
					{ "uuid": %[10]q, "properties": "notify" }
				]
			}
		]
	}`,
		bledb.DeviceInformationService, bledb.ModelNumberString, bledb.ManufacturerNameString,
		bledb.BatteryService, bledb.BatteryLevel,
		bledb.HeartRateService, bledb.HeartRateMeasurement,
		bledb.PMDService, bledb.PMDControl, bledb.PMDData,
	)
}

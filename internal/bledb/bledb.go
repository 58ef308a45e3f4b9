// Package bledb holds the static GATT identifier table used by pmdrelay and
// the UUID normalization shared by every package that looks characteristics up.
//
// The table is compiled in; nothing is discovered or downloaded at runtime.
package bledb

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) without dashes.
const sigBaseSuffix = "00001000800000805f9b34fb"

// Standard services.
const (
	DeviceInformationService = "180a"
	BatteryService           = "180f"
	HeartRateService         = "180d"
)

// Standard characteristics.
const (
	ModelNumberString      = "2a24"
	ManufacturerNameString = "2a29"
	BatteryLevel           = "2a19"
	HeartRateMeasurement   = "2a37"
)

// Polar Measurement Data service and characteristics.
const (
	PMDService = "fb005c8002e7f3871cad8acd2d8df0c8"
	PMDControl = "fb005c8102e7f3871cad8acd2d8df0c8"
	PMDData    = "fb005c8202e7f3871cad8acd2d8df0c8"
)

var services = map[string]string{
	"1800":                   "Generic Access",
	"1801":                   "Generic Attribute",
	DeviceInformationService: "Device Information",
	BatteryService:           "Battery Service",
	HeartRateService:         "Heart Rate",
	PMDService:               "Polar Measurement Data",
}

var characteristics = map[string]string{
	"2a00":                 "Device Name",
	ModelNumberString:      "Model Number String",
	ManufacturerNameString: "Manufacturer Name String",
	BatteryLevel:           "Battery Level",
	HeartRateMeasurement:   "Heart Rate Measurement",
	PMDControl:             "PMD Control Point",
	PMDData:                "PMD Data",
}

// LookupService returns the known name of a service, or "" if it is not in the table.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)]
}

// LookupCharacteristic returns the known name of a characteristic, or "" if it is not in the table.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)]
}

// NormalizeUUID converts a UUID string to the internal form: lowercase hex, no dashes,
// braces or 0x prefix. UUIDs on the Bluetooth SIG base are shortened to their 16-bit form.
// Returns "" when the input is not a 16, 32 or 128-bit hex UUID.
func NormalizeUUID(uuid string) string {
	s := strings.ToLower(strings.TrimSpace(uuid))
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	s = strings.TrimPrefix(s, "0x")
	s = strings.ReplaceAll(s, "-", "")

	switch len(s) {
	case 4, 8, 32:
	default:
		return ""
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return ""
		}
	}

	if len(s) == 32 && strings.HasPrefix(s, "0000") && strings.HasSuffix(s, sigBaseSuffix) {
		return s[4:8]
	}
	return s
}

// NormalizeUUIDs normalizes a slice of UUID strings to internal format.
func NormalizeUUIDs(uuids []string) []string {
	normalized := make([]string, len(uuids))
	for i, uuid := range uuids {
		normalized[i] = NormalizeUUID(uuid)
	}
	return normalized
}

//go:build test

package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/pmdrelay/internal/bledb"
)

// CharacteristicConfig represents a BLE characteristic configuration for mocking
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig represents a BLE service configuration for mocking
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// DeviceProfileConfig represents the complete device profile for mocking
type DeviceProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// PeripheralDeviceBuilder builds a FakeDevice with a service/characteristic profile
// and optional injected failures.
type PeripheralDeviceBuilder struct {
	address    string
	profile    DeviceProfileConfig
	failures   map[string]error
	connectErr error
}

// NewPeripheralDeviceBuilder creates a new peripheral device builder
func NewPeripheralDeviceBuilder() *PeripheralDeviceBuilder {
	return &PeripheralDeviceBuilder{
		address:  "AA:BB:CC:DD:EE:FF",
		profile:  DeviceProfileConfig{Services: []ServiceConfig{}},
		failures: make(map[string]error),
	}
}

// WithAddress sets the device address
func (b *PeripheralDeviceBuilder) WithAddress(address string) *PeripheralDeviceBuilder {
	b.address = address
	return b
}

// WithService adds a service to the device profile
func (b *PeripheralDeviceBuilder) WithService(uuid string) *PeripheralDeviceBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralDeviceBuilder) WithCharacteristic(uuid, properties string, value []byte) *PeripheralDeviceBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	})
	return b
}

// FromJSON fills the device profile from JSON
func (b *PeripheralDeviceBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)

	var config DeviceProfileConfig
	if err := json.Unmarshal([]byte(jsonStr), &config); err != nil {
		panic(fmt.Sprintf("PeripheralDeviceBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = config
	return b
}

// WithConnectError makes Connect fail with err
func (b *PeripheralDeviceBuilder) WithConnectError(err error) *PeripheralDeviceBuilder {
	b.connectErr = err
	return b
}

// WithFailure makes the given operation ("read", "write", "subscribe", "unsubscribe")
// on the characteristic fail with err. The attempt is still recorded.
func (b *PeripheralDeviceBuilder) WithFailure(op, charUUID string, err error) *PeripheralDeviceBuilder {
	b.failures[failureKey(op, bledb.NormalizeUUID(charUUID))] = err
	return b
}

// Build creates the fake device
func (b *PeripheralDeviceBuilder) Build() *FakeDevice {
	d := &FakeDevice{
		address:    b.address,
		failures:   make(map[string]error, len(b.failures)),
		connectErr: b.connectErr,
	}
	for k, v := range b.failures {
		d.failures[k] = v
	}
	for _, s := range b.profile.Services {
		svc := &fakeService{uuid: bledb.NormalizeUUID(s.UUID)}
		for _, c := range s.Characteristics {
			svc.chars = append(svc.chars, &fakeCharacteristic{
				dev:        d,
				service:    svc.uuid,
				uuid:       bledb.NormalizeUUID(c.UUID),
				properties: c.Properties,
				value:      append([]byte(nil), c.Value...),
			})
		}
		d.services = append(d.services, svc)
	}
	return d
}

func failureKey(op, char string) string {
	return op + " " + char
}

// Package devicefactory constructs the BLE device implementation used by sessions.
package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/pmdrelay/internal/device"
	goble "github.com/srg/pmdrelay/internal/device/go-ble"
)

// Factory creates a device for an address. Sessions take a Factory so tests can substitute fakes.
type Factory func(address string, logger *logrus.Logger) device.Device

// NewDevice creates a new BLE device with the specified address.
// This is the primary constructor for creating device instances.
func NewDevice(address string, logger *logrus.Logger) device.Device {
	return goble.NewBLEDevice(address, logger)
}

var _ Factory = NewDevice

//go:build test

package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// MockBLEPeripheralSuite provides a reusable test suite with a fake BLE peripheral.
//
// Each test gets a fresh FakeDevice built from PeripheralBuilder, which defaults
// to CreatePolarSensor. Tests customize the peripheral in their own SetupTest or
// by calling WithPeripheral before RebuildDevice.
type MockBLEPeripheralSuite struct {
	suite.Suite

	Helper      *TestHelper
	Logger      *logrus.Logger
	TestTimeout time.Duration

	PeripheralBuilder *PeripheralDeviceBuilder
	Device            *FakeDevice
}

// SetupSuite initializes the shared helper and logger.
func (s *MockBLEPeripheralSuite) SetupSuite() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger
	s.TestTimeout = 10 * time.Second

	s.Logger.Debug("Suite setup completed")
}

// SetupTest builds the fake device before each test.
func (s *MockBLEPeripheralSuite) SetupTest() {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = CreatePolarSensor()
	}
	s.Device = s.PeripheralBuilder.Build()

	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest resets the peripheral builder after each test.
func (s *MockBLEPeripheralSuite) TearDownTest() {
	s.PeripheralBuilder = nil
	s.Device = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
func (s *MockBLEPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = CreatePolarSensor()
	}
	return s.PeripheralBuilder
}

// RebuildDevice rebuilds Device from the current PeripheralBuilder.
func (s *MockBLEPeripheralSuite) RebuildDevice() *FakeDevice {
	s.Device = s.WithPeripheral().Build()
	return s.Device
}

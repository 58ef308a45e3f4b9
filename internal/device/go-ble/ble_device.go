package goble

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pmdrelay/internal/device"
)

// DefaultConnectTimeout applies when ConnectOptions leaves the timeout unset.
const DefaultConnectTimeout = 30 * time.Second

// BLEDevice implements the Device interface for a peripheral known by address
type BLEDevice struct {
	address    string
	connection *BLEConnection
	logger     *logrus.Logger
}

// NewBLEDevice creates a BLEDevice with a pre-created connection instance
func NewBLEDevice(address string, logger *logrus.Logger) *BLEDevice {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLEDevice{
		address:    address,
		connection: NewBLEConnection(logger),
		logger:     logger,
	}
}

func (d *BLEDevice) Address() string {
	return d.address
}

// Connect establishes the connection. opts may be nil.
func (d *BLEDevice) Connect(ctx context.Context, opts *device.ConnectOptions) error {
	o := device.ConnectOptions{Address: d.address, ConnectTimeout: DefaultConnectTimeout}
	if opts != nil {
		if opts.ConnectTimeout > 0 {
			o.ConnectTimeout = opts.ConnectTimeout
		}
		if opts.Address != "" {
			o.Address = opts.Address
		}
	}
	return d.connection.Connect(ctx, o.Address, &o)
}

func (d *BLEDevice) Disconnect() error {
	return d.connection.Disconnect()
}

func (d *BLEDevice) IsConnected() bool {
	return d.connection.IsConnected()
}

func (d *BLEDevice) GetConnection() device.Connection {
	return d.connection
}

package goble

import (
	"fmt"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/pmdrelay/internal/bledb"
	"github.com/srg/pmdrelay/internal/device"
)

const (
	// DefaultReadTimeout is the default timeout for characteristic read operations.
	// This prevents indefinite blocking if a device becomes unresponsive during a read.
	DefaultReadTimeout = 5 * time.Second

	// DefaultWriteTimeout is the default timeout for characteristic write operations.
	DefaultWriteTimeout = 5 * time.Second
)

// BLECharacteristic is a discovered characteristic bound to its connection.
type BLECharacteristic struct {
	uuid       string
	knownName  string
	BLEChar    *ble.Characteristic
	connection *BLEConnection
}

func newCharacteristic(c *ble.Characteristic, conn *BLEConnection) *BLECharacteristic {
	rawUUID := c.UUID.String()
	return &BLECharacteristic{
		uuid:       device.NormalizeUUID(rawUUID),
		knownName:  bledb.LookupCharacteristic(rawUUID),
		BLEChar:    c,
		connection: conn,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) KnownName() string {
	return c.knownName
}

// CanNotify reports whether the characteristic supports notifications or indications.
func (c *BLECharacteristic) CanNotify() bool {
	return c.BLEChar != nil && c.BLEChar.Property&(ble.CharNotify|ble.CharIndicate) != 0
}

// indicateOnly reports whether subscriptions must use indications.
func (c *BLECharacteristic) indicateOnly() bool {
	return c.BLEChar.Property&ble.CharNotify == 0 && c.BLEChar.Property&ble.CharIndicate != 0
}

func (c *BLECharacteristic) client() (ble.Client, error) {
	if c.connection == nil {
		return nil, fmt.Errorf("no connection available for characteristic %s", c.uuid)
	}
	if c.BLEChar == nil {
		return nil, fmt.Errorf("characteristic %s not initialized", c.uuid)
	}
	c.connection.connMutex.RLock()
	defer c.connection.connMutex.RUnlock()
	if c.connection.client == nil {
		return nil, fmt.Errorf("characteristic %s: %w", c.uuid, device.ErrNotConnected)
	}
	return c.connection.client, nil
}

// Read reads the current value of the characteristic from the device.
// A non-positive timeout selects DefaultReadTimeout.
func (c *BLECharacteristic) Read(timeout time.Duration) ([]byte, error) {
	client, err := c.client()
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	type readResult struct {
		data []byte
		err  error
	}
	resultCh := make(chan readResult, 1)

	go func() {
		data, err := client.ReadCharacteristic(c.BLEChar)
		resultCh <- readResult{data: data, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, fmt.Errorf("failed to read characteristic %s: %w", c.uuid, NormalizeError(result.err))
		}
		return result.data, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("reading characteristic %s after %v: %w", c.uuid, timeout, device.ErrTimeout)
	}
}

// Write writes data to the characteristic. withResponse selects an acknowledged
// ATT write request. A non-positive timeout selects DefaultWriteTimeout.
func (c *BLECharacteristic) Write(data []byte, withResponse bool, timeout time.Duration) error {
	client, err := c.client()
	if err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}

	c.connection.writeMutex.Lock()
	defer c.connection.writeMutex.Unlock()

	errCh := make(chan error, 1)
	go func() {
		errCh <- client.WriteCharacteristic(c.BLEChar, data, !withResponse)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to write characteristic %s: %w", c.uuid, NormalizeError(err))
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("writing characteristic %s after %v: %w", c.uuid, timeout, device.ErrTimeout)
	}
}

package goble

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pmdrelay/internal/device"
	"github.com/srg/pmdrelay/internal/groutine"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// BLEConnection represents a live BLE connection
type BLEConnection struct {
	client     ble.Client
	logger     *logrus.Logger
	writeMutex sync.Mutex
	connMutex  sync.RWMutex

	services map[string]*BLEService

	// handlers maps "service/characteristic" to the active notification handler.
	// It is read on the transport's notification goroutines without taking connMutex.
	handlers *hashmap.Map[string, device.NotificationHandler]

	ctx    context.Context
	cancel context.CancelCauseFunc
}

func NewBLEConnection(logger *logrus.Logger) *BLEConnection {
	if logger == nil {
		logger = logrus.New()
	}
	return &BLEConnection{
		services: make(map[string]*BLEService),
		handlers: hashmap.New[string, device.NotificationHandler](),
		ctx:      context.Background(),
		logger:   logger,
	}
}

func handlerKey(service, char string) string {
	return service + "/" + char
}

// Connect dials address, discovers the GATT profile and starts watching for link loss.
func (c *BLEConnection) Connect(ctx context.Context, address string, opts *device.ConnectOptions) error {
	c.connMutex.Lock()
	defer c.connMutex.Unlock()

	if strings.TrimSpace(address) == "" {
		c.logger.Error("Connection attempt with empty address")
		return fmt.Errorf("device address is empty")
	}

	if c.client != nil {
		c.logger.WithField("address", address).Warn("Connection attempt while already connected")
		return device.ErrAlreadyConnected
	}

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": opts.ConnectTimeout,
	}).Info("Connecting to BLE device...")

	// Create a BLE device using the factory (allows for mocking in tests)
	dev, err := DeviceFactory()
	if err != nil {
		c.logger.WithField("error", err).Error("Failed to create BLE device")
		return fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	ble.SetDefaultDevice(dev)

	connCtx := ctx
	if opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connCtx, cancel = context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
	}

	c.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := ble.Dial(connCtx, ble.NewAddr(address))
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	c.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to discover profile")
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			c.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	services := make(map[string]*BLEService, len(profile.Services))
	totalChars := 0
	for _, s := range profile.Services {
		svc := newService(s, c)
		services[svc.uuid] = svc
		totalChars += len(svc.Characteristics)
		c.logger.WithFields(logrus.Fields{
			"service_uuid":    svc.uuid,
			"name":            svc.knownName,
			"characteristics": len(svc.Characteristics),
		}).Debug("Found service")
	}

	c.client = client
	c.services = services

	// The link outlives the caller's context: only the disconnect monitor and
	// Disconnect end it. The cause tells subscribers why.
	c.ctx, c.cancel = context.WithCancelCause(context.WithoutCancel(ctx))

	if watched, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		linkCtx, cancel := c.ctx, c.cancel
		groutine.Go(context.Background(), "ble-connection-monitor", func(context.Context) {
			select {
			case <-watched.Disconnected():
				c.logger.Warn("BLE stack reported disconnection, cancelling connection context")
				cancel(device.ErrNotConnected)
			case <-linkCtx.Done():
			}
		})
	} else {
		c.logger.Debug("Client does not support Disconnected() channel")
	}

	c.logger.WithFields(logrus.Fields{
		"address":         address,
		"services":        len(c.services),
		"characteristics": totalChars,
	}).Info("BLE device connected successfully")
	return nil
}

// Disconnect drops local notification handlers and cancels the link.
// Remote unsubscription is the caller's responsibility.
func (c *BLEConnection) Disconnect() error {
	c.connMutex.Lock()
	if c.client == nil {
		c.connMutex.Unlock()
		c.logger.Debug("Disconnect called but already disconnected")
		return nil
	}
	client := c.client
	cancel := c.cancel
	c.client = nil
	c.cancel = nil
	c.connMutex.Unlock()

	c.logger.WithField("handlers", c.handlers.Len()).Info("Disconnecting BLE device...")

	c.handlers.Range(func(key string, _ device.NotificationHandler) bool {
		c.handlers.Del(key)
		return true
	})

	if cancel != nil {
		cancel(nil)
	}

	err := NormalizeError(client.CancelConnection())
	if err != nil {
		c.logger.WithField("error", err).Warn("BLE device disconnected with errors")
	} else {
		c.logger.Info("BLE device disconnected successfully")
	}
	return err
}

func (c *BLEConnection) IsConnected() bool {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.client != nil
}

// ConnectionContext returns the connection context that is cancelled when the connection
// drops or is disconnected.
func (c *BLEConnection) ConnectionContext() context.Context {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()
	return c.ctx
}

// Services returns all discovered services sorted by UUID.
func (c *BLEConnection) Services() []device.Service {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	result := make([]device.Service, 0, len(c.services))
	for _, v := range c.services {
		result = append(result, v)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UUID() < result[j].UUID()
	})
	return result
}

// GetCharacteristic retrieves a characteristic by service and characteristic UUID.
// Returns a NotFoundError if the service or characteristic is not found.
func (c *BLEConnection) GetCharacteristic(service, uuid string) (device.Characteristic, error) {
	char, err := c.characteristic(service, uuid)
	if err != nil {
		return nil, err
	}
	return char, nil
}

func (c *BLEConnection) characteristic(service, uuid string) (*BLECharacteristic, error) {
	c.connMutex.RLock()
	defer c.connMutex.RUnlock()

	svc, ok := c.services[device.NormalizeUUID(service)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	char, ok := svc.Characteristics[device.NormalizeUUID(uuid)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return char, nil
}

// Subscribe enables notifications (or indications) on a characteristic and routes
// them to handler. A second Subscribe replaces the handler.
func (c *BLEConnection) Subscribe(service, uuid string, handler device.NotificationHandler) error {
	char, err := c.characteristic(service, uuid)
	if err != nil {
		return err
	}
	if !char.CanNotify() {
		return fmt.Errorf("characteristic %s does not support notifications: %w", char.uuid, device.ErrUnsupported)
	}
	client, err := char.client()
	if err != nil {
		return err
	}

	key := handlerKey(device.NormalizeUUID(service), char.uuid)
	c.handlers.Set(key, handler)

	err = NormalizeError(client.Subscribe(char.BLEChar, char.indicateOnly(), func(data []byte) {
		if h, ok := c.handlers.Get(key); ok {
			h(data)
		}
	}))
	if err != nil {
		c.handlers.Del(key)
		c.logger.WithFields(logrus.Fields{
			"serviceUUID": service,
			"charUUID":    char.uuid,
			"error":       err,
		}).Error("Failed to subscribe to characteristic notifications")
		return fmt.Errorf("subscribe %s: %w", char.uuid, err)
	}

	c.logger.WithFields(logrus.Fields{
		"serviceUUID": service,
		"charUUID":    char.uuid,
		"name":        char.knownName,
	}).Debug("Subscribed to characteristic notifications")
	return nil
}

// Unsubscribe silences the local handler, then disables notifications on the device.
func (c *BLEConnection) Unsubscribe(service, uuid string) error {
	char, err := c.characteristic(service, uuid)
	if err != nil {
		return err
	}
	c.handlers.Del(handlerKey(device.NormalizeUUID(service), char.uuid))

	client, err := char.client()
	if err != nil {
		return err
	}
	if err := NormalizeError(client.Unsubscribe(char.BLEChar, char.indicateOnly())); err != nil {
		c.logger.WithFields(logrus.Fields{
			"serviceUUID": service,
			"charUUID":    char.uuid,
			"error":       err,
		}).Error("Failed to unsubscribe from characteristic notifications")
		return fmt.Errorf("unsubscribe %s: %w", char.uuid, err)
	}

	c.logger.WithFields(logrus.Fields{
		"serviceUUID": service,
		"charUUID":    char.uuid,
	}).Debug("Unsubscribed from characteristic notifications")
	return nil
}

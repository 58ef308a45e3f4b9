//go:build test

package testutils

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/srg/pmdrelay/internal/bledb"
	"github.com/srg/pmdrelay/internal/device"
)

// Call is one recorded operation against a FakeDevice.
type Call struct {
	Op      string // connect, read, write, subscribe, unsubscribe, disconnect
	Service string
	Char    string
	Data    []byte
}

// String renders the call as "op" or "op char".
func (c Call) String() string {
	if c.Char == "" {
		return c.Op
	}
	return c.Op + " " + c.Char
}

// FakeDevice is an in-memory device.Device that is also its own device.Connection.
// Every operation is recorded in order; notifications are injected with Notify.
type FakeDevice struct {
	address    string
	services   []*fakeService
	failures   map[string]error
	connectErr error

	mu        sync.Mutex
	calls     []Call
	handlers  map[string]device.NotificationHandler
	connected bool
	ctx       context.Context
	cancel    context.CancelCauseFunc
	onCall    func(Call)
}

var (
	_ device.Device     = (*FakeDevice)(nil)
	_ device.Connection = (*FakeDevice)(nil)
)

// OnCall registers a hook invoked after each recorded call.
func (d *FakeDevice) OnCall(fn func(Call)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onCall = fn
}

func (d *FakeDevice) record(c Call) {
	d.mu.Lock()
	d.calls = append(d.calls, c)
	hook := d.onCall
	d.mu.Unlock()
	if hook != nil {
		hook(c)
	}
}

func (d *FakeDevice) failure(op, char string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures[failureKey(op, char)]
}

// Calls returns a copy of the recorded calls.
func (d *FakeDevice) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

// Ops returns the recorded calls rendered with Call.String.
func (d *FakeDevice) Ops() []string {
	calls := d.Calls()
	out := make([]string, len(calls))
	for i, c := range calls {
		out[i] = c.String()
	}
	return out
}

// OpsWithPrefix returns the rendered calls whose op is one of ops.
func (d *FakeDevice) OpsWithPrefix(ops ...string) []string {
	var out []string
	for _, s := range d.Ops() {
		for _, op := range ops {
			if s == op || strings.HasPrefix(s, op+" ") {
				out = append(out, s)
				break
			}
		}
	}
	return out
}

// Writes returns the payloads written to a characteristic, in order.
func (d *FakeDevice) Writes(char string) [][]byte {
	char = bledb.NormalizeUUID(char)
	var out [][]byte
	for _, c := range d.Calls() {
		if c.Op == "write" && c.Char == char {
			out = append(out, c.Data)
		}
	}
	return out
}

// IsSubscribed reports whether a notification handler is registered for char.
func (d *FakeDevice) IsSubscribed(char string) bool {
	char = bledb.NormalizeUUID(char)
	d.mu.Lock()
	defer d.mu.Unlock()
	for k := range d.handlers {
		if strings.HasSuffix(k, "/"+char) {
			return true
		}
	}
	return false
}

// Notify delivers data to the handler subscribed on char, on the calling goroutine.
// It returns false when nothing is subscribed.
func (d *FakeDevice) Notify(char string, data []byte) bool {
	char = bledb.NormalizeUUID(char)
	d.mu.Lock()
	var h device.NotificationHandler
	for k, v := range d.handlers {
		if strings.HasSuffix(k, "/"+char) {
			h = v
			break
		}
	}
	d.mu.Unlock()
	if h == nil {
		return false
	}
	h(append([]byte(nil), data...))
	return true
}

// DropLink simulates the peripheral going away: the connection context is
// cancelled with device.ErrNotConnected.
func (d *FakeDevice) DropLink() {
	d.mu.Lock()
	cancel := d.cancel
	d.connected = false
	d.mu.Unlock()
	if cancel != nil {
		cancel(device.ErrNotConnected)
	}
}

// Address returns the device address.
func (d *FakeDevice) Address() string {
	return d.address
}

// Connect records the attempt and establishes the fake link.
func (d *FakeDevice) Connect(ctx context.Context, _ *device.ConnectOptions) error {
	d.record(Call{Op: "connect"})
	if d.connectErr != nil {
		return d.connectErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.connected {
		return device.ErrAlreadyConnected
	}
	d.ctx, d.cancel = context.WithCancelCause(context.WithoutCancel(ctx))
	d.handlers = make(map[string]device.NotificationHandler)
	d.connected = true
	return nil
}

// Disconnect records the call and tears the fake link down.
func (d *FakeDevice) Disconnect() error {
	d.record(Call{Op: "disconnect"})
	d.mu.Lock()
	cancel := d.cancel
	d.connected = false
	d.handlers = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel(nil)
	}
	return nil
}

// IsConnected reports whether the fake link is up.
func (d *FakeDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

// GetConnection returns the device itself once connected.
func (d *FakeDevice) GetConnection() device.Connection {
	if !d.IsConnected() {
		return nil
	}
	return d
}

// ConnectionContext returns the link context.
func (d *FakeDevice) ConnectionContext() context.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return context.Background()
	}
	return d.ctx
}

// Services returns the configured profile.
func (d *FakeDevice) Services() []device.Service {
	out := make([]device.Service, len(d.services))
	for i, s := range d.services {
		out[i] = s
	}
	return out
}

func (d *FakeDevice) lookup(service, uuid string) (*fakeCharacteristic, error) {
	service = bledb.NormalizeUUID(service)
	uuid = bledb.NormalizeUUID(uuid)
	for _, s := range d.services {
		if s.uuid != service {
			continue
		}
		for _, c := range s.chars {
			if c.uuid == uuid {
				return c, nil
			}
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
}

// GetCharacteristic finds a characteristic in the profile.
func (d *FakeDevice) GetCharacteristic(service, uuid string) (device.Characteristic, error) {
	if !d.IsConnected() {
		return nil, device.ErrNotConnected
	}
	return d.lookup(service, uuid)
}

// Subscribe records the call and registers handler.
func (d *FakeDevice) Subscribe(service, uuid string, handler device.NotificationHandler) error {
	c, err := d.lookup(service, uuid)
	if err != nil {
		return err
	}
	d.record(Call{Op: "subscribe", Service: c.service, Char: c.uuid})
	if err := d.failure("subscribe", c.uuid); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.connected {
		return device.ErrNotConnected
	}
	d.handlers[c.service+"/"+c.uuid] = handler
	return nil
}

// Unsubscribe records the call and removes the handler.
func (d *FakeDevice) Unsubscribe(service, uuid string) error {
	c, err := d.lookup(service, uuid)
	if err != nil {
		return err
	}
	d.record(Call{Op: "unsubscribe", Service: c.service, Char: c.uuid})
	if err := d.failure("unsubscribe", c.uuid); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.handlers, c.service+"/"+c.uuid)
	return nil
}

type fakeService struct {
	uuid  string
	chars []*fakeCharacteristic
}

func (s *fakeService) UUID() string      { return s.uuid }
func (s *fakeService) KnownName() string { return bledb.LookupService(s.uuid) }

func (s *fakeService) GetCharacteristics() []device.Characteristic {
	out := make([]device.Characteristic, len(s.chars))
	for i, c := range s.chars {
		out[i] = c
	}
	return out
}

type fakeCharacteristic struct {
	dev        *FakeDevice
	service    string
	uuid       string
	properties string

	mu    sync.Mutex
	value []byte
}

func (c *fakeCharacteristic) UUID() string      { return c.uuid }
func (c *fakeCharacteristic) KnownName() string { return bledb.LookupCharacteristic(c.uuid) }

func (c *fakeCharacteristic) CanNotify() bool {
	return c.properties == "" || strings.Contains(c.properties, "notify") || strings.Contains(c.properties, "indicate")
}

func (c *fakeCharacteristic) Read(time.Duration) ([]byte, error) {
	c.dev.record(Call{Op: "read", Service: c.service, Char: c.uuid})
	if err := c.dev.failure("read", c.uuid); err != nil {
		return nil, err
	}
	if !c.dev.IsConnected() {
		return nil, device.ErrNotConnected
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.value...), nil
}

func (c *fakeCharacteristic) Write(data []byte, _ bool, _ time.Duration) error {
	c.dev.record(Call{Op: "write", Service: c.service, Char: c.uuid, Data: append([]byte(nil), data...)})
	if err := c.dev.failure("write", c.uuid); err != nil {
		return err
	}
	if !c.dev.IsConnected() {
		return device.ErrNotConnected
	}
	return nil
}

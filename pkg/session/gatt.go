package session

import (
	"context"
	"time"

	"github.com/srg/pmdrelay/internal/bledb"
	"github.com/srg/pmdrelay/internal/device"
	"github.com/srg/pmdrelay/pkg/pmd"
)

// gattAdapter exposes a device.Connection as pmd.GATT. Every failure is
// wrapped in a TransportError, and notification handlers are not called
// directly: their payloads are queued for the session loop.
type gattAdapter struct {
	conn    device.Connection
	timeout time.Duration
	enqueue func(char string, data []byte, handler func([]byte))
}

var _ pmd.GATT = (*gattAdapter)(nil)

// opTimeout is the adapter timeout, shortened to the context deadline if that comes first.
func (g *gattAdapter) opTimeout(ctx context.Context) time.Duration {
	timeout := g.timeout
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left > 0 && (timeout <= 0 || left < timeout) {
			timeout = left
		}
	}
	return timeout
}

func (g *gattAdapter) Read(ctx context.Context, service, char string) ([]byte, error) {
	c, err := g.conn.GetCharacteristic(service, char)
	if err != nil {
		return nil, &TransportError{Op: "read", UUID: bledb.NormalizeUUID(char), Err: err}
	}
	data, err := c.Read(g.opTimeout(ctx))
	if err != nil {
		return nil, &TransportError{Op: "read", UUID: c.UUID(), Err: err}
	}
	return data, nil
}

func (g *gattAdapter) Write(ctx context.Context, service, char string, data []byte) error {
	c, err := g.conn.GetCharacteristic(service, char)
	if err != nil {
		return &TransportError{Op: "write", UUID: bledb.NormalizeUUID(char), Err: err}
	}
	if err := c.Write(data, true, g.opTimeout(ctx)); err != nil {
		return &TransportError{Op: "write", UUID: c.UUID(), Err: err}
	}
	return nil
}

func (g *gattAdapter) Subscribe(_ context.Context, service, char string, handler func([]byte)) error {
	key := bledb.NormalizeUUID(char)
	err := g.conn.Subscribe(service, char, func(data []byte) {
		g.enqueue(key, data, handler)
	})
	if err != nil {
		return &TransportError{Op: "subscribe", UUID: key, Err: err}
	}
	return nil
}

func (g *gattAdapter) Unsubscribe(_ context.Context, service, char string) error {
	if err := g.conn.Unsubscribe(service, char); err != nil {
		return &TransportError{Op: "unsubscribe", UUID: bledb.NormalizeUUID(char), Err: err}
	}
	return nil
}

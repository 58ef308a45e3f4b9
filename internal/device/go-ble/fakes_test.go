package goble

import (
	"context"
	"errors"
	"sync"

	"github.com/go-ble/ble"
)

// fakeBLEDevice satisfies ble.Device; only Dial is implemented.
type fakeBLEDevice struct {
	ble.Device
	client  *fakeClient
	dialErr error
}

func (d *fakeBLEDevice) Dial(ctx context.Context, _ ble.Addr) (ble.Client, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.client, nil
}

type subscription struct {
	char *ble.Characteristic
	ind  bool
	h    ble.NotificationHandler
}

// fakeClient satisfies ble.Client for the calls BLEConnection makes.
type fakeClient struct {
	ble.Client

	mu           sync.Mutex
	profile      *ble.Profile
	discoverErr  error
	values       map[string][]byte
	readBlock    chan struct{}
	writes       []fakeWrite
	subs         map[string]subscription
	unsubscribed []string
	cancelled    int
	disconnected chan struct{}
}

type fakeWrite struct {
	uuid  string
	data  []byte
	noRsp bool
}

func newFakeClient(profile *ble.Profile) *fakeClient {
	return &fakeClient{
		profile:      profile,
		values:       map[string][]byte{},
		subs:         map[string]subscription{},
		disconnected: make(chan struct{}),
	}
}

func (f *fakeClient) DiscoverProfile(bool) (*ble.Profile, error) {
	return f.profile, f.discoverErr
}

func (f *fakeClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	if f.readBlock != nil {
		<-f.readBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[c.UUID.String()]
	if !ok {
		return nil, errors.New("read not permitted")
	}
	return v, nil
}

func (f *fakeClient) WriteCharacteristic(c *ble.Characteristic, v []byte, noRsp bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, fakeWrite{uuid: c.UUID.String(), data: v, noRsp: noRsp})
	return nil
}

func (f *fakeClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[c.UUID.String()] = subscription{char: c, ind: ind, h: h}
	return nil
}

func (f *fakeClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.subs[c.UUID.String()]; !ok || s.ind != ind {
		return errors.New("not subscribed")
	}
	f.unsubscribed = append(f.unsubscribed, c.UUID.String())
	return nil
}

func (f *fakeClient) CancelConnection() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled++
	return nil
}

func (f *fakeClient) Disconnected() <-chan struct{} {
	return f.disconnected
}

// notify delivers data through the handler the transport holds for uuid.
func (f *fakeClient) notify(uuid ble.UUID, data []byte) bool {
	f.mu.Lock()
	s, ok := f.subs[uuid.String()]
	f.mu.Unlock()
	if ok {
		s.h(data)
	}
	return ok
}

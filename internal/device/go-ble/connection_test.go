package goble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/srg/pmdrelay/internal/bledb"
	"github.com/srg/pmdrelay/internal/device"
	"github.com/stretchr/testify/suite"
)

var (
	hrService  = ble.MustParse("180d")
	hrMeasure  = ble.MustParse("2a37")
	pmdService = ble.MustParse("FB005C80-02E7-F387-1CAD-8ACD2D8DF0C8")
	pmdControl = ble.MustParse("FB005C81-02E7-F387-1CAD-8ACD2D8DF0C8")
	pmdData    = ble.MustParse("FB005C82-02E7-F387-1CAD-8ACD2D8DF0C8")
)

func testProfile() *ble.Profile {
	return &ble.Profile{Services: []*ble.Service{
		{
			UUID: hrService,
			Characteristics: []*ble.Characteristic{
				{UUID: hrMeasure, Property: ble.CharNotify},
			},
		},
		{
			UUID: pmdService,
			Characteristics: []*ble.Characteristic{
				{UUID: pmdControl, Property: ble.CharRead | ble.CharWrite | ble.CharIndicate},
				{UUID: pmdData, Property: ble.CharNotify},
			},
		},
	}}
}

type ConnectionTestSuite struct {
	suite.Suite
	client      *fakeClient
	dev         *fakeBLEDevice
	origFactory func() (ble.Device, error)
	conn        *BLEConnection
}

func (s *ConnectionTestSuite) SetupTest() {
	s.client = newFakeClient(testProfile())
	s.dev = &fakeBLEDevice{client: s.client}
	s.origFactory = DeviceFactory
	DeviceFactory = func() (ble.Device, error) { return s.dev, nil }
	s.conn = NewBLEConnection(nil)
}

func (s *ConnectionTestSuite) TearDownTest() {
	_ = s.conn.Disconnect()
	DeviceFactory = s.origFactory
}

func (s *ConnectionTestSuite) connect() {
	s.Require().NoError(s.conn.Connect(context.Background(), "aa:bb:cc:dd:ee:ff", &device.ConnectOptions{ConnectTimeout: time.Second}))
}

func (s *ConnectionTestSuite) TestConnectDiscoversProfile() {
	// GOAL: Verify a successful connect exposes discovered services under normalized UUIDs
	//
	// TEST SCENARIO: Connect to fake client with HR and PMD services → both services listed → PMD characteristics resolvable by dashed UUID

	s.connect()
	s.True(s.conn.IsConnected(), "connection MUST report connected")

	services := s.conn.Services()
	s.Require().Len(services, 2)
	s.Equal(bledb.HeartRateService, services[0].UUID(), "services MUST be sorted by UUID")
	s.Equal(bledb.PMDService, services[1].UUID())
	s.Equal("Polar Measurement Data", services[1].KnownName())
	s.Len(services[1].GetCharacteristics(), 2)

	char, err := s.conn.GetCharacteristic("FB005C80-02E7-F387-1CAD-8ACD2D8DF0C8", "FB005C82-02E7-F387-1CAD-8ACD2D8DF0C8")
	s.Require().NoError(err)
	s.Equal(bledb.PMDData, char.UUID())
	s.True(char.CanNotify())
}

func (s *ConnectionTestSuite) TestConnectTwice() {
	s.connect()
	err := s.conn.Connect(context.Background(), "aa:bb:cc:dd:ee:ff", &device.ConnectOptions{})
	s.ErrorIs(err, device.ErrAlreadyConnected)
}

func (s *ConnectionTestSuite) TestConnectFailures() {
	// GOAL: Verify dial and discovery failures surface and leave the connection unusable
	//
	// TEST SCENARIO: Empty address → error; dial error → wrapped; discovery error → link cancelled

	s.Error(s.conn.Connect(context.Background(), " ", &device.ConnectOptions{}))

	s.dev.dialErr = errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	err := s.conn.Connect(context.Background(), "aa:bb:cc:dd:ee:ff", &device.ConnectOptions{})
	s.ErrorIs(err, device.ErrBluetoothOff, "dial errors MUST be normalized")
	s.False(s.conn.IsConnected())

	s.dev.dialErr = nil
	s.client.discoverErr = errors.New("att: timeout")
	err = s.conn.Connect(context.Background(), "aa:bb:cc:dd:ee:ff", &device.ConnectOptions{})
	s.Error(err)
	s.Equal(1, s.client.cancelled, "a failed discovery MUST cancel the link")
	s.False(s.conn.IsConnected())
}

func (s *ConnectionTestSuite) TestGetCharacteristicNotFound() {
	s.connect()

	_, err := s.conn.GetCharacteristic("180f", "2a19")
	var nf *device.NotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal("service", nf.Resource)

	_, err = s.conn.GetCharacteristic("180d", "2a38")
	s.Require().ErrorAs(err, &nf)
	s.Equal("characteristic", nf.Resource)
}

func (s *ConnectionTestSuite) TestSubscribeRoutesNotifications() {
	// GOAL: Verify notifications reach the registered handler until unsubscribed
	//
	// TEST SCENARIO: Subscribe HR → deliver payload → handler sees it → unsubscribe → transport unsubscribed with same mode

	s.connect()

	got := make(chan []byte, 4)
	s.Require().NoError(s.conn.Subscribe("180d", "2a37", func(data []byte) { got <- data }))

	s.Require().True(s.client.notify(hrMeasure, []byte{0x00, 72}))
	s.Equal([]byte{0x00, 72}, <-got)

	s.Require().NoError(s.conn.Unsubscribe("180d", "2a37"))
	s.Equal([]string{hrMeasure.String()}, s.client.unsubscribed)

	// A late delivery from the transport after Unsubscribe MUST be dropped.
	s.client.notify(hrMeasure, []byte{0x00, 80})
	s.Empty(got)
}

func (s *ConnectionTestSuite) TestSubscribeIndicateOnly() {
	s.connect()
	s.Require().NoError(s.conn.Subscribe(bledb.PMDService, bledb.PMDControl, func([]byte) {}))
	s.True(s.client.subs[pmdControl.String()].ind, "indicate-only characteristics MUST subscribe with indications")
	s.NoError(s.conn.Unsubscribe(bledb.PMDService, bledb.PMDControl))
}

func (s *ConnectionTestSuite) TestSubscribeUnsupported() {
	s.client.profile.Services[0].Characteristics[0].Property = ble.CharRead
	s.connect()
	err := s.conn.Subscribe("180d", "2a37", func([]byte) {})
	s.ErrorIs(err, device.ErrUnsupported)
}

func (s *ConnectionTestSuite) TestReadWrite() {
	// GOAL: Verify characteristic reads and writes reach the client with the requested write mode
	//
	// TEST SCENARIO: Read PMD control → value; write with response → noRsp=false; write without → noRsp=true

	s.client.values[pmdControl.String()] = []byte{0x0f, 0x01}
	s.connect()

	char, err := s.conn.GetCharacteristic(bledb.PMDService, bledb.PMDControl)
	s.Require().NoError(err)

	v, err := char.Read(time.Second)
	s.Require().NoError(err)
	s.Equal([]byte{0x0f, 0x01}, v)

	s.Require().NoError(char.Write([]byte{0x03, 0x00}, true, time.Second))
	s.Require().NoError(char.Write([]byte{0x01}, false, 0))
	s.Require().Len(s.client.writes, 2)
	s.False(s.client.writes[0].noRsp)
	s.True(s.client.writes[1].noRsp)
	s.Equal([]byte{0x03, 0x00}, s.client.writes[0].data)
}

func (s *ConnectionTestSuite) TestReadTimeout() {
	s.client.readBlock = make(chan struct{})
	defer close(s.client.readBlock)
	s.connect()

	char, err := s.conn.GetCharacteristic("180d", "2a37")
	s.Require().NoError(err)
	_, err = char.Read(20 * time.Millisecond)
	s.ErrorIs(err, device.ErrTimeout)
}

func (s *ConnectionTestSuite) TestLinkLossCancelsContext() {
	// GOAL: Verify a transport-reported disconnection cancels the connection context with ErrNotConnected
	//
	// TEST SCENARIO: Connect → close Disconnected channel → ConnectionContext done with cause ErrNotConnected

	s.connect()
	ctx := s.conn.ConnectionContext()
	close(s.client.disconnected)

	select {
	case <-ctx.Done():
		s.ErrorIs(context.Cause(ctx), device.ErrNotConnected)
	case <-time.After(2 * time.Second):
		s.Fail("connection context MUST be cancelled on link loss")
	}
}

func (s *ConnectionTestSuite) TestConnectionContextOutlivesCallerContext() {
	// GOAL: Verify the connection context is not tied to the context passed to Connect
	//
	// TEST SCENARIO: Connect with a cancelable context → cancel it → connection context still live → link still up → Disconnect ends it

	ctx, cancel := context.WithCancel(context.Background())
	s.Require().NoError(s.conn.Connect(ctx, "aa:bb:cc:dd:ee:ff", &device.ConnectOptions{ConnectTimeout: time.Second}))
	link := s.conn.ConnectionContext()

	cancel()
	select {
	case <-link.Done():
		s.Failf("connection context MUST survive cancellation of the caller's context", "cause: %v", context.Cause(link))
	case <-time.After(50 * time.Millisecond):
	}
	s.True(s.conn.IsConnected())
	s.Equal(0, s.client.cancelled, "the transport connection MUST NOT be cancelled")

	s.Require().NoError(s.conn.Disconnect())
	s.Error(link.Err(), "Disconnect MUST end the connection context")
}

func (s *ConnectionTestSuite) TestDisconnect() {
	s.connect()
	ctx := s.conn.ConnectionContext()
	char, err := s.conn.GetCharacteristic("180d", "2a37")
	s.Require().NoError(err)

	s.Require().NoError(s.conn.Disconnect())
	s.Equal(1, s.client.cancelled)
	s.False(s.conn.IsConnected())
	s.Error(ctx.Err(), "Disconnect MUST cancel the connection context")
	s.ErrorIs(context.Cause(ctx), context.Canceled, "a requested disconnect MUST NOT carry a link-loss cause")
	s.NotErrorIs(context.Cause(ctx), device.ErrNotConnected)

	_, err = char.Read(time.Second)
	s.ErrorIs(err, device.ErrNotConnected)
	s.NoError(s.conn.Disconnect(), "Disconnect MUST be idempotent")
}

func TestConnectionTestSuite(t *testing.T) {
	suite.Run(t, new(ConnectionTestSuite))
}

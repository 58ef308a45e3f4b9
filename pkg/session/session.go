// Package session runs one PMD streaming session against a BLE sensor.
//
// A Session connects, reads the sensor identity, subscribes to battery and
// heart rate notifications, starts the ECG stream and then runs a single
// event loop until its context is cancelled or the link drops. Every
// notification handler runs on that loop, so session state needs no locks.
// Cancellation is observed once per tick, which bounds stop latency by one
// tick interval.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/pmdrelay/internal/bledb"
	"github.com/srg/pmdrelay/internal/device"
	"github.com/srg/pmdrelay/internal/devicefactory"
	"github.com/srg/pmdrelay/internal/ringchan"
	"github.com/srg/pmdrelay/pkg/heart"
	"github.com/srg/pmdrelay/pkg/pmd"
	"github.com/srg/pmdrelay/pkg/rate"
	"github.com/srg/pmdrelay/pkg/relay"
)

const (
	DefaultTickInterval   = time.Second
	DefaultOpTimeout      = 5 * time.Second
	DefaultConnectTimeout = 30 * time.Second
	DefaultEventQueueSize = 1024
)

// Observer receives session events. Implementations must not block;
// *observer.Bridge satisfies it.
type Observer interface {
	HeartRate(bpm int)
	Battery(percent int)
	Samples(values []int32)
	SampleRate(hz float64)
	DeviceInfo(model, manufacturer string)
	State(state string)
}

// ProgressCallback is called when the session phase changes
type ProgressCallback func(phase string)

// Options configures a Session.
type Options struct {
	Address          string           // BLE device address
	ConnectTimeout   time.Duration    // BLE connection timeout
	OpTimeout        time.Duration    // per read/write timeout
	TickInterval     time.Duration    // rate estimator cadence
	WindowSize       int              // rate estimator window, in ticks
	StartCommand     pmd.StartCommand // zero value selects pmd.DefaultStartCommand
	RelayDialer      relay.Dialer     // nil disables relaying
	RelayStagingSize int              // relay staging buffer in bytes (0 = default)
	EventQueueSize   int              // notification queue capacity (0 = default)
	Observer         Observer
	Progress         ProgressCallback
	Device           device.Device // nil creates one for Address
	Logger           *logrus.Logger
	ID               string // session id for logs and events; random if empty
}

// Identity is the sensor identity read once during setup.
type Identity struct {
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
	Battery      int    `json:"battery"` // percent, -1 if the reading was unusable
}

// Stats are cumulative session counters.
type Stats struct {
	Frames        uint64 // ECG frames decoded
	Samples       uint64 // samples decoded
	Malformed     uint64 // data notifications that failed to decode
	Unsupported   uint64 // non-ECG or unknown frame types skipped
	EventsDropped int64  // notifications lost to a full queue
	Relay         relay.Stats
}

type notification struct {
	char    string
	data    []byte
	handler func([]byte)
}

// Session is a single-use PMD streaming session.
type Session struct {
	opts     Options
	id       string
	logger   *logrus.Logger
	log      *logrus.Entry
	observer Observer
	progress ProgressCallback

	events    *ringchan.Ring[notification]
	dropBurst atomic.Int64 // overflow drops not yet reported
	dropping  atomic.Bool
	started   atomic.Bool
	state     atomic.Int32

	identity  atomic.Pointer[Identity]
	heartRate atomic.Int32
	battery   atomic.Int32

	frames      atomic.Uint64
	samples     atomic.Uint64
	malformed   atomic.Uint64
	unsupported atomic.Uint64

	relay *relay.Relay

	// owned by Run
	gatt      *gattAdapter
	driver    *pmd.Driver
	estimator *rate.Estimator
	pending   int
}

// New validates opts, fills defaults and creates a Session.
func New(opts Options) (*Session, error) {
	if opts.Device == nil && opts.Address == "" {
		return nil, fmt.Errorf("failed to create session: device address is required")
	}
	if opts.Address == "" {
		opts.Address = opts.Device.Address()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = DefaultOpTimeout
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}
	if opts.WindowSize <= 0 {
		opts.WindowSize = rate.DefaultWindow
	}
	if opts.StartCommand.SampleRate == 0 {
		opts.StartCommand = pmd.DefaultStartCommand()
	}
	if opts.EventQueueSize <= 0 {
		opts.EventQueueSize = DefaultEventQueueSize
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}

	s := &Session{
		opts:      opts,
		id:        opts.ID,
		logger:    opts.Logger,
		observer:  opts.Observer,
		progress:  opts.Progress,
		events:    ringchan.New[notification](opts.EventQueueSize),
		estimator: rate.NewEstimator(opts.WindowSize),
	}
	if s.logger == nil {
		s.logger = logrus.New()
	}
	if s.observer == nil {
		s.observer = nopObserver{}
	}
	if s.progress == nil {
		s.progress = func(string) {} // No-op callback
	}
	s.relay = relay.New(nil, opts.RelayStagingSize, s.logger)
	s.log = s.logger.WithFields(logrus.Fields{"session": s.id, "address": opts.Address})
	s.heartRate.Store(-1)
	s.battery.Store(-1)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state. Safe for concurrent use.
func (s *Session) State() State { return State(s.state.Load()) }

// Identity returns the sensor identity, or the zero value before it has been read.
func (s *Session) Identity() Identity {
	if id := s.identity.Load(); id != nil {
		return *id
	}
	return Identity{}
}

// HeartRate returns the last reported heart rate, or -1 if none arrived yet.
func (s *Session) HeartRate() int { return int(s.heartRate.Load()) }

// Battery returns the last known battery level, or -1 if unknown.
func (s *Session) Battery() int { return int(s.battery.Load()) }

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	st := Stats{
		Frames:        s.frames.Load(),
		Samples:       s.samples.Load(),
		Malformed:     s.malformed.Load(),
		Unsupported:   s.unsupported.Load(),
		EventsDropped: s.events.Metrics().Overwritten,
	}
	st.Relay = s.relay.Stats()
	return st
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
	s.observer.State(st.String())
	s.log.WithField("state", st.String()).Debug("Session state changed")
}

// Run executes the session until ctx is cancelled (clean stop, nil error) or a
// fatal error occurs. Cancellation is noticed at the next tick, after which the
// stream is stopped and every subscription undone in reverse setup order.
// Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	s.log.WithFields(logrus.Fields{
		"sample_rate": s.opts.StartCommand.SampleRate,
		"resolution":  s.opts.StartCommand.Resolution,
		"tick":        s.opts.TickInterval,
	}).Info("Starting PMD session")
	s.progress(PhaseConnecting)

	dev := s.opts.Device
	if dev == nil {
		dev = devicefactory.NewDevice(s.opts.Address, s.logger)
	}

	connectOpts := &device.ConnectOptions{Address: s.opts.Address, ConnectTimeout: s.opts.ConnectTimeout}
	if err := dev.Connect(ctx, connectOpts); err != nil {
		return s.fail(&TransportError{Op: "connect", Err: err})
	}
	conn := dev.GetConnection()
	if conn == nil {
		return s.abort(dev, &TransportError{Op: "connect", Err: device.ErrNotConnected})
	}
	s.gatt = &gattAdapter{conn: conn, timeout: s.opts.OpTimeout, enqueue: s.enqueue}
	s.setState(Connected)
	s.progress(PhaseConnected)

	if err := s.readIdentity(ctx); err != nil {
		return s.abort(dev, err)
	}
	if err := s.gatt.Subscribe(ctx, bledb.BatteryService, bledb.BatteryLevel, s.onBattery); err != nil {
		return s.abort(dev, err)
	}
	if err := s.gatt.Subscribe(ctx, bledb.HeartRateService, bledb.HeartRateMeasurement, s.onHeartRate); err != nil {
		return s.abort(dev, err)
	}

	s.relay.Attach(s.dialRelay(ctx))

	s.progress(PhaseStarting)
	s.driver = pmd.NewDriver(s.gatt, s.opts.StartCommand, s.logger)
	if err := s.driver.Start(ctx); err != nil {
		return s.abort(dev, err)
	}
	s.setState(StreamStarted)
	if err := s.gatt.Subscribe(ctx, pmd.ServiceUUID, pmd.DataUUID, s.onData); err != nil {
		return s.abort(dev, err)
	}
	s.setState(Streaming)
	s.progress(PhaseStreaming)
	s.log.WithField("features", s.driver.Features().String()).Info("PMD stream started")

	if err := s.loop(ctx, conn.ConnectionContext()); err != nil {
		return s.abort(dev, err)
	}
	return s.teardown(context.WithoutCancel(ctx), dev)
}

// loop dispatches queued notifications and ticks the rate estimator. ctx is
// only consulted on ticks.
func (s *Session) loop(ctx context.Context, link context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case n, ok := <-s.events.C():
			if !ok {
				return ErrConnectionLost
			}
			n.handler(n.data)
		case <-ticker.C:
			s.tick()
			if ctx.Err() != nil {
				s.log.Info("Stop requested")
				return nil
			}
		case <-link.Done():
			return fmt.Errorf("%w: %w", ErrConnectionLost, context.Cause(link))
		}
	}
}

func (s *Session) tick() {
	mean := s.estimator.Tick(s.pending)
	s.log.WithFields(logrus.Fields{
		"count": s.pending,
		"rate":  mean,
	}).Trace("Rate tick")
	s.pending = 0
	s.observer.SampleRate(mean)

	if n := s.dropBurst.Swap(0); n > 0 {
		s.dropping.Store(false)
		s.log.WithField("dropped", n).Warn("Notification queue overflowed")
	}
}

// teardown stops the stream and releases everything in reverse setup order.
// A failure part-way is handled like any other fatal error.
func (s *Session) teardown(ctx context.Context, dev device.Device) error {
	s.setState(Stopping)
	s.progress(PhaseStopping)

	if err := s.driver.Stop(ctx); err != nil {
		return s.abort(dev, err)
	}
	if err := s.gatt.Unsubscribe(ctx, bledb.HeartRateService, bledb.HeartRateMeasurement); err != nil {
		return s.abort(dev, err)
	}
	if err := s.gatt.Unsubscribe(ctx, bledb.BatteryService, bledb.BatteryLevel); err != nil {
		return s.abort(dev, err)
	}
	s.events.Close()

	if err := dev.Disconnect(); err != nil {
		s.closeRelay()
		s.setState(Disconnected)
		s.progress(PhaseFailed)
		return &TransportError{Op: "disconnect", Err: err}
	}
	s.closeRelay()
	s.setState(Disconnected)
	s.progress(PhaseDisconnected)

	st := s.Stats()
	s.log.WithFields(logrus.Fields{
		"frames":          st.Frames,
		"samples":         st.Samples,
		"malformed":       st.Malformed,
		"unsupported":     st.Unsupported,
		"events_dropped":  st.EventsDropped,
		"relay_batches":   st.Relay.Batches,
		"relay_skipped":   st.Relay.Skipped,
		"relay_bytes":     st.Relay.BytesWritten,
		"relay_saturated": st.Relay.SamplesClamped,
	}).Info("PMD session finished")
	return nil
}

// abort is the fatal path: drop the link, release the relay target and report err.
func (s *Session) abort(dev device.Device, err error) error {
	s.events.Close()
	if derr := dev.Disconnect(); derr != nil {
		s.log.WithError(derr).Debug("Disconnect after failure")
	}
	return s.fail(err)
}

func (s *Session) fail(err error) error {
	s.events.Close()
	s.closeRelay()
	s.setState(Disconnected)
	s.progress(PhaseFailed)
	s.log.WithError(err).Error("PMD session failed")
	return err
}

// enqueue hands a notification to the loop. It runs on transport goroutines
// and never blocks: on overflow the oldest queued notification is dropped.
func (s *Session) enqueue(char string, data []byte, handler func([]byte)) {
	n := notification{char: char, data: append([]byte(nil), data...), handler: handler}
	if dropped, ok := s.events.Push(n); dropped {
		s.dropBurst.Add(1)
		if !s.dropping.Swap(true) {
			s.log.WithField("characteristic", char).Warn("Notification queue full, dropping oldest notifications")
		}
	} else if !ok {
		s.log.WithField("characteristic", char).Trace("Notification after shutdown ignored")
	}
}

func (s *Session) readIdentity(ctx context.Context) error {
	model, err := s.gatt.Read(ctx, bledb.DeviceInformationService, bledb.ModelNumberString)
	if err != nil {
		return err
	}
	manufacturer, err := s.gatt.Read(ctx, bledb.DeviceInformationService, bledb.ManufacturerNameString)
	if err != nil {
		return err
	}
	raw, err := s.gatt.Read(ctx, bledb.BatteryService, bledb.BatteryLevel)
	if err != nil {
		return err
	}

	id := Identity{Model: trimString(model), Manufacturer: trimString(manufacturer), Battery: -1}
	if level, err := heart.ParseBattery(raw); err != nil {
		s.log.WithError(err).Warn("Unusable battery level reading")
	} else {
		id.Battery = int(level)
	}
	s.identity.Store(&id)
	s.battery.Store(int32(id.Battery))

	s.log.WithFields(logrus.Fields{
		"model":        id.Model,
		"manufacturer": id.Manufacturer,
		"battery":      id.Battery,
	}).Info("Sensor identified")
	s.observer.DeviceInfo(id.Model, id.Manufacturer)
	if id.Battery >= 0 {
		s.observer.Battery(id.Battery)
	}
	return nil
}

// trimString decodes a GATT UTF-8 string, dropping NUL padding and surrounding space.
func trimString(b []byte) string {
	return strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
}

func (s *Session) onData(data []byte) {
	frame, err := pmd.Decode(data)
	switch {
	case errors.Is(err, pmd.ErrUnsupportedFrame):
		s.unsupported.Add(1)
		s.log.WithFields(logrus.Fields{
			"measure":    frame.Measure.String(),
			"frame_type": frame.Type,
		}).Debug("Skipping unsupported PMD frame")
		return
	case err != nil:
		s.malformed.Add(1)
		s.log.WithError(err).WithField("length", len(data)).Warn("Dropping malformed PMD frame")
		return
	}

	s.frames.Add(1)
	if err := s.relay.Send(frame.Samples); err != nil {
		s.log.WithError(err).WithField("target", s.relay.Target().String()).Warn("Relay write failed, detaching relay target")
		s.closeRelay()
	}
	s.pending += len(frame.Samples)
	s.samples.Add(uint64(len(frame.Samples)))
	s.observer.Samples(frame.Samples)
}

func (s *Session) onHeartRate(data []byte) {
	r, err := heart.ParseRate(data)
	if err != nil {
		s.log.WithError(err).Warn("Dropping malformed heart rate notification")
		return
	}
	s.heartRate.Store(int32(r.BPM))
	s.log.WithFields(logrus.Fields{"bpm": r.BPM, "rr": r.RR}).Trace("Heart rate")
	s.observer.HeartRate(int(r.BPM))
}

func (s *Session) onBattery(data []byte) {
	level, err := heart.ParseBattery(data)
	if err != nil {
		s.log.WithError(err).Warn("Dropping malformed battery notification")
		return
	}
	s.battery.Store(int32(level))
	s.observer.Battery(int(level))
}

func (s *Session) dialRelay(ctx context.Context) relay.Target {
	if s.opts.RelayDialer == nil {
		return nil
	}
	t, err := s.opts.RelayDialer(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Relay target unavailable, streaming without relay")
		return nil
	}
	if t != nil {
		s.log.WithField("target", t.String()).Info("Relay target opened")
	}
	return t
}

func (s *Session) closeRelay() {
	t := s.relay.Target()
	if t == nil {
		return
	}
	s.relay.Detach()
	if err := t.Close(); err != nil {
		s.log.WithError(err).WithField("target", t.String()).Debug("Relay target close")
	}
}

type nopObserver struct{}

func (nopObserver) HeartRate(int)             {}
func (nopObserver) Battery(int)               {}
func (nopObserver) Samples([]int32)           {}
func (nopObserver) SampleRate(float64)        {}
func (nopObserver) DeviceInfo(string, string) {}
func (nopObserver) State(string)              {}

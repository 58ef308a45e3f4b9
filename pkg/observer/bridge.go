// Package observer carries session events to presentation sinks.
//
// The session emits through a Bridge, which never blocks: events land in a
// bounded drop-oldest queue drained by a single dispatcher goroutine that
// hands each event to every Sink in registration order.
package observer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pmdrelay/internal/groutine"
	"github.com/srg/pmdrelay/internal/ringchan"
)

// DefaultQueueSize is the default capacity of the bridge queue.
const DefaultQueueSize = 256

// Sink consumes events on the dispatcher goroutine.
type Sink interface {
	Name() string
	Handle(ev Event) error
	Close() error
}

// Metrics summarizes bridge activity.
type Metrics struct {
	Queue      ringchan.Metrics
	SinkErrors int64
}

// Bridge is a fire-and-forget event channel from a session to its sinks.
type Bridge struct {
	queue   *ringchan.Ring[Event]
	sinks   []Sink
	session string
	logger  *logrus.Logger
	now     func() time.Time

	sinkErrors atomic.Int64
	startOnce  sync.Once
	closeOnce  sync.Once
	group      *groutine.Group
}

// NewBridge creates a Bridge with the given queue capacity (non-positive selects
// DefaultQueueSize) delivering to sinks.
func NewBridge(queueSize int, logger *logrus.Logger, sinks ...Sink) *Bridge {
	if logger == nil {
		logger = logrus.New()
	}
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bridge{
		queue:  ringchan.New[Event](queueSize),
		sinks:  sinks,
		logger: logger,
		now:    time.Now,
	}
}

// SetSession stamps subsequent events with the session id.
func (b *Bridge) SetSession(id string) {
	b.session = id
}

// Start launches the dispatcher. It runs until Close.
func (b *Bridge) Start(ctx context.Context) {
	b.startOnce.Do(func() {
		b.group = groutine.NewGroup(ctx)
		b.group.Go("observer-dispatcher", func(context.Context) {
			for ev := range b.queue.C() {
				b.dispatch(ev)
			}
		})
	})
}

func (b *Bridge) dispatch(ev Event) {
	for _, s := range b.sinks {
		if err := s.Handle(ev); err != nil {
			b.sinkErrors.Add(1)
			b.logger.WithFields(logrus.Fields{
				"sink":  s.Name(),
				"event": ev.Kind,
				"error": err,
			}).Warn("Observer sink failed to handle event")
		}
	}
}

// Close stops accepting events, waits for queued ones to be dispatched and closes the sinks.
func (b *Bridge) Close() error {
	var errs []error
	b.closeOnce.Do(func() {
		b.queue.Close()
		if b.group != nil {
			b.group.Wait()
		}
		for _, s := range b.sinks {
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		m := b.Metrics()
		b.logger.WithFields(logrus.Fields{
			"written":     m.Queue.Written,
			"overwritten": m.Queue.Overwritten,
			"sink_errors": m.SinkErrors,
		}).Debug("Observer bridge closed")
	})
	return errors.Join(errs...)
}

// Metrics returns a snapshot of queue and sink counters.
func (b *Bridge) Metrics() Metrics {
	return Metrics{Queue: b.queue.Metrics(), SinkErrors: b.sinkErrors.Load()}
}

func (b *Bridge) emit(kind Kind, v any) {
	if dropped, _ := b.queue.Push(Event{Kind: kind, Time: b.now(), Session: b.session, Value: v}); dropped {
		b.logger.WithField("event", kind).Trace("Observer queue full, dropped oldest event")
	}
}

// HeartRate emits a heart rate in beats per minute.
func (b *Bridge) HeartRate(bpm int) { b.emit(KindHeartRate, bpm) }

// Battery emits a battery level in percent.
func (b *Bridge) Battery(percent int) { b.emit(KindBattery, percent) }

// Samples emits one decoded frame's samples. The slice must not be modified afterwards.
func (b *Bridge) Samples(values []int32) { b.emit(KindSamples, values) }

// SampleRate emits the estimated incoming sample rate.
func (b *Bridge) SampleRate(hz float64) { b.emit(KindSampleRate, hz) }

// DeviceInfo emits the sensor identity.
func (b *Bridge) DeviceInfo(model, manufacturer string) {
	b.emit(KindDeviceInfo, DeviceInfo{Model: model, Manufacturer: manufacturer})
}

// State emits a session state change.
func (b *Bridge) State(state string) { b.emit(KindState, state) }

// Package relay forwards decoded samples to a downstream byte sink as an
// unframed stream of signed 16-bit little-endian integers.
//
// The wire format carries no header, delimiter or length prefix; consumers
// must know the sample cadence independently.
package relay

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"github.com/smallnest/ringbuffer"
)

// ErrUnavailable is returned by targets that are absent, closing or closed.
// The Relay swallows it.
var ErrUnavailable = errors.New("relay target unavailable")

// SampleSize is the encoded size of one sample on the wire.
const SampleSize = 2

// DefaultStagingSize is the default capacity of the staging buffer, in bytes.
const DefaultStagingSize = 4096

// Target is an outbound byte sink with write-then-flush semantics.
// Flush returns once written bytes are handed to the transport.
type Target interface {
	Write(p []byte) (int, error)
	Flush() error
	Close() error
	Closed() bool
	String() string
}

// Stats are cumulative relay counters.
type Stats struct {
	Batches        uint64 // batches written to the target
	Skipped        uint64 // batches dropped because the target was absent or closed
	SamplesWritten uint64
	SamplesClamped uint64 // samples outside the int16 range, saturated on the wire
	BytesWritten   uint64
}

// Relay serializes sample batches onto a Target. It does not own the target.
//
// Send is meant to be called from a single goroutine; Stats may be read concurrently.
type Relay struct {
	target  Target
	staging *ringbuffer.RingBuffer
	chunk   []byte
	logger  *logrus.Logger

	batches  atomic.Uint64
	skipped  atomic.Uint64
	samples  atomic.Uint64
	clamped  atomic.Uint64
	bytesOut atomic.Uint64
}

// New creates a Relay for target, which may be nil.
// A non-positive stagingSize selects DefaultStagingSize.
func New(target Target, stagingSize int, logger *logrus.Logger) *Relay {
	if logger == nil {
		logger = logrus.New()
	}
	if stagingSize < SampleSize {
		stagingSize = DefaultStagingSize
	}
	// Whole samples only, so a staged sample is never split across drains.
	stagingSize -= stagingSize % SampleSize
	return &Relay{
		target:  target,
		staging: ringbuffer.New(stagingSize),
		chunk:   make([]byte, stagingSize),
		logger:  logger,
	}
}

// Target returns the current target, possibly nil.
func (r *Relay) Target() Target {
	return r.target
}

// Attach replaces the target. The previous target is not closed.
func (r *Relay) Attach(t Target) {
	r.target = t
}

// Detach drops the reference to the target so further batches are skipped.
func (r *Relay) Detach() {
	r.target = nil
}

// Send writes the batch to the target in order and blocks until the target has flushed it.
// An absent or closed target makes Send a no-op returning nil.
// Any other write or flush failure is returned.
func (r *Relay) Send(samples []int32) error {
	if len(samples) == 0 {
		return nil
	}
	t := r.target
	if t == nil || t.Closed() {
		r.skipped.Add(1)
		return nil
	}

	var enc [SampleSize]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint16(enc[:], uint16(r.clamp(s)))
		if r.staging.Free() < SampleSize {
			if err := r.drain(t); err != nil {
				return r.swallow(err)
			}
		}
		if _, err := r.staging.Write(enc[:]); err != nil {
			return fmt.Errorf("stage sample: %w", err)
		}
	}
	if err := r.drain(t); err != nil {
		return r.swallow(err)
	}
	if err := t.Flush(); err != nil {
		return r.swallow(fmt.Errorf("flush %s: %w", t, err))
	}

	r.batches.Add(1)
	r.samples.Add(uint64(len(samples)))
	return nil
}

// drain moves everything staged to the target.
func (r *Relay) drain(t Target) error {
	for !r.staging.IsEmpty() {
		n, err := r.staging.TryRead(r.chunk)
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			return fmt.Errorf("read staging buffer: %w", err)
		}
		if n == 0 {
			return nil
		}
		written, err := t.Write(r.chunk[:n])
		r.bytesOut.Add(uint64(written))
		if err != nil {
			return fmt.Errorf("write %s: %w", t, err)
		}
	}
	return nil
}

// swallow discards what is left of the batch and hides ErrUnavailable from the caller.
func (r *Relay) swallow(err error) error {
	r.staging.Reset()
	if errors.Is(err, ErrUnavailable) {
		r.skipped.Add(1)
		r.logger.WithField("target", fmt.Sprint(r.target)).Debug("Relay target went away mid-batch")
		return nil
	}
	return err
}

func (r *Relay) clamp(s int32) int16 {
	switch {
	case s > math.MaxInt16:
		r.clamped.Add(1)
		return math.MaxInt16
	case s < math.MinInt16:
		r.clamped.Add(1)
		return math.MinInt16
	default:
		return int16(s)
	}
}

// Stats returns a snapshot of the relay counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Batches:        r.batches.Load(),
		Skipped:        r.skipped.Load(),
		SamplesWritten: r.samples.Load(),
		SamplesClamped: r.clamped.Load(),
		BytesWritten:   r.bytesOut.Load(),
	}
}

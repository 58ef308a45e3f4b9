package observer

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
	block  chan struct{}
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Handle(ev Event) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) Close() error {
	r.closed = true
	return nil
}

func (r *recordingSink) kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Kind
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func TestBridge_DeliversInOrder(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{}
	bridge := NewBridge(0, nil, a, b)
	bridge.SetSession("s-1")
	bridge.Start(t.Context())

	bridge.State("connected")
	bridge.DeviceInfo("H10", "Polar Electro Oy")
	bridge.Battery(87)
	bridge.HeartRate(72)
	bridge.Samples([]int32{1, -1})
	bridge.SampleRate(129.5)
	require.NoError(t, bridge.Close())

	want := []Kind{KindState, KindDeviceInfo, KindBattery, KindHeartRate, KindSamples, KindSampleRate}
	assert.Equal(t, want, a.kinds())
	assert.Equal(t, want, b.kinds(), "every sink MUST see every event")
	assert.True(t, a.closed && b.closed, "Close MUST close sinks")

	assert.Equal(t, "s-1", a.events[0].Session)
	assert.Equal(t, DeviceInfo{Model: "H10", Manufacturer: "Polar Electro Oy"}, a.events[1].Value)
	assert.Equal(t, 87, a.events[2].Value)
	assert.Equal(t, 72, a.events[3].Value)
	assert.Equal(t, []int32{1, -1}, a.events[4].Value)
	assert.Equal(t, 129.5, a.events[5].Value)
}

func TestBridge_EmitNeverBlocks(t *testing.T) {
	sink := &recordingSink{block: make(chan struct{})}
	bridge := NewBridge(2, nil, sink)
	bridge.Start(t.Context())

	// The dispatcher is stuck in the first Handle; everything else must be absorbed by the queue.
	for i := 0; i < 100; i++ {
		bridge.HeartRate(i)
	}
	close(sink.block)
	require.NoError(t, bridge.Close())

	m := bridge.Metrics()
	assert.Equal(t, int64(100), m.Queue.Written)
	assert.Positive(t, m.Queue.Overwritten, "a full queue MUST drop the oldest events")

	last := sink.events[len(sink.events)-1]
	assert.Equal(t, 99, last.Value, "the newest event MUST survive")
}

func TestBridge_SinkErrorsAreCounted(t *testing.T) {
	var out bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&out)

	bridge := NewBridge(0, logger, &recordingSink{err: errors.New("boom")})
	bridge.Start(t.Context())
	bridge.Battery(50)
	require.NoError(t, bridge.Close())

	assert.Equal(t, int64(1), bridge.Metrics().SinkErrors)
	assert.Contains(t, out.String(), "Observer sink failed to handle event")
}

func TestBridge_EmitAfterClose(t *testing.T) {
	bridge := NewBridge(0, nil)
	bridge.Start(t.Context())
	require.NoError(t, bridge.Close())
	require.NoError(t, bridge.Close())

	bridge.HeartRate(60)
	assert.Equal(t, int64(1), bridge.Metrics().Queue.Rejected)
}

func TestLogSink(t *testing.T) {
	var out bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&out)
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})

	s := NewLogSink(logger)
	require.NoError(t, s.Handle(Event{Kind: KindHeartRate, Value: 72}))
	require.NoError(t, s.Handle(Event{Kind: KindSamples, Value: []int32{1, 2}}))
	require.NoError(t, s.Handle(Event{Kind: KindDeviceInfo, Value: DeviceInfo{Model: "H10"}}))

	assert.Contains(t, out.String(), "event=heart_rate")
	assert.Contains(t, out.String(), "value=72")
	assert.NotContains(t, out.String(), "ECG samples", "samples MUST only be logged at trace level")
	assert.Contains(t, out.String(), "model=H10")
}

func TestConsoleSink_PlainOutput(t *testing.T) {
	var out bytes.Buffer
	s := NewConsoleSink(&out)

	require.NoError(t, s.Handle(Event{Kind: KindDeviceInfo, Value: DeviceInfo{Model: "H10", Manufacturer: "Polar Electro Oy"}}))
	require.NoError(t, s.Handle(Event{Kind: KindBattery, Value: 87}))
	require.NoError(t, s.Handle(Event{Kind: KindHeartRate, Value: 64}))
	require.NoError(t, s.Handle(Event{Kind: KindSamples, Value: []int32{1, 2, 3}}))
	require.NoError(t, s.Handle(Event{Kind: KindSampleRate, Value: 4.333}))
	require.NoError(t, s.Handle(Event{Kind: KindState, Value: "streaming"}))
	require.NoError(t, s.Close())

	lines := bytes.Split(bytes.TrimSpace(out.Bytes()), []byte("\n"))
	require.Len(t, lines, 5, "sample batches MUST NOT print a line")
	assert.Equal(t,
		"Polar Electro Oy H10 | HR 64 bpm | battery 87% | ecg 4.3 Hz | 3 samples | [streaming]",
		string(lines[4]))
	assert.NotContains(t, out.String(), "\033[", "non-terminal output MUST be uncolored")
}

package observer

import (
	"encoding/json"
	"net"
	"testing"
	"time"

	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/mochi-mqtt/server/v2/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload []byte
}

func startBroker(t *testing.T) (*mochi.Server, string) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	server := mochi.New(&mochi.Options{InlineClient: true})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		ID:      "observer-test",
		Address: addr,
	})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
	return server, addr
}

func TestMQTTSink_Publish(t *testing.T) {
	server, addr := startBroker(t)

	got := make(chan published, 8)
	require.NoError(t, server.Subscribe("pmdrelay/#", 1, func(_ *mochi.Client, _ packets.Subscription, pk packets.Packet) {
		got <- published{topic: pk.TopicName, payload: pk.Payload}
	}))

	sink, err := DialMQTT(t.Context(), MQTTOptions{Broker: addr, TopicPrefix: "pmdrelay", KeepAlive: 30}, nil)
	require.NoError(t, err)

	require.NoError(t, sink.Handle(Event{Kind: KindSamples, Value: []int32{1}}))
	require.NoError(t, sink.Handle(Event{Kind: KindSampleRate, Session: "s-2", Value: 130.0}))

	select {
	case p := <-got:
		assert.Equal(t, "pmdrelay/sample_rate", p.topic, "samples MUST NOT be published unless enabled")
		var ev struct {
			Kind    Kind    `json:"kind"`
			Session string  `json:"session"`
			Value   float64 `json:"value"`
		}
		require.NoError(t, json.Unmarshal(p.payload, &ev))
		assert.Equal(t, KindSampleRate, ev.Kind)
		assert.Equal(t, "s-2", ev.Session)
		assert.Equal(t, 130.0, ev.Value)
	case <-time.After(3 * time.Second):
		t.Fatal("no publish received")
	}

	require.NoError(t, sink.Close())
}

func TestMQTTSink_Topic(t *testing.T) {
	s := &MQTTSink{opts: MQTTOptions{}}
	assert.Equal(t, "battery", s.Topic(KindBattery))
	s.opts.TopicPrefix = "lab/h10"
	assert.Equal(t, "lab/h10/battery", s.Topic(KindBattery))
}

func TestDialMQTT_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = DialMQTT(t.Context(), MQTTOptions{Broker: addr, Timeout: time.Second}, nil)
	assert.Error(t, err)
}

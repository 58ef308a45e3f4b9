package session

import (
	"testing"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func warnings(hook *logtest.Hook) []*logrus.Entry {
	var out []*logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			out = append(out, e)
		}
	}
	return out
}

func TestEnqueue_WarnsOncePerOverflowBurst(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s, err := New(Options{Address: "AA:BB:CC:DD:EE:FF", EventQueueSize: 2, Logger: logger})
	require.NoError(t, err)

	nop := func([]byte) {}
	for i := 0; i < 5; i++ {
		s.enqueue("2a37", []byte{0x00, byte(60 + i)}, nop)
	}

	warns := warnings(hook)
	require.Len(t, warns, 1, "a burst of drops MUST produce a single warning")
	assert.Equal(t, "Notification queue full, dropping oldest notifications", warns[0].Message)
	assert.Equal(t, int64(3), s.Stats().EventsDropped)

	hook.Reset()
	s.tick()
	warns = warnings(hook)
	require.Len(t, warns, 1, "the tick MUST report the burst size")
	assert.Equal(t, int64(3), warns[0].Data["dropped"])

	hook.Reset()
	s.tick()
	assert.Empty(t, warnings(hook), "a quiet tick MUST NOT report")

	s.enqueue("2a37", []byte{0x00, 70}, nop)
	require.Len(t, warnings(hook), 1, "a new burst MUST warn again")
}

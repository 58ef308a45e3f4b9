package rate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimator_FirstTick(t *testing.T) {
	e := NewEstimator(0)
	assert.Equal(t, DefaultWindow, e.Window())
	assert.InDelta(t, 10.0/30.0, e.Tick(10), 1e-9, "warm-up estimate MUST average over the full window")
}

func TestEstimator_FullWindow(t *testing.T) {
	e := NewEstimator(30)
	var got float64
	for i := 0; i < 30; i++ {
		got = e.Tick(130)
	}
	assert.InDelta(t, 130.0, got, 1e-9)
	assert.Equal(t, uint64(30), e.Ticks())
}

func TestEstimator_Wraparound(t *testing.T) {
	e := NewEstimator(30)
	for i := 0; i < 30; i++ {
		e.Tick(130)
	}
	// Slot 0 is overwritten first.
	assert.InDelta(t, (29*130.0)/30.0, e.Tick(0), 1e-9)

	for i := 0; i < 29; i++ {
		e.Tick(0)
	}
	assert.InDelta(t, 0.0, e.Rate(), 1e-9, "a silent stream MUST decay to zero after a full window")
}

func TestEstimator_MeanOfWindow(t *testing.T) {
	e := NewEstimator(3)
	e.Tick(3)
	e.Tick(6)
	assert.InDelta(t, 3.0, e.Rate(), 1e-9)
	e.Tick(9)
	assert.InDelta(t, 6.0, e.Rate(), 1e-9)
	assert.InDelta(t, 8.0, e.Tick(9), 1e-9)
}

package observer

import "time"

// Kind names an observer event.
type Kind string

const (
	KindHeartRate  Kind = "heart_rate"
	KindBattery    Kind = "battery"
	KindSamples    Kind = "samples"
	KindSampleRate Kind = "sample_rate"
	KindDeviceInfo Kind = "device_info"
	KindState      Kind = "state"
)

// Event is one notification crossing the bridge.
//
// Value holds, by kind: int (bpm) for KindHeartRate, int (percent) for
// KindBattery, []int32 for KindSamples, float64 (Hz) for KindSampleRate,
// DeviceInfo for KindDeviceInfo and string for KindState.
type Event struct {
	Kind    Kind      `json:"kind"`
	Time    time.Time `json:"time"`
	Session string    `json:"session,omitempty"`
	Value   any       `json:"value"`
}

// DeviceInfo identifies the connected sensor.
type DeviceInfo struct {
	Model        string `json:"model"`
	Manufacturer string `json:"manufacturer"`
}

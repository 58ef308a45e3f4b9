package session

// State is the session lifecycle state. Transitions are linear:
// Disconnected → Connected → StreamStarted → Streaming → Stopping → Disconnected,
// with any failure jumping straight to Disconnected.
type State int32

const (
	Disconnected State = iota
	Connected
	StreamStarted
	Streaming
	Stopping
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case StreamStarted:
		return "stream_started"
	case Streaming:
		return "streaming"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// Progress phases reported through ProgressCallback.
const (
	PhaseConnecting   = "Connecting"
	PhaseConnected    = "Connected"
	PhaseStarting     = "Starting stream"
	PhaseStreaming    = "Streaming"
	PhaseStopping     = "Stopping"
	PhaseDisconnected = "Disconnected"
	PhaseFailed       = "Failed"
)

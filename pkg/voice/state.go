package voice

// State is the session lifecycle state, surfaced to the UI layer purely for
// display.
type State int

const (
	// StateIdle is the initial and terminal state; no resources are held.
	StateIdle State = iota

	// StateConnecting means the playback sink is open and the transport
	// link is being established.
	StateConnecting

	// StateListening means capture is running and no assistant audio is
	// playing.
	StateListening

	// StateProcessing means the remote turnaround is pending: the user's
	// turn ended but no audio is flowing either way. Only entered for
	// endpoints that signal turn boundaries; endpoints that stream straight
	// into audio skip it.
	StateProcessing

	// StateSpeaking means assistant audio is queued or playing. Capture
	// keeps running; this is a full-duplex session.
	StateSpeaking
)

// String returns the display name used by session-state notifications.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

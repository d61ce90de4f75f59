package voice

import (
	"errors"
	"fmt"

	"github.com/middlemgr/voicelink/pkg/audioio"
	"github.com/middlemgr/voicelink/pkg/codec"
)

// Sentinel errors for the voice package.
var (
	// ErrAlreadyStarted indicates Start was called on a non-idle session.
	ErrAlreadyStarted = errors.New("voice: session already started")

	// ErrStopped indicates the session was stopped while Start was still
	// bringing resources up.
	ErrStopped = errors.New("voice: session stopped during start")

	// ErrTransportClosed indicates the link closed or failed while the
	// session was running. Fatal: the session tears down and goes idle.
	ErrTransportClosed = errors.New("voice: transport closed")
)

// Re-exported so callers can classify session errors without importing the
// leaf packages.
var (
	// ErrDeviceUnavailable indicates the microphone or speaker could not be
	// opened. Fatal to Start; never raised against a running session's
	// other resource.
	ErrDeviceUnavailable = audioio.ErrDeviceUnavailable

	// ErrMalformedFrame indicates an inbound frame that could not be
	// decoded. Recoverable: the frame is dropped and the session continues.
	ErrMalformedFrame = codec.ErrMalformedFrame
)

// SchedulingViolationError reports a breach of the playback invariant (two
// frames scheduled on the sink at once). This is a programming defect, not a
// runtime condition; with Config.StrictInvariants set it panics instead.
type SchedulingViolationError struct {
	Cause error
}

func (e *SchedulingViolationError) Error() string {
	return fmt.Sprintf("voice: playback scheduling violation: %v", e.Cause)
}

func (e *SchedulingViolationError) Unwrap() error {
	return e.Cause
}

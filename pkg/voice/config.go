package voice

import (
	"errors"
	"net/http"

	"github.com/middlemgr/voicelink/pkg/audioio"
)

// Config holds session configuration.
type Config struct {
	// EndpointURL is the WebSocket URL of the remote conversational
	// endpoint, e.g. "ws://localhost:8765/ws/voice".
	EndpointURL string

	// Header carries extra HTTP headers for the WebSocket handshake
	// (authorization and the like). May be nil.
	Header http.Header

	// Capture configures the microphone source. The sample rate is a hint;
	// the session reads the negotiated rate back from the device.
	Capture audioio.Config

	// Playback configures the speaker sink. The sample rate is fixed by
	// the protocol; the sink fails rather than resample.
	Playback audioio.Config

	// MaxQueueDepth caps the number of frames awaiting playback.
	// 0 means unbounded, which matches the protocol's 1:1 real-time
	// contract; under a network burst the queue grows instead of dropping
	// audio. When set, the oldest pending frame is discarded and counted,
	// never the currently scheduled one.
	MaxQueueDepth int

	// StrictInvariants makes internal invariant breaches (scheduling
	// violations) panic instead of reporting through OnError. Meant for
	// development builds.
	StrictInvariants bool
}

// DefaultConfig returns a Config for the given endpoint with the protocol's
// audio parameters: 16kHz mono capture in 4096-sample blocks, 24kHz mono
// playback.
func DefaultConfig(endpointURL string) Config {
	return Config{
		EndpointURL: endpointURL,
		Capture:     audioio.DefaultCaptureConfig(),
		Playback:    audioio.DefaultPlaybackConfig(),
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.EndpointURL == "" {
		return errors.New("voice: endpoint URL is required")
	}
	if err := c.Capture.Validate(); err != nil {
		return err
	}
	if err := c.Playback.Validate(); err != nil {
		return err
	}
	if c.MaxQueueDepth < 0 {
		return errors.New("voice: max queue depth must be >= 0")
	}
	return nil
}

//go:build !portaudio

package audioio

import (
	"fmt"
	"log/slog"
)

const portAudioSupported = false

func newPortAudioSource(cfg Config, logger *slog.Logger) (Source, error) {
	return nil, fmt.Errorf("%w: binary built without the portaudio tag", ErrDeviceUnavailable)
}

func newPortAudioSink(cfg Config, logger *slog.Logger) (Sink, error) {
	return nil, fmt.Errorf("%w: binary built without the portaudio tag", ErrDeviceUnavailable)
}

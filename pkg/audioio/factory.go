package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource opens an audio capture source with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
// Open failures are reported as ErrDeviceUnavailable.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"block_size", cfg.BlockSize,
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendPortAudio:
		return newPortAudioSource(cfg, logger)
	default:
		return nil, fmt.Errorf("audioio: unsupported backend: %s", backend)
	}
}

// NewSink opens an audio playback sink with the given configuration.
// If cfg.Backend is BackendAuto, the best available backend is selected.
// Open failures are reported as ErrDeviceUnavailable.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = detectBestBackend()
	}

	logger.Info("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendPortAudio:
		return newPortAudioSink(cfg, logger)
	default:
		return nil, fmt.Errorf("audioio: unsupported backend: %s", backend)
	}
}

// detectBestBackend returns the best backend compiled into this binary.
func detectBestBackend() Backend {
	if portAudioSupported {
		return BackendPortAudio
	}
	return BackendMock
}

// AvailableBackends returns the backends compiled into this binary.
func AvailableBackends() []Backend {
	backends := []Backend{BackendMock}
	if portAudioSupported {
		backends = append(backends, BackendPortAudio)
	}
	return backends
}

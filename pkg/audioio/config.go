// Package audioio provides audio capture and playback for the voicelink
// session client.
//
// Two backends are available:
//   - PortAudio - real microphone/speaker devices (build tag "portaudio")
//   - Mock - synthetic capture and timed playback for CI and tests
//
// The backend is selected via configuration; "auto" picks PortAudio when the
// binary was built with it and falls back to the mock otherwise.
package audioio

import (
	"errors"
	"fmt"
	"time"
)

// ErrDeviceUnavailable indicates the requested input or output device could
// not be opened. It aborts a session start; it never tears down a session
// that is already running.
var ErrDeviceUnavailable = errors.New("audioio: device unavailable")

// ErrAlreadyScheduled indicates Schedule was called while a previous frame
// was still playing. The playback queue must wait for the completion
// callback before scheduling the next frame; hitting this error is a
// programming defect, not a runtime condition.
var ErrAlreadyScheduled = errors.New("audioio: a frame is already scheduled")

// Backend represents the audio backend type.
type Backend string

const (
	// BackendAuto selects the best available backend for this build.
	BackendAuto Backend = "auto"
	// BackendPortAudio uses PortAudio for real device I/O.
	BackendPortAudio Backend = "portaudio"
	// BackendMock uses a synthetic implementation for testing.
	BackendMock Backend = "mock"
)

// Config holds audio device configuration.
type Config struct {
	// Backend specifies which audio backend to use.
	Backend Backend `json:"backend"`

	// SampleRate is the requested sample rate in Hz. For capture this is a
	// hint; the rate the device actually negotiated is reported back via
	// Source.Config(). For playback it is fixed by the protocol and the
	// sink fails with ErrDeviceUnavailable rather than resample.
	SampleRate int `json:"sample_rate"`

	// Channels is the number of audio channels. The wire protocol is mono.
	Channels int `json:"channels"`

	// BlockSize is the number of samples per capture block.
	// 4096 samples is ~256ms at 16kHz.
	BlockSize int `json:"block_size"`

	// Device is the backend-specific device identifier; empty selects the
	// system default.
	Device string `json:"device"`
}

// DefaultCaptureConfig returns the capture configuration the remote endpoint
// expects: 16kHz mono in 4096-sample blocks.
func DefaultCaptureConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: 16000,
		Channels:   1,
		BlockSize:  4096,
	}
}

// DefaultPlaybackConfig returns the playback configuration fixed by the
// protocol: 24kHz mono.
func DefaultPlaybackConfig() Config {
	return Config{
		Backend:    BackendAuto,
		SampleRate: 24000,
		Channels:   1,
		BlockSize:  4096,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("audioio: sample_rate must be positive, got %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("audioio: channels must be positive, got %d", c.Channels)
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("audioio: block_size must be positive, got %d", c.BlockSize)
	}
	return nil
}

// BlockDuration returns the wall-clock duration of one capture block.
func (c *Config) BlockDuration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(c.BlockSize) * time.Second / time.Duration(c.SampleRate)
}

// BlockBytes returns the size of one block in bytes (int16 samples).
func (c *Config) BlockBytes() int {
	return c.BlockSize * c.Channels * 2
}

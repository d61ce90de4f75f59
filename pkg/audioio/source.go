package audioio

import (
	"context"
	"io"
)

// Source captures audio from a microphone or other input device.
//
// The device is opened by the factory; Start begins delivery of fixed-size
// sample blocks on the Stream channel. The delivery goroutine belongs to the
// backend and may run at realtime priority, so consumers must drain the
// channel promptly; a full channel counts an overrun and the block is
// dropped rather than stalling capture.
type Source interface {
	// Start begins audio capture.
	Start(ctx context.Context) error

	// Stop halts audio capture and closes the Stream channel.
	// It is safe to call Stop multiple times.
	Stop() error

	// Stream returns the channel delivering capture blocks.
	Stream() <-chan Frame

	// Config returns the negotiated audio configuration. The sample rate
	// here is what the hardware actually granted, which may differ from the
	// hint the source was opened with; downstream code must use this value.
	Config() Config

	// Name returns the backend name ("portaudio", "mock").
	Name() string

	// Close releases the device. After Close the source cannot be
	// restarted. Safe to call on every exit path, including after Stop.
	io.Closer
}

// SourceStats contains statistics about a capture source.
type SourceStats struct {
	// BlocksRead is the total number of blocks delivered.
	BlocksRead int64 `json:"blocks_read"`

	// SamplesRead is the total number of samples delivered.
	SamplesRead int64 `json:"samples_read"`

	// Overruns is the number of blocks dropped because the consumer fell
	// behind the capture deadline.
	Overruns int64 `json:"overruns"`

	// Running indicates if the source is currently capturing.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SourceWithStats extends Source with statistics.
type SourceWithStats interface {
	Source
	Stats() SourceStats
}

package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker or other output device.
//
// Playback is completion-driven: Schedule accepts exactly one frame at a
// time and fires onComplete once the frame has finished playing (never when
// it starts). That completion signal is the sole clock the playback queue
// uses to schedule the next frame, which is what makes sequential playback
// gapless without overlap.
type Sink interface {
	// Start prepares the device for playback.
	Start(ctx context.Context) error

	// Schedule enqueues one decoded frame for immediate-or-next playback.
	// onComplete fires exactly once, after the frame finished playing, on a
	// backend-owned goroutine. Scheduling while a frame is still playing
	// returns ErrAlreadyScheduled. Frames discarded by Clear or Stop do not
	// fire onComplete.
	Schedule(frame Frame, onComplete func()) error

	// Clear discards any scheduled frame immediately.
	Clear() error

	// Stop halts playback, discarding any scheduled frame.
	// It is safe to call Stop multiple times.
	Stop() error

	// Config returns the playback configuration.
	Config() Config

	// Name returns the backend name ("portaudio", "mock").
	Name() string

	// Close releases the device. Idempotent.
	io.Closer
}

// SinkStats contains statistics about a playback sink.
type SinkStats struct {
	// FramesScheduled is the total number of frames accepted by Schedule.
	FramesScheduled int64 `json:"frames_scheduled"`

	// FramesCompleted is the total number of completion callbacks fired.
	FramesCompleted int64 `json:"frames_completed"`

	// SamplesPlayed is the total number of samples played to completion.
	SamplesPlayed int64 `json:"samples_played"`

	// Running indicates if the sink is currently open for playback.
	Running bool `json:"running"`

	// Backend is the name of the audio backend.
	Backend string `json:"backend"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}

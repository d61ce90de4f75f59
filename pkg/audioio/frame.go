package audioio

import "time"

// Frame is an immutable block of PCM16 samples plus its format. Ownership
// transfers from producer to consumer along the pipeline; no two stages hold
// the same frame at once.
type Frame struct {
	// Samples contains PCM16 audio samples (little-endian on the wire).
	Samples []int16

	// SampleRate is the sample rate of this frame in Hz.
	SampleRate int

	// Channels is the number of interleaved channels.
	Channels int
}

// FrameFromBytes builds a frame from raw PCM16LE bytes.
// A trailing odd byte is the caller's bug to catch; the protocol layer
// rejects odd-length payloads before frames are built on the receive path.
func FrameFromBytes(data []byte, sampleRate, channels int) Frame {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(data[i*2]) | int16(data[i*2+1])<<8
	}
	return Frame{Samples: samples, SampleRate: sampleRate, Channels: channels}
}

// Bytes returns the frame's samples as raw PCM16LE bytes.
func (f *Frame) Bytes() []byte {
	buf := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		buf[i*2] = byte(s)
		buf[i*2+1] = byte(uint16(s) >> 8)
	}
	return buf
}

// Duration returns the playback duration of this frame.
func (f *Frame) Duration() time.Duration {
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	frames := len(f.Samples) / f.Channels
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

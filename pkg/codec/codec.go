// Package codec converts between normalized float32 audio samples and the
// PCM16LE byte frames carried on the wire, plus the base64 transport text
// encoding used inside JSON envelopes.
//
// All functions are pure; the package holds no state.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrMalformedFrame indicates PCM bytes or transport text that cannot be
// decoded: an odd byte count (truncated trailing sample) or invalid base64.
var ErrMalformedFrame = errors.New("codec: malformed frame")

// EncodeFloat32 converts normalized samples to PCM16LE bytes.
//
// Samples are clamped to [-1, 1]. Scaling is asymmetric: negative values are
// scaled by 32768 and positive values by 32767 so that +1.0 cannot overflow
// int16.
func EncodeFloat32(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s < -1 {
			s = -1
		} else if s > 1 {
			s = 1
		}

		var v int16
		if s < 0 {
			v = int16(s * 32768)
		} else {
			v = int16(s * 32767)
		}

		out[i*2] = byte(v)
		out[i*2+1] = byte(uint16(v) >> 8)
	}
	return out
}

// DecodeFloat32 converts PCM16LE bytes back to normalized samples, dividing
// by 32768.0.
//
// A byte length that is not a multiple of two means the final sample was
// truncated in transit; that is reported as ErrMalformedFrame rather than
// silently dropped so the caller can detect truncation.
func DecodeFloat32(pcm []byte) ([]float32, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of samples", ErrMalformedFrame, len(pcm))
	}

	out := make([]float32, len(pcm)/2)
	for i := range out {
		v := int16(pcm[i*2]) | int16(pcm[i*2+1])<<8
		out[i] = float32(v) / 32768.0
	}
	return out, nil
}

// EncodeTransport encodes PCM bytes as base64 transport text.
func EncodeTransport(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeTransport decodes base64 transport text back to PCM bytes.
// Invalid alphabet or padding is reported as ErrMalformedFrame.
func DecodeTransport(text string) ([]byte, error) {
	pcm, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return pcm, nil
}

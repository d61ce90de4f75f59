package codec

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	samples := make([]float32, 4096)
	for i := range samples {
		samples[i] = rng.Float32()*2 - 1
	}
	// Include the edges explicitly.
	samples[0] = -1.0
	samples[1] = 1.0
	samples[2] = 0.0

	pcm := EncodeFloat32(samples)
	if len(pcm) != len(samples)*2 {
		t.Fatalf("encoded length = %d, want %d", len(pcm), len(samples)*2)
	}

	decoded, err := DecodeFloat32(pcm)
	if err != nil {
		t.Fatalf("DecodeFloat32() error = %v", err)
	}
	if len(decoded) != len(samples) {
		t.Fatalf("decoded length = %d, want %d", len(decoded), len(samples))
	}

	// Quantization bound: one int16 step.
	const bound = 1.0 / 32768.0
	for i := range samples {
		if diff := math.Abs(float64(decoded[i] - samples[i])); diff > bound {
			t.Fatalf("sample %d: |%v - %v| = %v exceeds %v", i, decoded[i], samples[i], diff, bound)
		}
	}
}

func TestEncodeClamps(t *testing.T) {
	pcm := EncodeFloat32([]float32{-2.5, 2.5})
	decoded, err := DecodeFloat32(pcm)
	if err != nil {
		t.Fatalf("DecodeFloat32() error = %v", err)
	}
	if decoded[0] != -1.0 {
		t.Errorf("clamped negative = %v, want -1.0", decoded[0])
	}
	if decoded[1] < 0.999 {
		t.Errorf("clamped positive = %v, want ~1.0", decoded[1])
	}
}

func TestEncodeFullScalePositiveDoesNotWrap(t *testing.T) {
	pcm := EncodeFloat32([]float32{1.0})
	v := int16(pcm[0]) | int16(pcm[1])<<8
	if v != 32767 {
		t.Errorf("+1.0 encoded as %d, want 32767", v)
	}
}

func TestDecodeOddLength(t *testing.T) {
	for _, n := range []int{1, 3, 4095} {
		if _, err := DecodeFloat32(make([]byte, n)); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("DecodeFloat32(len=%d) error = %v, want ErrMalformedFrame", n, err)
		}
	}
}

func TestDecodeEmpty(t *testing.T) {
	decoded, err := DecodeFloat32(nil)
	if err != nil {
		t.Fatalf("DecodeFloat32(nil) error = %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("decoded length = %d, want 0", len(decoded))
	}
}

func TestTransportRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	for _, n := range []int{0, 1, 2, 17, 8192} {
		buf := make([]byte, n)
		rng.Read(buf)

		got, err := DecodeTransport(EncodeTransport(buf))
		if err != nil {
			t.Fatalf("DecodeTransport() error = %v", err)
		}
		if !bytes.Equal(got, buf) {
			t.Fatalf("round trip mismatch at length %d", n)
		}
	}
}

func TestDecodeTransportInvalid(t *testing.T) {
	for _, text := range []string{"!!!!", "AAA", "A===", "AA=A"} {
		if _, err := DecodeTransport(text); !errors.Is(err, ErrMalformedFrame) {
			t.Errorf("DecodeTransport(%q) error = %v, want ErrMalformedFrame", text, err)
		}
	}
}

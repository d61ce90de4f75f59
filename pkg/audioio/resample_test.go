package audioio

import (
	"math"
	"testing"
)

func sine(rate, n int, freq float64) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = int16(0.5 * 32767 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
	}
	return out
}

func TestResampleIdentity(t *testing.T) {
	in := sine(16000, 1600, 440)
	out := Resample(in, 16000, 16000)
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("sample %d changed on identity resample", i)
		}
	}
}

func TestResampleUpLength(t *testing.T) {
	// 16kHz -> 24kHz is the devserver echo path.
	in := sine(16000, 1600, 440)
	out := Resample(in, 16000, 24000)

	want := 2400
	if len(out) != want {
		t.Errorf("length = %d, want %d", len(out), want)
	}
}

func TestResampleDownLength(t *testing.T) {
	in := sine(48000, 4800, 440)
	out := Resample(in, 48000, 16000)

	want := 1600
	if len(out) != want {
		t.Errorf("length = %d, want %d", len(out), want)
	}
}

func TestResamplePreservesPower(t *testing.T) {
	in := sine(16000, 16000, 440)
	out := Resample(in, 16000, 24000)

	inRMS := CalculateRMS(in)
	outRMS := CalculateRMS(out)

	if math.Abs(inRMS-outRMS)/inRMS > 0.05 {
		t.Errorf("RMS drifted: in=%v out=%v", inRMS, outRMS)
	}
}

func TestResampleEmpty(t *testing.T) {
	if out := Resample(nil, 16000, 24000); len(out) != 0 {
		t.Errorf("resampling nil produced %d samples", len(out))
	}
}

func TestResampleBytes(t *testing.T) {
	f := Frame{Samples: sine(16000, 160, 440), SampleRate: 16000, Channels: 1}
	out := ResampleBytes(f.Bytes(), 16000, 24000)

	if len(out) != 240*2 {
		t.Errorf("byte length = %d, want %d", len(out), 240*2)
	}
	if len(out)%2 != 0 {
		t.Error("resampled bytes are not whole samples")
	}
}

func TestCalculateRMS(t *testing.T) {
	if rms := CalculateRMS(nil); rms != 0 {
		t.Errorf("RMS of empty = %v, want 0", rms)
	}
	if rms := CalculateRMS(make([]int16, 100)); rms != 0 {
		t.Errorf("RMS of silence = %v, want 0", rms)
	}
	if rms := CalculateRMS(sine(16000, 1600, 440)); rms <= 0 || rms > 1 {
		t.Errorf("RMS of sine = %v, want (0,1]", rms)
	}
}

package audioio

import "math"

// Resample converts audio from one sample rate to another using linear
// interpolation. Good enough for speech; not intended for music.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(float64(len(samples)) / ratio)
	if newLen == 0 {
		return []int16{}
	}

	result := make([]int16, newLen)
	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		if srcIdx >= len(samples)-1 {
			result[i] = samples[len(samples)-1]
		} else {
			s1 := float64(samples[srcIdx])
			s2 := float64(samples[srcIdx+1])
			result[i] = int16(s1 + frac*(s2-s1))
		}
	}

	return result
}

// ResampleBytes resamples raw PCM16LE bytes.
func ResampleBytes(data []byte, fromRate, toRate int) []byte {
	f := FrameFromBytes(data, fromRate, 1)
	resampled := Frame{
		Samples:    Resample(f.Samples, fromRate, toRate),
		SampleRate: toRate,
		Channels:   1,
	}
	return resampled.Bytes()
}

// CalculateRMS returns the normalized root mean square power of samples,
// between 0.0 and 1.0. Used for zero-gain input metering only; capture audio
// is never routed to the output device.
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}

	return math.Sqrt(sum/float64(len(samples))) / 32767
}

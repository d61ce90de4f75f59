package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/middlemgr/voicelink/pkg/audioio"
)

// meterInterval is how often the input level line is refreshed.
const meterInterval = time.Second

// meteredSource wraps a capture source and prints an input level bar as
// blocks flow through. Monitoring only; samples pass through untouched and
// are never routed to the output device.
type meteredSource struct {
	audioio.Source

	once sync.Once
	out  chan audioio.Frame
}

func newMeteredSource(src audioio.Source) *meteredSource {
	return &meteredSource{Source: src}
}

func (m *meteredSource) Stream() <-chan audioio.Frame {
	m.once.Do(func() {
		m.out = make(chan audioio.Frame, 10)
		go m.pump()
	})
	return m.out
}

func (m *meteredSource) pump() {
	defer close(m.out)

	var last time.Time
	for frame := range m.Source.Stream() {
		if time.Since(last) >= meterInterval {
			fmt.Printf("🎙 %s\n", levelBar(audioio.CalculateRMS(frame.Samples)))
			last = time.Now()
		}
		m.out <- frame
	}
}

// levelBar renders an RMS level in [0,1] as a fixed-width bar.
func levelBar(rms float64) string {
	const width = 30
	n := int(rms * width)
	if n > width {
		n = width
	}
	return strings.Repeat("█", n) + strings.Repeat("░", width-n)
}

package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/middlemgr/voicelink/pkg/codec"
)

// MockSource is a synthetic capture source for CI and tests.
// It delivers silence or a sine wave in fixed-size blocks on a real-time
// ticker, mimicking a hardware capture callback.
type MockSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	running  bool
	closed   bool
	streamCh chan Frame
	stopCh   chan struct{}

	// Stats
	blocksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64

	// Synthetic audio generation
	phase     float64
	frequency float64 // Hz, 0 = silence
	amplitude float64 // 0.0 to 1.0

	// interval overrides the block-duration tick; used to speed up tests.
	interval time.Duration
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave configures the mock to generate a sine wave.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		m.frequency = frequency
		m.amplitude = amplitude
	}
}

// WithNegotiatedRate simulates hardware that did not honor the rate hint.
// The source reports rate via Config() and generates blocks at that rate.
func WithNegotiatedRate(rate int) MockSourceOption {
	return func(m *MockSource) {
		m.cfg.SampleRate = rate
	}
}

// WithTickInterval overrides the real-time block pacing.
// Tests use this to produce blocks faster than wall-clock audio.
func WithTickInterval(d time.Duration) MockSourceOption {
	return func(m *MockSource) {
		m.interval = d
	}
}

// NewMockSource creates a new mock capture source.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSource{
		cfg:       cfg,
		logger:    logger,
		streamCh:  make(chan Frame, 10),
		stopCh:    make(chan struct{}),
		frequency: 0, // silence by default
		amplitude: 0.5,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.interval == 0 {
		m.interval = m.cfg.BlockDuration()
	}

	return m
}

// Start begins generating blocks.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.running {
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan Frame, 10)

	go m.generateLoop(ctx, m.streamCh, m.stopCh)

	m.logger.Debug("mock audio source started",
		"sample_rate", m.cfg.SampleRate,
		"block_size", m.cfg.BlockSize,
		"frequency", m.frequency,
	)

	return nil
}

// generateLoop owns the delivery channel: it is the only goroutine that
// sends on out and the only one that closes it, so Stop during live capture
// can never race a send against the close.
func (m *MockSource) generateLoop(ctx context.Context, out chan Frame, stop chan struct{}) {
	defer close(out)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
			frame := m.generateBlock()
			select {
			case out <- frame:
				m.blocksRead.Add(1)
				m.samplesRead.Add(int64(len(frame.Samples)))
			default:
				// Consumer missed the block deadline; drop rather than stall.
				m.overruns.Add(1)
			}
		}
	}
}

// generateBlock synthesizes one block in normalized float32, the format a
// real capture device produces, and converts it to PCM16 at the boundary.
func (m *MockSource) generateBlock() Frame {
	vals := make([]float32, m.cfg.BlockSize*m.cfg.Channels)

	if m.frequency > 0 {
		for i := 0; i < m.cfg.BlockSize; i++ {
			s := float32(m.amplitude * math.Sin(2*math.Pi*m.frequency*m.phase/float64(m.cfg.SampleRate)))

			for ch := 0; ch < m.cfg.Channels; ch++ {
				vals[i*m.cfg.Channels+ch] = s
			}

			m.phase++
			if m.phase >= float64(m.cfg.SampleRate) {
				m.phase = 0
			}
		}
	}
	// else: silence

	return FrameFromBytes(codec.EncodeFloat32(vals), m.cfg.SampleRate, m.cfg.Channels)
}

// Stop halts block generation. The producer goroutine closes the stream
// channel on its way out.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	m.running = false
	close(m.stopCh)

	m.logger.Debug("mock audio source stopped")

	return nil
}

// Stream returns the block delivery channel.
func (m *MockSource) Stream() <-chan Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the negotiated configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close releases the source.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.Stop()
	return nil
}

// Stats returns capture statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		BlocksRead:  m.blocksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     "mock",
	}
}

// Ensure MockSource implements SourceWithStats.
var _ SourceWithStats = (*MockSource)(nil)

// MockSink is a playback sink that simulates completion timing without a
// device. A scheduled frame "plays" for its real duration (scaled by the
// time-scale option) and then fires its completion callback, so queue
// ordering and gapless-scheduling behavior can be tested deterministically.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	running   bool
	closed    bool
	scheduled bool
	timer     *time.Timer
	gen       uint64 // invalidates in-flight timers on Clear/Stop

	timeScale float64
	failOpen  bool

	// Stats
	framesScheduled atomic.Int64
	framesCompleted atomic.Int64
	samplesPlayed   atomic.Int64
}

// MockSinkOption configures a MockSink.
type MockSinkOption func(*MockSink)

// WithTimeScale scales simulated playback time. 0.1 plays a 256ms frame in
// 25.6ms. Values <= 0 are treated as 1.0.
func WithTimeScale(scale float64) MockSinkOption {
	return func(m *MockSink) {
		m.timeScale = scale
	}
}

// WithOpenFailure makes Start fail with ErrDeviceUnavailable.
// Used to test session start-abort paths.
func WithOpenFailure() MockSinkOption {
	return func(m *MockSink) {
		m.failOpen = true
	}
}

// NewMockSink creates a new mock playback sink.
func NewMockSink(cfg Config, logger *slog.Logger, opts ...MockSinkOption) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}

	m := &MockSink{
		cfg:       cfg,
		logger:    logger,
		timeScale: 1.0,
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.timeScale <= 0 {
		m.timeScale = 1.0
	}

	return m
}

// Start prepares the sink for playback.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	if m.failOpen {
		return ErrDeviceUnavailable
	}

	m.running = true
	m.logger.Debug("mock audio sink started", "sample_rate", m.cfg.SampleRate)

	return nil
}

// Schedule accepts one frame and fires onComplete after its scaled duration.
func (m *MockSink) Schedule(frame Frame, onComplete func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}
	if m.scheduled {
		return ErrAlreadyScheduled
	}

	m.scheduled = true
	m.framesScheduled.Add(1)

	gen := m.gen
	wait := time.Duration(float64(frame.Duration()) * m.timeScale)
	samples := int64(len(frame.Samples))

	m.timer = time.AfterFunc(wait, func() {
		m.mu.Lock()
		if m.gen != gen {
			// Cleared or stopped while the timer was pending.
			m.mu.Unlock()
			return
		}
		m.scheduled = false
		m.mu.Unlock()

		m.framesCompleted.Add(1)
		m.samplesPlayed.Add(samples)

		if onComplete != nil {
			onComplete()
		}
	})

	return nil
}

// Clear discards the scheduled frame without firing its completion.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
	return nil
}

func (m *MockSink) clearLocked() {
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.scheduled = false
}

// Stop halts playback, discarding any scheduled frame.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clearLocked()
	m.running = false
	m.logger.Debug("mock audio sink stopped")

	return nil
}

// Config returns the playback configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Close releases the sink.
func (m *MockSink) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.Stop()
	return nil
}

// Stats returns playback statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SinkStats{
		FramesScheduled: m.framesScheduled.Load(),
		FramesCompleted: m.framesCompleted.Load(),
		SamplesPlayed:   m.samplesPlayed.Load(),
		Running:         running,
		Backend:         "mock",
	}
}

// Ensure MockSink implements SinkWithStats.
var _ SinkWithStats = (*MockSink)(nil)

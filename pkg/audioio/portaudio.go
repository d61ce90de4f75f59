//go:build portaudio

package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/middlemgr/voicelink/pkg/codec"
)

const portAudioSupported = true

// PortAudio requires global init/terminate bracketing. Reference-count opens
// so multiple sources/sinks in one process share a single initialization.
var (
	paMu   sync.Mutex
	paRefs int
)

func paAcquire() error {
	paMu.Lock()
	defer paMu.Unlock()
	if paRefs == 0 {
		if err := portaudio.Initialize(); err != nil {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}
	paRefs++
	return nil
}

func paRelease() {
	paMu.Lock()
	defer paMu.Unlock()
	paRefs--
	if paRefs == 0 {
		portaudio.Terminate()
	}
}

// PortAudioSource captures microphone audio through PortAudio.
type PortAudioSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	stream   *portaudio.Stream
	buf      []float32
	running  bool
	closed   bool
	streamCh chan Frame
	stopCh   chan struct{}

	blocksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// newPortAudioSource opens the default input device as close as possible to
// the configured rate hint. The negotiated rate is read back from the stream
// and reported via Config().
func newPortAudioSource(cfg Config, logger *slog.Logger) (*PortAudioSource, error) {
	if err := paAcquire(); err != nil {
		return nil, err
	}

	// The device runs in normalized float32; samples are converted to PCM16
	// at the frame boundary.
	buf := make([]float32, cfg.BlockSize*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.BlockSize, buf)
	if err != nil {
		paRelease()
		return nil, fmt.Errorf("%w: open input stream: %v", ErrDeviceUnavailable, err)
	}

	// Hardware may not honor the hint exactly; everything downstream must
	// use the rate the stream actually negotiated.
	if info := stream.Info(); info != nil && info.SampleRate > 0 {
		cfg.SampleRate = int(info.SampleRate)
	}

	s := &PortAudioSource{
		cfg:      cfg,
		logger:   logger,
		stream:   stream,
		buf:      buf,
		streamCh: make(chan Frame, 10),
		stopCh:   make(chan struct{}),
	}

	logger.Info("portaudio source opened",
		"negotiated_rate", cfg.SampleRate,
		"block_size", cfg.BlockSize,
	)

	return s, nil
}

// Start begins audio capture.
func (s *PortAudioSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("%w: start input stream: %v", ErrDeviceUnavailable, err)
	}

	s.running = true
	s.stopCh = make(chan struct{})
	s.streamCh = make(chan Frame, 10)

	go s.captureLoop(ctx, s.streamCh, s.stopCh)

	return nil
}

// captureLoop owns the delivery channel: it is the only goroutine that sends
// on out and the only one that closes it, so Stop during live capture can
// never race a send against the close.
func (s *PortAudioSource) captureLoop(ctx context.Context, out chan Frame, stop chan struct{}) {
	defer close(out)

	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return
		case <-stop:
			return
		default:
		}

		// Blocks until a full 4096-sample block is available.
		if err := s.stream.Read(); err != nil {
			select {
			case <-stop:
			default:
				s.logger.Error("portaudio read failed", "error", err)
				s.Stop()
			}
			return
		}

		frame := FrameFromBytes(codec.EncodeFloat32(s.buf), s.cfg.SampleRate, s.cfg.Channels)
		select {
		case out <- frame:
			s.blocksRead.Add(1)
			s.samplesRead.Add(int64(len(frame.Samples)))
		default:
			s.overruns.Add(1)
		}
	}
}

// Stop halts capture. Abort unblocks a pending device read; the capture
// goroutine closes the stream channel on its way out.
func (s *PortAudioSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.running = false
	close(s.stopCh)
	s.stream.Abort()

	return nil
}

// Stream returns the block delivery channel.
func (s *PortAudioSource) Stream() <-chan Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the negotiated configuration.
func (s *PortAudioSource) Config() Config {
	return s.cfg
}

// Name returns "portaudio".
func (s *PortAudioSource) Name() string {
	return "portaudio"
}

// Close releases the device.
func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	err := s.stream.Close()
	paRelease()
	return err
}

// Stats returns capture statistics.
func (s *PortAudioSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		BlocksRead:  s.blocksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "portaudio",
	}
}

var _ SourceWithStats = (*PortAudioSource)(nil)

// PortAudioSink plays audio through the default PortAudio output device.
type PortAudioSink struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.Mutex
	stream    *portaudio.Stream
	buf       []float32
	running   bool
	closed    bool
	scheduled bool
	gen       uint64

	framesScheduled atomic.Int64
	framesCompleted atomic.Int64
	samplesPlayed   atomic.Int64
}

// newPortAudioSink opens the default output device at exactly the configured
// rate. The playback rate is fixed by the protocol: if the device cannot run
// at it, opening fails rather than resampling incorrectly.
func newPortAudioSink(cfg Config, logger *slog.Logger) (*PortAudioSink, error) {
	if err := paAcquire(); err != nil {
		return nil, err
	}

	buf := make([]float32, cfg.BlockSize*cfg.Channels)
	stream, err := portaudio.OpenDefaultStream(0, cfg.Channels, float64(cfg.SampleRate), cfg.BlockSize, buf)
	if err != nil {
		paRelease()
		return nil, fmt.Errorf("%w: open output stream: %v", ErrDeviceUnavailable, err)
	}

	if info := stream.Info(); info != nil && info.SampleRate > 0 && int(info.SampleRate) != cfg.SampleRate {
		stream.Close()
		paRelease()
		return nil, fmt.Errorf("%w: device negotiated %dHz, protocol requires %dHz",
			ErrDeviceUnavailable, int(info.SampleRate), cfg.SampleRate)
	}

	s := &PortAudioSink{
		cfg:    cfg,
		logger: logger,
		stream: stream,
		buf:    buf,
	}

	logger.Info("portaudio sink opened", "sample_rate", cfg.SampleRate)

	return s, nil
}

// Start prepares the device for playback.
func (s *PortAudioSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	if err := s.stream.Start(); err != nil {
		return fmt.Errorf("%w: start output stream: %v", ErrDeviceUnavailable, err)
	}

	s.running = true
	return nil
}

// Schedule writes one frame to the device and fires onComplete after the
// final block has drained past the device's output latency.
func (s *PortAudioSink) Schedule(frame Frame, onComplete func()) error {
	s.mu.Lock()
	if s.closed || !s.running {
		s.mu.Unlock()
		return io.ErrClosedPipe
	}
	if s.scheduled {
		s.mu.Unlock()
		return ErrAlreadyScheduled
	}
	s.scheduled = true
	s.framesScheduled.Add(1)
	gen := s.gen
	s.mu.Unlock()

	go s.playFrame(frame, gen, onComplete)
	return nil
}

func (s *PortAudioSink) playFrame(frame Frame, gen uint64, onComplete func()) {
	vals, err := codec.DecodeFloat32(frame.Bytes())
	if err != nil {
		// Frames are built from whole samples; this cannot happen.
		s.logger.Error("undecodable frame", "error", err)
		return
	}

	block := len(s.buf)

	for off := 0; off < len(vals); off += block {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return // cleared or stopped mid-frame
		}

		end := off + block
		if end > len(vals) {
			end = len(vals)
		}
		n := copy(s.buf, vals[off:end])
		for i := n; i < block; i++ {
			s.buf[i] = 0 // pad the final partial block with silence
		}

		err := s.stream.Write()
		s.mu.Unlock()

		if err != nil {
			s.logger.Error("portaudio write failed", "error", err)
			return
		}
	}

	// Write returns when the buffer is queued, not played; allow the device
	// latency to drain so completion never fires early.
	var latency time.Duration
	if info := s.stream.Info(); info != nil {
		latency = info.OutputLatency
	}
	time.Sleep(latency)

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return
	}
	s.scheduled = false
	s.mu.Unlock()

	s.framesCompleted.Add(1)
	s.samplesPlayed.Add(int64(len(frame.Samples)))

	if onComplete != nil {
		onComplete()
	}
}

// Clear discards the scheduled frame without firing its completion.
func (s *PortAudioSink) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.scheduled = false
	return nil
}

// Stop halts playback, discarding any scheduled frame.
func (s *PortAudioSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.gen++
	s.scheduled = false
	s.running = false
	s.stream.Abort()

	return nil
}

// Config returns the playback configuration.
func (s *PortAudioSink) Config() Config {
	return s.cfg
}

// Name returns "portaudio".
func (s *PortAudioSink) Name() string {
	return "portaudio"
}

// Close releases the device.
func (s *PortAudioSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Stop()
	err := s.stream.Close()
	paRelease()
	return err
}

// Stats returns playback statistics.
func (s *PortAudioSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SinkStats{
		FramesScheduled: s.framesScheduled.Load(),
		FramesCompleted: s.framesCompleted.Load(),
		SamplesPlayed:   s.samplesPlayed.Load(),
		Running:         running,
		Backend:         "portaudio",
	}
}

var _ SinkWithStats = (*PortAudioSink)(nil)

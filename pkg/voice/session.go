package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/middlemgr/voicelink/pkg/audioio"
	"github.com/middlemgr/voicelink/pkg/protocol"
	"github.com/middlemgr/voicelink/pkg/transport"
)

// Link is the transport the session speaks through. *transport.Link
// implements it; tests substitute an in-memory fake.
type Link interface {
	// Connect establishes the connection. The context bounds the dial only.
	Connect(ctx context.Context) error

	// Send queues one outbound message without blocking.
	Send(msg *protocol.Message) error

	// Close shuts the link down. Idempotent.
	Close() error

	// OnOpen registers the connection-established callback.
	OnOpen(fn func())

	// OnMessage registers the inbound-message callback.
	OnMessage(fn func(*protocol.Message))

	// OnMalformed registers the callback for undecodable inbound frames.
	OnMalformed(fn func(error))

	// OnClose registers the link-down callback; err is nil for a local
	// Close and non-nil for transport failures.
	OnClose(fn func(err error))
}

// Session is one active voice interaction. It is owned by the caller that
// Started it; Stop may be called from any goroutine and blocks until every
// resource is released.
type Session struct {
	cfg    Config
	base   *slog.Logger // as given at New; session_id is attached per Start
	logger *slog.Logger

	newSource func(audioio.Config, *slog.Logger) (audioio.Source, error)
	newSink   func(audioio.Config, *slog.Logger) (audioio.Sink, error)
	newLink   func() Link

	// mu is the single serialization point for the state machine and the
	// playback queue; both the transport delivery goroutine and the sink
	// completion goroutine mutate them.
	mu          sync.Mutex
	state       State
	epoch       uint64 // bumped on every teardown; stale callbacks no-op
	id          string
	source      audioio.Source
	sink        audioio.Sink
	link        Link
	queue       playbackQueue
	captureDone chan struct{}
	fatalErr    error // cause of the most recent involuntary teardown

	stats counters

	onState      func(State)
	onTranscript func(text string)
	onError      func(error)
}

// Option customizes a Session.
type Option func(*Session)

// WithSourceFactory overrides how the capture source is opened.
func WithSourceFactory(fn func(audioio.Config, *slog.Logger) (audioio.Source, error)) Option {
	return func(s *Session) { s.newSource = fn }
}

// WithSinkFactory overrides how the playback sink is opened.
func WithSinkFactory(fn func(audioio.Config, *slog.Logger) (audioio.Sink, error)) Option {
	return func(s *Session) { s.newSink = fn }
}

// WithLinkFactory overrides how the transport link is built.
func WithLinkFactory(fn func() Link) Option {
	return func(s *Session) { s.newLink = fn }
}

// New creates a Session. No resources are acquired until Start.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		cfg:       cfg,
		base:      logger,
		logger:    logger,
		newSource: audioio.NewSource,
		newSink:   audioio.NewSink,
		state:     StateIdle,
	}
	s.newLink = func() Link {
		return transport.NewLink(cfg.EndpointURL, cfg.Header, logger)
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnState registers the state-change callback. Register before Start.
// Callbacks run on session goroutines and must not block.
func (s *Session) OnState(fn func(State)) { s.onState = fn }

// OnTranscript registers the callback for informational transcript text.
// Transcripts never affect session state.
func (s *Session) OnTranscript(fn func(text string)) { s.onTranscript = fn }

// OnError registers the error callback. Recoverable errors (malformed
// frames) arrive while the session keeps running; fatal errors arrive after
// the session has already gone idle.
func (s *Session) OnError(fn func(error)) { s.onError = fn }

// ID returns the session ID assigned by the most recent Start.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	st := s.stats.snapshot()
	s.mu.Lock()
	st.QueueHighWater = s.queue.highWater
	st.QueueDiscarded = s.queue.discarded
	s.mu.Unlock()
	return st
}

// Start brings the session up: playback sink first (its failure aborts
// everything cleanly, before any other resource exists), then the transport
// link; once the link reports open, capture starts and the session is
// listening. Start returns with the session listening, or with no resources
// held on error.
//
// Only valid from idle. The context bounds the dial; the running session is
// not tied to it.
func (s *Session) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	epoch := s.epoch
	s.id = uuid.NewString()
	s.stats.reset()
	s.queue = playbackQueue{}
	s.fatalErr = nil
	logger := s.base.With("session_id", s.id)
	s.setStateLocked(StateConnecting)
	s.mu.Unlock()

	logger.Info("starting voice session")

	// Sink first: output device acquisition is the step most likely to need
	// a user gesture or permission, and its failure must leave nothing else
	// open.
	sink, err := s.newSink(s.cfg.Playback, logger)
	if err == nil {
		if err = sink.Start(ctx); err != nil {
			sink.Close()
		}
	}
	if err != nil {
		s.abortStart(epoch)
		return fmt.Errorf("voice: open playback sink: %w", err)
	}

	link := s.newLink()
	link.OnOpen(func() { s.handleOpen(epoch) })
	link.OnMessage(func(msg *protocol.Message) { s.handleMessage(epoch, msg) })
	link.OnMalformed(func(err error) { s.handleMalformed(epoch, err) })
	link.OnClose(func(err error) { s.handleLinkClose(epoch, err) })

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		sink.Close()
		return ErrStopped
	}
	s.sink = sink
	s.link = link
	s.logger = logger
	s.mu.Unlock()

	if err := link.Connect(ctx); err != nil {
		s.shutdown(nil)
		return err
	}

	// handleOpen ran inside Connect; if the capture device failed the
	// session has already torn down.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		if s.fatalErr != nil {
			return s.fatalErr
		}
		return ErrStopped
	}
	return nil
}

// Stop tears the session down: capture source, transport link, playback
// sink, in that order, every close attempted even if an earlier one fails.
// The pending queue is discarded. Idempotent; calling Stop on an idle
// session is a no-op. Blocks until all resources are released so a
// subsequent Start cannot race in-flight teardown.
func (s *Session) Stop() error {
	done, err := s.shutdown(nil)
	if done != nil {
		<-done
	}
	return err
}

// abortStart returns to idle after a failure before any resource was stored
// on the session.
func (s *Session) abortStart(epoch uint64) {
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}
	changed, cb := s.setStateLocked(StateIdle), s.onState
	s.mu.Unlock()
	if changed && cb != nil {
		cb(StateIdle)
	}
}

// handleOpen runs when the transport reports open: acquire the microphone
// and start streaming. A capture-device failure here is fatal to the whole
// session (teardown of the already-open sink and link included).
func (s *Session) handleOpen(epoch uint64) {
	s.stats.markConnected()

	src, err := s.newSource(s.cfg.Capture, s.logger)
	if err == nil {
		if err = src.Start(context.Background()); err != nil {
			src.Close()
		}
	}
	if err != nil {
		s.shutdown(fmt.Errorf("voice: open capture source: %w", err))
		return
	}

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		src.Close()
		return
	}
	s.source = src
	done := make(chan struct{})
	s.captureDone = done
	link := s.link
	// An inbound frame can beat the open signal; when playback already moved
	// the session to speaking, capture still starts but the state stands.
	changed := false
	if s.state == StateConnecting {
		changed = s.setStateLocked(StateListening)
	}
	cb := s.onState
	s.mu.Unlock()

	negotiated := src.Config()
	s.logger.Info("listening",
		"backend", src.Name(),
		"negotiated_rate", negotiated.SampleRate,
		"block_size", negotiated.BlockSize,
	)

	go s.captureLoop(epoch, src, link, done)

	if changed && cb != nil {
		cb(StateListening)
	}
}

// captureLoop forwards capture blocks to the transport. It runs until the
// source's stream channel closes (on Stop/Close) and never blocks on the
// socket: Link.Send queues or fails immediately, keeping the hand-off from
// the audio callback inside its real-time deadline.
func (s *Session) captureLoop(epoch uint64, src audioio.Source, link Link, done chan struct{}) {
	defer close(done)

	for frame := range src.Stream() {
		s.mu.Lock()
		stale := s.epoch != epoch
		st := s.state
		s.mu.Unlock()

		if stale {
			return
		}
		// Full duplex: blocks flow in listening, speaking and processing
		// alike. The remote endpoint owns echo and interruption policy.
		if st != StateListening && st != StateSpeaking && st != StateProcessing {
			continue
		}

		pcm := frame.Bytes()
		if err := link.Send(protocol.NewAudioMessage(pcm)); err != nil {
			if errors.Is(err, transport.ErrClosed) {
				// Link teardown is already reporting the failure.
				return
			}
			s.shutdown(fmt.Errorf("voice: send audio: %w", err))
			return
		}

		s.stats.framesSent.Add(1)
		s.stats.bytesSent.Add(int64(len(pcm)))
	}
}

// handleMessage dispatches one inbound transport message.
func (s *Session) handleMessage(epoch uint64, msg *protocol.Message) {
	switch msg.Type {
	case protocol.TypeAudio:
		s.handleInboundAudio(epoch, msg)
	case protocol.TypeText:
		if s.onTranscript != nil && msg.Content != "" {
			s.onTranscript(msg.Content)
		}
	default:
		s.logger.Debug("ignoring message", "type", msg.Type)
	}
}

// handleInboundAudio decodes a frame, queues it, and schedules playback if
// the sink is free. Undecodable payloads are dropped: transient protocol
// noise must not kill an otherwise healthy session.
func (s *Session) handleInboundAudio(epoch uint64, msg *protocol.Message) {
	pcm, err := msg.AudioBytes()
	if err != nil {
		s.handleMalformed(epoch, err)
		return
	}

	frame := audioio.FrameFromBytes(pcm, s.cfg.Playback.SampleRate, s.cfg.Playback.Channels)
	s.stats.bytesReceived.Add(int64(len(pcm)))

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}

	if dropped := s.queue.push(frame, s.cfg.MaxQueueDepth); dropped > 0 {
		s.logger.Warn("playback queue over depth cap", "dropped", dropped)
	}
	if !s.queue.scheduled {
		s.scheduleNextLocked(epoch)
	}
	changed, cb := s.setStateLocked(StateSpeaking), s.onState
	s.mu.Unlock()

	if changed && cb != nil {
		cb(StateSpeaking)
	}
}

// scheduleNextLocked dequeues the head frame and hands it to the sink.
// Caller holds s.mu and has verified nothing is currently scheduled.
func (s *Session) scheduleNextLocked(epoch uint64) {
	frame, ok := s.queue.pop()
	if !ok {
		return
	}

	s.queue.scheduled = true
	err := s.sink.Schedule(frame, func() { s.handlePlaybackComplete(epoch) })
	if err != nil {
		s.queue.scheduled = false
		violation := &SchedulingViolationError{Cause: err}
		if s.cfg.StrictInvariants {
			panic(violation)
		}
		s.logger.Error("sink rejected frame", "error", err)
		if cb := s.onError; cb != nil {
			go cb(violation)
		}
	}
}

// handlePlaybackComplete is the dequeue clock: it fires once per finished
// frame and schedules the next, or returns the session to listening when
// the queue has drained.
func (s *Session) handlePlaybackComplete(epoch uint64) {
	s.stats.framesPlayed.Add(1)

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return
	}

	s.queue.scheduled = false
	if len(s.queue.pending) > 0 {
		s.scheduleNextLocked(epoch)
		s.mu.Unlock()
		return
	}

	changed, cb := s.setStateLocked(StateListening), s.onState
	s.mu.Unlock()

	if changed && cb != nil {
		cb(StateListening)
	}
}

// handleMalformed reports a dropped inbound frame. Recoverable: the session
// stays in its current state.
func (s *Session) handleMalformed(epoch uint64, err error) {
	s.mu.Lock()
	stale := s.epoch != epoch
	s.mu.Unlock()
	if stale {
		return
	}

	s.stats.malformedDropped.Add(1)
	s.logger.Warn("dropped malformed frame", "error", err)

	if cb := s.onError; cb != nil {
		if !errors.Is(err, ErrMalformedFrame) {
			err = fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
		cb(err)
	}
}

// handleLinkClose reacts to the transport going down. A nil error means the
// close was locally requested (teardown already in progress); anything else
// is fatal to the session.
func (s *Session) handleLinkClose(epoch uint64, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	stale := s.epoch != epoch
	s.mu.Unlock()
	if stale {
		return
	}
	s.shutdown(fmt.Errorf("%w: %v", ErrTransportClosed, err))
}

// shutdown moves the session to idle exactly once per epoch and releases
// every resource. All three closes run even if one fails; no device or
// socket stays open after the session reports idle. A non-nil cause is
// reported through OnError after the state change.
//
// The capture-done channel is snapshotted and returned under the same lock
// that bumps the epoch, so a concurrent handleOpen can never slip a capture
// goroutine past a Stop that has already decided not to wait. shutdown
// itself never blocks on it: the capture goroutine calls shutdown on send
// failures and waiting here would deadlock. Stop does the waiting.
func (s *Session) shutdown(cause error) (chan struct{}, error) {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return nil, nil
	}

	s.epoch++
	s.fatalErr = cause
	src, sink, link := s.source, s.sink, s.link
	done := s.captureDone
	s.source, s.sink, s.link = nil, nil, nil
	s.captureDone = nil
	s.queue.clear()
	changed, cb := s.setStateLocked(StateIdle), s.onState
	onError := s.onError
	s.mu.Unlock()

	var errs []error
	if src != nil {
		if err := src.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close capture source: %w", err))
		}
	}
	if link != nil {
		if err := link.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport link: %w", err))
		}
	}
	if sink != nil {
		sink.Clear()
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close playback sink: %w", err))
		}
	}

	if cause != nil {
		s.logger.Error("session terminated", "error", cause)
	} else {
		s.logger.Info("session stopped")
	}

	if changed && cb != nil {
		cb(StateIdle)
	}
	if cause != nil && onError != nil {
		onError(cause)
	}

	return done, errors.Join(errs...)
}

// setStateLocked updates the state and reports whether it changed.
// Caller holds s.mu and emits the notification after unlocking.
func (s *Session) setStateLocked(st State) bool {
	if s.state == st {
		return false
	}
	s.logger.Debug("state transition", "from", s.state.String(), "to", st.String())
	s.state = st
	return true
}

// Package transport maintains the persistent WebSocket connection to the
// remote conversational endpoint.
//
// A Link delivers inbound frames as parsed protocol messages on the socket's
// read goroutine and accepts outbound messages through a buffered write
// channel, so callers on realtime audio paths never block on a socket write.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/middlemgr/voicelink/pkg/protocol"
)

const (
	// handshakeTimeout bounds the WebSocket dial.
	handshakeTimeout = 10 * time.Second

	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second

	// readWait is the idle read deadline; reset on every inbound frame and
	// pong. Generous because the remote is silent between turns.
	readWait = 120 * time.Second

	// pingPeriod is how often keepalive pings are sent.
	pingPeriod = 30 * time.Second

	// sendBuffer is the outbound queue depth. At one audio frame per 256ms
	// this is over a minute of backlog; a full buffer means the socket has
	// effectively stalled.
	sendBuffer = 256
)

var (
	// ErrClosed indicates the link has been closed.
	ErrClosed = errors.New("transport: link closed")

	// ErrSendBufferFull indicates the outbound queue overflowed because the
	// socket stopped draining. The session treats this as fatal.
	ErrSendBufferFull = errors.New("transport: send buffer full")

	// ErrAlreadyConnected indicates Connect was called twice.
	ErrAlreadyConnected = errors.New("transport: already connected")
)

// Link is a persistent bidirectional message link to one endpoint.
// Callbacks must be registered before Connect; they are invoked on the
// link's own goroutines.
type Link struct {
	url    string
	header http.Header
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool

	writeCh   chan *protocol.Message
	closedCh  chan struct{}
	closeOnce sync.Once

	onOpen      func()
	onMessage   func(*protocol.Message)
	onMalformed func(error)
	onClose     func(err error)
}

// NewLink creates a link to the given WebSocket URL.
// header may be nil.
func NewLink(url string, header http.Header, logger *slog.Logger) *Link {
	if logger == nil {
		logger = slog.Default()
	}
	return &Link{
		url:      url,
		header:   header,
		logger:   logger,
		writeCh:  make(chan *protocol.Message, sendBuffer),
		closedCh: make(chan struct{}),
	}
}

// OnOpen registers the callback fired once the connection is established.
func (l *Link) OnOpen(fn func()) { l.onOpen = fn }

// OnMessage registers the callback for parsed inbound messages.
func (l *Link) OnMessage(fn func(*protocol.Message)) { l.onMessage = fn }

// OnMalformed registers the callback for inbound frames that failed to
// parse. Malformed frames are dropped; the link stays up.
func (l *Link) OnMalformed(fn func(error)) { l.onMalformed = fn }

// OnClose registers the callback fired exactly once when the link goes down.
// err is nil for a locally requested Close, non-nil for transport failures.
func (l *Link) OnClose(fn func(err error)) { l.onClose = fn }

// Connect dials the endpoint and starts the read, write, and keepalive
// loops. The context bounds the dial only; the established link lives until
// Close or a transport failure.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	if l.connected {
		l.mu.Unlock()
		return ErrAlreadyConnected
	}
	select {
	case <-l.closedCh:
		l.mu.Unlock()
		return ErrClosed
	default:
	}
	l.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, l.url, l.header)
	if err != nil {
		return fmt.Errorf("transport: dial %s: %w", l.url, err)
	}

	conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readWait))
		return nil
	})

	l.mu.Lock()
	l.conn = conn
	l.connected = true
	l.mu.Unlock()

	l.logger.Info("transport connected", "url", l.url)

	// The open callback completes before the read loop starts, so the
	// caller is fully wired up before the first inbound frame can arrive.
	if l.onOpen != nil {
		l.onOpen()
	}

	go l.readLoop(conn)
	go l.writeLoop(conn)
	go l.keepAlive(conn)

	return nil
}

// Send queues a message for transmission. It never blocks: if the outbound
// buffer is full the message is rejected with ErrSendBufferFull.
func (l *Link) Send(msg *protocol.Message) error {
	select {
	case <-l.closedCh:
		return ErrClosed
	default:
	}

	select {
	case l.writeCh <- msg:
		return nil
	case <-l.closedCh:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Close shuts the link down. Safe to call multiple times and from any
// goroutine. The OnClose callback fires exactly once with a nil error.
func (l *Link) Close() error {
	l.teardown(nil)
	return nil
}

// teardown closes the connection exactly once and reports err upward.
func (l *Link) teardown(err error) {
	l.closeOnce.Do(func() {
		close(l.closedCh)

		l.mu.Lock()
		conn := l.conn
		l.connected = false
		l.mu.Unlock()

		if conn != nil {
			// Best effort; the peer may already be gone.
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			conn.Close()
		}

		if err != nil {
			l.logger.Warn("transport closed", "error", err)
		} else {
			l.logger.Info("transport closed")
		}

		if l.onClose != nil {
			l.onClose(err)
		}
	})
}

func (l *Link) readLoop(conn *websocket.Conn) {
	for {
		conn.SetReadDeadline(time.Now().Add(readWait))

		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-l.closedCh:
				// Local close already in progress; not a transport failure.
			default:
				l.teardown(fmt.Errorf("transport: read: %w", err))
			}
			return
		}

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			l.logger.Debug("dropping malformed frame", "error", err)
			if l.onMalformed != nil {
				l.onMalformed(err)
			}
			continue
		}

		if l.onMessage != nil {
			l.onMessage(msg)
		}
	}
}

func (l *Link) writeLoop(conn *websocket.Conn) {
	for {
		select {
		case <-l.closedCh:
			return
		case msg := <-l.writeCh:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				l.teardown(fmt.Errorf("transport: write: %w", err))
				return
			}
		}
	}
}

func (l *Link) keepAlive(conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-l.closedCh:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeWait)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				l.teardown(fmt.Errorf("transport: ping: %w", err))
				return
			}
		}
	}
}

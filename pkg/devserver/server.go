// Package devserver is a loopback conversational endpoint for local
// development. It speaks the same wire protocol as the production backend
// but simply echoes caller audio back, resampled to the playback rate, so
// the full client pipeline can be exercised without AI credentials.
package devserver

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
)

// Config holds dev server settings.
type Config struct {
	// CaptureRate is the sample rate clients send at.
	CaptureRate int

	// PlaybackRate is the sample rate responses are resampled to.
	PlaybackRate int

	// Greeting, when non-empty, is sent as a text message to every new
	// connection.
	Greeting string

	// EchoDelay holds each echoed frame back briefly, approximating remote
	// turnaround. Zero echoes immediately.
	EchoDelay time.Duration
}

// DefaultConfig returns the protocol's standard rates and a greeting.
func DefaultConfig() Config {
	return Config{
		CaptureRate:  16000,
		PlaybackRate: 24000,
		Greeting:     "loopback endpoint ready",
	}
}

// Server is the loopback endpoint.
type Server struct {
	cfg    Config
	logger *slog.Logger
	app    *fiber.App

	mu        sync.Mutex
	conns     map[string]*conn
	startedAt time.Time
}

// New creates a Server. Call Listen to serve.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		conns:     make(map[string]*conn),
		startedAt: time.Now(),
	}

	app := fiber.New(fiber.Config{
		AppName:               "voicelink devserver",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/voice", websocket.New(s.handleVoiceWS))

	s.app = app
	return s
}

// Listen serves on addr (e.g. ":8765") until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("devserver listening",
		"addr", addr,
		"capture_rate", s.cfg.CaptureRate,
		"playback_rate", s.cfg.PlaybackRate,
	)
	return s.app.Listen(addr)
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// ShutdownWithTimeout stops the server, abandoning connections that do not
// drain within d.
func (s *Server) ShutdownWithTimeout(d time.Duration) error {
	return s.app.ShutdownWithTimeout(d)
}

// ActiveConnections returns the number of live voice connections.
func (s *Server) ActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"connections":    s.ActiveConnections(),
	})
}

// handleVoiceWS runs one voice connection. Blocks until the client hangs up.
func (s *Server) handleVoiceWS(ws *websocket.Conn) {
	c := newConn(s, ws)

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()

	s.logger.Info("voice client connected", "conn_id", c.id, "remote", ws.RemoteAddr())

	c.run()

	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()

	s.logger.Info("voice client disconnected",
		"conn_id", c.id,
		"frames_in", c.framesIn.Load(),
		"frames_out", c.framesOut.Load(),
	)
}

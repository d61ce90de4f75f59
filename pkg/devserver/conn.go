package devserver

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/middlemgr/voicelink/pkg/audioio"
	"github.com/middlemgr/voicelink/pkg/protocol"
)

const (
	// writeWait is how long to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is how long to wait for a pong response.
	pongWait = 60 * time.Second

	// pingPeriod must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize bounds inbound messages. A 4096-sample block is 8KiB
	// of PCM, ~11KiB after base64 plus envelope; 64KiB leaves headroom.
	maxMessageSize = 64 * 1024

	// transcriptEvery is how many echoed frames between transcript events.
	transcriptEvery = 16
)

// conn is one voice client connection. The read pump decodes and answers;
// the write pump is the only goroutine that touches the socket for writes.
type conn struct {
	id     string
	server *Server
	ws     *websocket.Conn
	send   chan []byte

	framesIn  atomic.Int64
	framesOut atomic.Int64
}

func newConn(s *Server, ws *websocket.Conn) *conn {
	return &conn{
		id:     uuid.NewString(),
		server: s,
		ws:     ws,
		send:   make(chan []byte, 64),
	}
}

// run starts the pumps and blocks until the connection drops.
func (c *conn) run() {
	go c.writePump()

	if g := c.server.cfg.Greeting; g != "" {
		c.enqueue(protocol.NewTextMessage(g))
	}

	c.readPump()
}

func (c *conn) readPump() {
	defer c.ws.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := protocol.ParseMessage(data)
		if err != nil {
			c.server.logger.Warn("dropping unparseable message", "conn_id", c.id, "error", err)
			continue
		}

		reply, err := c.respond(msg)
		if err != nil {
			c.server.logger.Warn("dropping bad frame", "conn_id", c.id, "error", err)
			continue
		}
		if reply != nil {
			if d := c.server.cfg.EchoDelay; d > 0 {
				time.Sleep(d)
			}
			c.enqueue(reply)
		}
	}
}

// respond builds the loopback reply for one inbound message: audio comes
// back resampled to the playback rate, text is ignored. A nil reply with a
// nil error means no response.
func (c *conn) respond(msg *protocol.Message) (*protocol.Message, error) {
	switch msg.Type {
	case protocol.TypeAudio:
		pcm, err := msg.AudioBytes()
		if err != nil {
			return nil, err
		}
		n := c.framesIn.Add(1)

		// A periodic transcript event exercises the client's text path.
		if n%transcriptEvery == 0 {
			c.enqueue(protocol.NewTextMessage(fmt.Sprintf("echoed %d frames", n)))
		}

		out := audioio.ResampleBytes(pcm, c.server.cfg.CaptureRate, c.server.cfg.PlaybackRate)
		return protocol.NewAudioMessage(out), nil
	default:
		return nil, nil
	}
}

// enqueue hands a message to the write pump without blocking; a full buffer
// drops the reply, mimicking a congested remote.
func (c *conn) enqueue(msg *protocol.Message) {
	data, err := msg.Bytes()
	if err != nil {
		c.server.logger.Error("marshal reply", "conn_id", c.id, "error", err)
		return
	}
	select {
	case c.send <- data:
		if msg.Type == protocol.TypeAudio {
			c.framesOut.Add(1)
		}
	default:
		c.server.logger.Warn("send buffer full, dropping reply", "conn_id", c.id)
	}
}

func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

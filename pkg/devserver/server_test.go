package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/middlemgr/voicelink/pkg/audioio"
	"github.com/middlemgr/voicelink/pkg/protocol"
)

func testServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(DefaultConfig(), logger)
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.Connections != 0 {
		t.Errorf("connections = %d, want 0", body.Connections)
	}
}

func TestVoiceRouteRequiresUpgrade(t *testing.T) {
	s := testServer()

	resp, err := s.app.Test(httptest.NewRequest("GET", "/ws/voice", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 426 {
		t.Errorf("status = %d, want 426 Upgrade Required", resp.StatusCode)
	}
}

func TestRespondEchoesResampledAudio(t *testing.T) {
	s := testServer()
	c := newConn(s, nil)

	in := audioio.Frame{
		Samples:    make([]int16, 1600), // 100ms at 16kHz
		SampleRate: 16000,
		Channels:   1,
	}
	reply, err := c.respond(protocol.NewAudioMessage(in.Bytes()))
	if err != nil {
		t.Fatalf("respond() error: %v", err)
	}
	if reply == nil || reply.Type != protocol.TypeAudio {
		t.Fatalf("reply = %+v, want audio message", reply)
	}

	pcm, err := reply.AudioBytes()
	if err != nil {
		t.Fatalf("AudioBytes() error: %v", err)
	}
	// 100ms at 24kHz.
	if got, want := len(pcm)/2, 2400; got != want {
		t.Errorf("reply = %d samples, want %d", got, want)
	}

	if c.framesIn.Load() != 1 {
		t.Errorf("framesIn = %d, want 1", c.framesIn.Load())
	}
}

func TestRespondIgnoresText(t *testing.T) {
	s := testServer()
	c := newConn(s, nil)

	reply, err := c.respond(protocol.NewTextMessage("hi"))
	if err != nil {
		t.Fatalf("respond() error: %v", err)
	}
	if reply != nil {
		t.Errorf("reply = %+v, want nil for text", reply)
	}
}

func TestRespondRejectsBadPayload(t *testing.T) {
	s := testServer()
	c := newConn(s, nil)

	_, err := c.respond(&protocol.Message{Type: protocol.TypeAudio, Data: "%%%"})
	if !errors.Is(err, protocol.ErrMalformedMessage) {
		t.Errorf("respond() error = %v, want ErrMalformedMessage", err)
	}
}

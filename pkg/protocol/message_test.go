package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/middlemgr/voicelink/pkg/codec"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantType MessageType
		wantErr  bool
	}{
		{
			name:     "audio message",
			input:    `{"type":"audio","data":"AAAA"}`,
			wantType: TypeAudio,
		},
		{
			name:     "text message",
			input:    `{"type":"text","content":"hello there"}`,
			wantType: TypeText,
		},
		{
			name:     "unknown type is parseable",
			input:    `{"type":"endpoints"}`,
			wantType: "endpoints",
		},
		{
			name:    "invalid json",
			input:   `{"type":"audio"`,
			wantErr: true,
		},
		{
			name:    "missing type",
			input:   `{"data":"AAAA"}`,
			wantErr: true,
		},
		{
			name:    "not an object",
			input:   `[1,2,3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := ParseMessage([]byte(tt.input))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseMessage() expected error, got %+v", msg)
				}
				if !errors.Is(err, ErrMalformedMessage) {
					t.Errorf("ParseMessage() error = %v, want ErrMalformedMessage", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseMessage() error = %v", err)
			}
			if msg.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", msg.Type, tt.wantType)
			}
		})
	}
}

func TestAudioMessageRoundTrip(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04, 0xff, 0x7f}

	msg := NewAudioMessage(pcm)
	raw, err := msg.Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	parsed, err := ParseMessage(raw)
	if err != nil {
		t.Fatalf("ParseMessage() error = %v", err)
	}
	if parsed.Type != TypeAudio {
		t.Fatalf("Type = %q, want %q", parsed.Type, TypeAudio)
	}

	got, err := parsed.AudioBytes()
	if err != nil {
		t.Fatalf("AudioBytes() error = %v", err)
	}
	if !bytes.Equal(got, pcm) {
		t.Errorf("AudioBytes() = %v, want %v", got, pcm)
	}
}

func TestAudioBytesErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{name: "text message", msg: Message{Type: TypeText, Content: "hi"}},
		{name: "empty payload", msg: Message{Type: TypeAudio}},
		{name: "invalid base64", msg: Message{Type: TypeAudio, Data: "not-base64!!!"}},
		{name: "bad padding", msg: Message{Type: TypeAudio, Data: "AAA"}},
		{name: "odd byte count", msg: Message{Type: TypeAudio, Data: "AQID"}}, // 3 bytes, not whole samples
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.msg.AudioBytes(); !errors.Is(err, ErrMalformedMessage) {
				t.Errorf("AudioBytes() error = %v, want ErrMalformedMessage", err)
			}
		})
	}
}

func TestAudioBytesKeepsCodecErrorInChain(t *testing.T) {
	// Callers classify recoverable drops by the codec sentinel; the protocol
	// wrapper must not sever it.
	tests := []struct {
		name string
		msg  Message
	}{
		{name: "invalid base64", msg: Message{Type: TypeAudio, Data: "not-base64!!!"}},
		{name: "odd byte count", msg: Message{Type: TypeAudio, Data: "AQID"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.msg.AudioBytes(); !errors.Is(err, codec.ErrMalformedFrame) {
				t.Errorf("AudioBytes() error = %v, want codec.ErrMalformedFrame in chain", err)
			}
		})
	}
}

func TestWireShape(t *testing.T) {
	// The remote endpoint requires flat envelopes. Guard against the fields
	// drifting into a nested payload struct.
	raw, err := NewTextMessage("ok").Bytes()
	if err != nil {
		t.Fatalf("Bytes() error = %v", err)
	}

	var flat map[string]any
	if err := json.Unmarshal(raw, &flat); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if flat["type"] != "text" || flat["content"] != "ok" {
		t.Errorf("unexpected wire shape: %s", raw)
	}
	if _, ok := flat["data"]; ok {
		t.Errorf("text message should omit data field: %s", raw)
	}
}

// Package protocol defines the WebSocket message types exchanged between the
// voicelink client and the remote conversational endpoint.
//
// All frames are JSON text messages. Audio payloads are base64-encoded
// PCM16LE mono: 16 kHz on the outbound (microphone) path, 24 kHz on the
// inbound (synthesized speech) path.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/middlemgr/voicelink/pkg/codec"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// TypeAudio carries a base64-encoded PCM16LE audio frame.
	TypeAudio MessageType = "audio"

	// TypeText carries an informational transcript string. Text messages
	// never affect the session state machine.
	TypeText MessageType = "text"
)

// ErrMalformedMessage indicates a frame that could not be parsed or whose
// payload failed validation. Malformed frames are dropped by the session,
// they do not terminate it.
var ErrMalformedMessage = errors.New("protocol: malformed message")

// Message is the envelope for all WebSocket frames.
//
// The field set is flat rather than nested because the remote endpoint
// expects exactly {"type":"audio","data":...} and {"type":"text","content":...}.
type Message struct {
	Type MessageType `json:"type"`

	// Data is the base64 payload for audio messages.
	Data string `json:"data,omitempty"`

	// Content is the transcript text for text messages.
	Content string `json:"content,omitempty"`
}

// NewAudioMessage wraps raw PCM16LE bytes in an audio envelope.
func NewAudioMessage(pcm []byte) *Message {
	return &Message{
		Type: TypeAudio,
		Data: codec.EncodeTransport(pcm),
	}
}

// NewTextMessage wraps a transcript string in a text envelope.
func NewTextMessage(content string) *Message {
	return &Message{
		Type:    TypeText,
		Content: content,
	}
}

// AudioBytes decodes the base64 audio payload and validates that it holds
// whole PCM16 samples. Returns ErrMalformedMessage for non-audio messages,
// empty payloads, invalid base64, or truncated sample data; the codec's
// ErrMalformedFrame stays in the chain for callers that classify by it.
func (m *Message) AudioBytes() ([]byte, error) {
	if m.Type != TypeAudio {
		return nil, fmt.Errorf("%w: AudioBytes on %q message", ErrMalformedMessage, m.Type)
	}
	if m.Data == "" {
		return nil, fmt.Errorf("%w: empty audio payload", ErrMalformedMessage)
	}
	pcm, err := codec.DecodeTransport(m.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("%w: %w: %d bytes is not a whole number of samples",
			ErrMalformedMessage, codec.ErrMalformedFrame, len(pcm))
	}
	return pcm, nil
}

// Bytes returns the JSON-encoded message.
func (m *Message) Bytes() ([]byte, error) {
	return json.Marshal(m)
}

// ParseMessage parses a JSON frame from the wire.
func ParseMessage(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	}
	return &msg, nil
}

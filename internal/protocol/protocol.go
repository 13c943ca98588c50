// Package protocol defines the JSON event envelope exchanged over the
// realtime channel between server and clients.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Event names carried on the wire.
const (
	EventLoadTranscript = "load_transcript" // server -> client, once on connect
	EventSpeechData     = "speech_data"     // client -> server, raw audio chunk
	EventNewSpeech      = "new_speech"      // server -> all clients
	EventQuestion       = "question"        // client -> server
	EventAnswer         = "answer"          // server -> asking client only
)

// Envelope is one wire frame. The payload fields are flattened; which of
// them is meaningful depends on Event. Audio travels base64-encoded inside
// the JSON frame.
type Envelope struct {
	Event      string   `json:"event"`
	Transcript []string `json:"transcript,omitempty"`
	Audio      []byte   `json:"audio,omitempty"`
	Text       string   `json:"text,omitempty"`
}

func LoadTranscript(lines []string) Envelope {
	return Envelope{Event: EventLoadTranscript, Transcript: lines}
}

func NewSpeech(text string) Envelope {
	return Envelope{Event: EventNewSpeech, Text: text}
}

func Answer(text string) Envelope {
	return Envelope{Event: EventAnswer, Text: text}
}

// Encode serializes an envelope to its wire form.
func Encode(e Envelope) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", e.Event, err)
	}
	return data, nil
}

// Decode parses a wire frame. Frames without an event name are rejected;
// unknown event names are left to the caller.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode frame: %w", err)
	}
	if e.Event == "" {
		return Envelope{}, fmt.Errorf("decode frame: missing event name")
	}
	return e, nil
}
